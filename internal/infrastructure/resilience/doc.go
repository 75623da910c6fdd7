/*
Package resilience provides the circuit breaker used around calls to the comic
site.

The site rate-limits aggressively and occasionally serves a captcha wall. The
breaker stops the backend from hammering it while it is down, but an error that
proves the site is reachable (a captcha redirect, a 404) can be excluded from
the failure count through Settings.IsFailure.

# Usage

	breaker := resilience.New("site", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	body, err := resilience.Do(breaker, func() ([]byte, error) {
		return fetch(ctx, url)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
