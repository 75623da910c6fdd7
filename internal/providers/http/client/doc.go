// Package client is the HTTP client for the comic site.
//
// Requests go through a token-bucket rate limiter and a circuit breaker, and
// are retried by resty on network errors, 429 and 5xx. A redirect to the
// site's captcha wall stops the request with a *CaptchaError instead of
// following it; captcha and 4xx answers do not trip the breaker.
//
// Image fetches use their own transport and breaker, so a failing image host
// cannot open the site breaker. The image transport refuses to dial loopback,
// private and link-local addresses unless Config.AllowPrivateImageHosts is
// set. Response bodies are capped by MaxPageSize and MaxImageSize.
//
// Example Usage:
//
//	c := client.New(client.DefaultConfig(), store, logger, metrics)
//	page, err := c.GetPage(ctx, c.BaseURL()+"/Comic/Saga")
//	if errors.Is(err, client.ErrCaptchaRequired) {
//		// ask the user to open the captcha URL
//	}
package client
