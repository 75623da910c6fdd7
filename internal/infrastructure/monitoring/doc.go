/*
Package monitoring provides Prometheus metrics for the reader backend.

# Overview

Metrics cover the HTTP API, page list extraction (outcome, duration, candidate
counts, probe results), bootstrap compilation and caching, per-stage sandbox
timings, requests to the comic site and the on-disk script cache.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "payload")
	err := rt.Exec(ctx, payload)
	timer.Stop()

A nil *Metrics is valid and records nothing.
*/
package monitoring
