// Package server wires the reader backend together and serves it over HTTP.
//
// Server Lifecycle:
//  1. Open and prune the on-disk script cache
//  2. Create the site client, bootstrap cache and sandbox pool
//  3. Load reader preferences
//  4. Mount middleware (recovery, request ID, logging, metrics, CORS, rate limit)
//  5. Mount the API and /metrics
//  6. Serve until the context is canceled, then shut down gracefully
//
// Example Usage:
//
//	cfg, err := config.Load()
//	srv, err := server.New(cfg, server.Options{Logger: logger})
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
