// Package main runs the readcomic backend.
//
// The server reads comic listings and details from the site and recovers
// chapter image URLs by running the chapter's obfuscated payload inside a
// JavaScript sandbox, behind the site's own anti-tamper loader.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags override the port and logging mode
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
