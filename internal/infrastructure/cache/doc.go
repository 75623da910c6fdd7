// Package cache stores fetched site scripts on disk so a restart does not
// refetch the anti-tamper loader. Entries are keyed by the blake2b digest of
// their URL, compressed with zstd and described by a JSON sidecar.
package cache
