// Package store persists classification results. Memory keeps results in
// process for the HTTP API with TTL eviction; Postgres writes status and chef
// feedback back onto the waste log rows they were read from.
package store
