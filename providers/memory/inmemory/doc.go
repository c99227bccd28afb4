// Package inmemory provides a concurrency-safe, slice-backed [memory.Provider]
// for offline runs and tests. Nothing survives a restart.
package inmemory
