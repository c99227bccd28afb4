// Package memory defines the memory gateway: the contract every long-term
// memory backend implements ([Provider]), the value objects it exchanges
// ([Episode], [SearchResult], [Space]) and the typed failures callers classify
// with errors.Is.
//
// Backends live in sub-packages: heysol (remote HTTP service), pgmemory
// (PostgreSQL) and inmemory (process-local, for offline use and tests).
package memory
