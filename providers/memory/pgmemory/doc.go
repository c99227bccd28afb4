// Package pgmemory is a self-hosted [memory.Provider] on PostgreSQL using
// pgx/v5. Episodes and spaces live in two tables (mammochat_episodes,
// mammochat_spaces by default); [Store.EnsureSchema] creates them for
// development setups.
//
// Search is a plain ILIKE substring match ordered newest first. It is a
// stand-in for the hosted service's semantic ranking, not a replacement.
package pgmemory
