// Package store provides the two backends implementing chat.Store:
// Postgres (documents in PostgreSQL, change signals over Redis pub/sub)
// and Memory (in-process, used by tests and no-infra dev mode).
package store
