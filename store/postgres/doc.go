// Package postgres implements store.Store on PostgreSQL using pgx/v5.
// Writes are version-conditioned UPDATEs; the database never advances a
// job's heartbeat on its own, callers stamp updated_at explicitly.
package postgres
