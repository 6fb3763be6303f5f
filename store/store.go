// Package store defines the aggregate persistence interface. The job
// subsystem defines its own store contract; the composite Store adds
// lifecycle methods a backend needs regardless of subsystem. Backends:
// Postgres (pgx), Bun, and Memory.
package store

import (
	"context"

	"github.com/mailscout/bulkq/job"
)

// Store is the aggregate persistence interface. A single backend
// (postgres, bunstore, memory) implements all of it.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
