// Package bulkq provides the bulk job orchestrator for mailscout's
// find-email and verify-email pipelines. It manages the lifecycle of a
// long-running bulk operation (a "job") from submission through completion:
// creating durable job rows, signaling the external lookup worker, merging
// the worker's progress reports, recovering jobs that stall mid-flight, and
// serving consistent status snapshots to polling clients.
//
// bulkq is a coordination layer, not an execution engine. The actual email
// lookups run in a separate worker service; bulkq only drives the job's
// durable state and guarantees that no job is silently lost, no terminal
// event fires twice, and no two actors race on one row.
//
// # Quick Start
//
//	store := memory.New()
//	orc, err := orchestrator.New(store, sig,
//	    orchestrator.WithLogger(logger),
//	)
//
// # Architecture
//
// Subsystem packages each own a narrow concern: job defines the model, state
// machine, and persistence contract; queue accepts submissions and drives
// transitions; recovery sweeps for stalled jobs; report serves the read path.
// A single store backend (Postgres, Bun, or memory) implements the
// persistence contract. All mutations are optimistic: read a versioned row,
// compute the new state, write back conditioned on the version being
// unchanged.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package bulkq
