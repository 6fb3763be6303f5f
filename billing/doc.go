// Package billing is a hook extension that reports finished jobs to the
// billing system for usage-based invoicing.
//
// It listens only on the terminal hook, which the queue and recovery
// layers fire exactly once per job, on the write that moved the job into a
// terminal status. That makes every emitted usage event bill exactly one
// job exactly once; the event id gives the billing side a stable handle
// for reconciliation.
//
// Delivery goes through the [Sender] interface. [NewHTTPSender] posts
// events as JSON to a webhook; tests and other backends supply their own
// Sender.
package billing
