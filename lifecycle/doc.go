// Package lifecycle owns the job state machine and keeps the job store and
// the scheduling index consistent.
//
// The [Manager] is the only writer of job records. Every transition is a
// conditional update against the job store keyed on the job's current
// status, so a client Cancel and a worker Claim racing on the same job
// resolve with exactly one winner.
//
// # Store and Index Ordering
//
// Each transition touches the two stores in a fixed order:
//
//	Create          store.Insert            then index.Upsert (record deleted if the upsert fails)
//	Cancel          store.ConditionalUpdate then index.Remove (best-effort)
//	Claim           store.ConditionalUpdate (the worker removes the index entry)
//	Complete        store.ConditionalUpdate
//	RetryOrFail     store.ConditionalUpdate then index.Upsert when the job goes back to pending
//	Reconcile       store.ListAll(pending)  then index.Upsert for missing or diverging entries
//
// An index entry whose job is no longer pending is removed lazily by the
// worker loop. A pending job without an index entry is re-indexed by
// [Manager.Reconcile].
//
// # Claim Seam
//
// Claim goes through the [Claimer] interface. [StoreClaimer] is a
// conditional update and assumes a single worker process; a distributed
// lease would replace only this type.
package lifecycle
