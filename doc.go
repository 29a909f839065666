// Package tempo provides a durable deferred-job engine for Go. Clients
// create jobs that must run at or after a chosen time; a worker loop polls a
// time-ordered scheduling index, re-validates each due job against the job
// store, dispatches it to a registered handler, and retries failures with a
// fixed backoff up to a per-job bound.
//
// # Quick Start
//
//	eng, err := engine.Build(pgStore, redisIndex,
//	    engine.WithConfig(tempo.DefaultConfig()),
//	    engine.WithLogger(logger),
//	)
//	engine.Register(eng, handlers.EmailNotification(logger, 0))
//
//	j, err := eng.Manager().Create(ctx, job.CreateParams{
//	    Type:    "email_notification",
//	    Payload: json.RawMessage(`{"to":"a@example.com"}`),
//	})
//
//	_ = eng.Start(ctx)
//
// # Architecture
//
// Two independent pieces of external state hold a job: the job store (the
// durable record) and the scheduling index (id → due time). The lifecycle
// manager is the only writer of job records and documents, per transition,
// which of the two stores it touches and in what order. Divergence between
// them is tolerated and repaired: the worker drops index entries whose job
// is no longer pending, and Reconcile re-indexes pending jobs that lost
// their entry.
//
// All entity IDs are prefix-qualified, K-sortable UUIDv7 identifiers.
package tempo
