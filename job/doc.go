// Package job defines the job entity, its state machine, the job store
// contract, and the handler registry.
//
// # Job Entity
//
// A [Job] is a unit of deferred work. It embeds [tempo.Entity] for
// timestamps, carries an opaque JSON payload, and moves through:
//
//	pending → in_progress → completed
//	pending → in_progress → pending (retry, scheduled_at advanced)
//	pending → in_progress → failed
//	pending → cancelled
//
// [Status.CanTransition] encodes these edges.
//
// # Defining a Handler
//
// Any type implementing [Handler] can be registered. [Definition] adapts a
// typed function; the payload is JSON-decoded before the function runs:
//
//	var SendEmail = job.NewDefinition("email_notification",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(ctx, in.To, in.Subject, in.Message)
//	    },
//	)
//
// # Registry
//
// [Registry] maps job types to handlers. Register every handler at
// startup; [Registry.Types] enumerates them and [Registry.Execute]
// dispatches a job to its handler.
package job
