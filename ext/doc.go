// Package ext defines the extension system for tempo.
//
// Extensions are notified of job lifecycle events and can react to them,
// for example by recording metrics or writing audit logs. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: job was written to the store and scheduled
//   - [JobStarted]: worker claimed the job
//   - [JobCompleted]: job finished successfully
//   - [JobFailed]: job failed with no retries remaining
//   - [JobRetrying]: job failed and was rescheduled
//   - [JobCancelled]: pending job was cancelled
//
// # Other Hooks
//
//   - [IndexRepaired]: a stale index entry was removed or a pending job re-indexed
//   - [Shutdown]: the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
