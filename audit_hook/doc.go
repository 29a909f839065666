// Package audithook is a tempo extension that turns job lifecycle events
// into structured audit records.
//
// Every lifecycle hook emits an [AuditEvent] through the [Recorder]
// interface with a severity (info for normal operations, warning for
// retries and cancellations, critical for terminal failures) and metadata
// such as the job type, attempt and elapsed time.
//
// # Logging recorder
//
//	eng, _ := engine.Build(jobs, index,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobCancelled,
//	    ),
//	)
package audithook
