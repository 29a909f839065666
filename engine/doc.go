// Package engine wires the tempo subsystems together. It creates the
// extension registry, handler registry, middleware chain, lifecycle
// manager and worker loop around a job store and a scheduling index.
//
// # Building an Engine
//
//	eng, err := engine.Build(jobStore, index,
//	    engine.WithConfig(tempo.DefaultConfig()),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Registering Handlers
//
//	engine.Register(eng, job.NewDefinition("email_notification", sendEmail))
//
// # Enqueuing Jobs
//
//	engine.Enqueue(ctx, eng, "email_notification", EmailInput{To: "user@example.com"})
//
//	// With options
//	engine.Enqueue(ctx, eng, "generate_pdf", input,
//	    engine.At(time.Now().Add(5*time.Minute)),
//	    engine.WithMaxRetries(5),
//	)
//
// # Options
//
//   - [WithConfig]: poll interval, retry backoff, reconcile interval, defaults
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithBackoff]: replace the constant retry delay
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
