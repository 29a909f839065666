// Package handlers provides the built-in job handlers: email_notification,
// resize_image and generate_pdf.
//
// The handlers simulate their work. Each validates its payload, waits for a
// configured delay (returning early if the context is cancelled) and then
// fails at a configured rate so retry behaviour can be observed end to end.
//
//	handlers.Register(eng.Registry(), handlers.WithConfig(cfg), handlers.WithLogger(logger))
package handlers
