// Package relayhook publishes tempo lifecycle events to a Redis pub/sub
// channel. When registered as an extension, it emits a JSON [Event]
// (tempo.job.completed, tempo.job.failed, ...) at every lifecycle point so
// other services can react without polling the API.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	hook := relayhook.New(client)
//	engine.WithExtension(hook)
//
// To restrict which events are emitted:
//
//	hook := relayhook.New(client,
//	    relayhook.WithEvents(
//	        relayhook.EventJobCompleted,
//	        relayhook.EventJobFailed,
//	    ),
//	)
package relayhook
