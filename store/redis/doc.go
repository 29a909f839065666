// Package redis implements job.Store and schedule.Index on Redis.
//
// Job records are stored as Hashes and enumerated through a Sorted Set
// scored by creation time. Conditional updates run as a Lua script so the
// status check and the write are a single atomic step. The scheduling index
// is a Sorted Set whose score is the due time in Unix milliseconds.
//
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	jobs := redis.New(client)
//	index := redis.NewIndex(client)
//	if err := jobs.Ping(ctx); err != nil { ... }
package redis
