// Package throttle rate-limits dispatch per job type.
//
// A [Limiter] holds one token bucket per configured job type. The worker
// asks it before claiming a due job; a job whose type is over its rate is
// left pending in the scheduling index and picked up on a later cycle.
// Types without a [Config] are never throttled.
//
//	engine.Build(jobs, index,
//	    engine.WithThrottle(
//	        throttle.Config{JobType: "resize_image", RateLimit: 2, RateBurst: 5},
//	    ),
//	)
package throttle
