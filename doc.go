// Package taskthrottler provides a Chromium-inspired cooperative task
// scheduling and throttling engine for Go.
//
// Work is organized into WorkQueues grouped into sets (priority bands).
// Across all queues of a band, the task that was enqueued earliest anywhere
// runs first: cross-queue FIFO fairness, selected in O(log n) through a
// per-band ordered index keyed by enqueue order.
//
// A ThrottlingHelper can place queues under throttling control: their
// wake-ups coalesce onto one-second-aligned pump ticks, so background work
// wakes the control thread at most once per second instead of on every
// timer. Throttled queues live in a virtual time domain whose "now" only
// advances at pump boundaries.
//
// # Quick Start
//
//	engine := taskthrottler.New(2, nil) // 2 priority bands
//	defer engine.Stop()
//
//	foreground := engine.CreateQueue("foreground", 0)
//	background := engine.CreateQueue("background", 1)
//	engine.Throttle(background)
//
//	engine.PostTask(foreground, func(ctx context.Context) {
//		// Runs as soon as the control thread gets to it.
//	})
//	engine.PostDelayedTask(background, func(ctx context.Context) {
//		// Runs at the next one-second pump boundary after the delay.
//	}, 250*time.Millisecond)
//
// # Thread Safety
//
// Scheduler state is confined to a single control goroutine. The Engine
// facade may be called from any goroutine: it hops mutating calls onto the
// control thread. Users of the core package directly must respect the
// confinement themselves.
package taskthrottler
