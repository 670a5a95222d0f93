// Package sched provides the cancellable timers and deferred work that drive a
// device's processing context. Callbacks always run on the context that owns
// the scheduler, one at a time, never concurrently with event handling.
package sched

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running if it has not been dispatched yet.
	// It reports whether the timer was stopped before dispatch.
	Stop() bool
}

// Scheduler schedules work on a single processing context.
type Scheduler interface {
	// Now returns the context's current time.
	Now() time.Time

	// AfterFunc runs f on the owning context after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// Go runs work off the context (it may block on I/O) and then runs done
	// on the context.
	Go(work func(), done func())
}

// Context is a processing context that can also accept posted callbacks.
// Loop and Fake implement it.
type Context interface {
	Scheduler

	// Run processes callbacks until Stop. It blocks.
	Run()
	// Post enqueues f on the context. It returns false after Stop.
	Post(f func()) bool
	// Do runs f on the context and waits for it. Never call it from the
	// context itself.
	Do(f func()) bool
	// Stop ends the context.
	Stop()
}
