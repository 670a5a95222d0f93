package sched

import (
	"sync"
	"time"
)

// Loop is a real processing context: a goroutine draining an inbox of
// callbacks. Timers and completed work are delivered through the same inbox,
// so everything posted to a Loop is serialized.
type Loop struct {
	inbox chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop with the given inbox capacity. Call Run to start it.
func NewLoop(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 1
	}
	return &Loop{
		inbox: make(chan func(), capacity),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run drains the inbox until Stop is called.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case f := <-l.inbox:
			select {
			case <-l.quit:
				return
			default:
			}
			f()
		}
	}
}

// Post enqueues f. It blocks while the inbox is full and returns false once
// the loop has been stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.inbox <- f:
		return true
	case <-l.quit:
		return false
	}
}

// Do posts f and waits for it to run. It returns false if the loop stopped first.
func (l *Loop) Do(f func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() { f(); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Stop ends the loop and waits for the in-flight callback to return.
// Callbacks still queued, and timers that fire afterwards, are discarded.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time { return time.Now() }

// AfterFunc schedules f to be posted to the loop after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { l.Post(f) })
}

// Go runs work on its own goroutine and posts done to the loop.
func (l *Loop) Go(work func(), done func()) {
	go func() {
		work()
		l.Post(done)
	}()
}
