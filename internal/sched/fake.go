package sched

import "time"

// Fake is a manually advanced Context for tests. Timers fire in deadline
// order (ties in scheduling order) while Advance runs; Go runs work and done
// inline.
type Fake struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewFake creates a fake scheduler starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake clock.
func (f *Fake) Now() time.Time { return f.now }

// AfterFunc records a timer due at Now()+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.seq++
	t := &fakeTimer{at: f.now.Add(d), seq: f.seq, f: fn}
	f.timers = append(f.timers, t)
	return t
}

// Run returns immediately; a Fake has no goroutine.
func (f *Fake) Run() {}

// Post runs fn inline.
func (f *Fake) Post(fn func()) bool {
	fn()
	return true
}

// Do runs fn inline.
func (f *Fake) Do(fn func()) bool {
	fn()
	return true
}

// Stop does nothing.
func (f *Fake) Stop() {}

// Go runs work then done immediately.
func (f *Fake) Go(work func(), done func()) {
	work()
	done()
}

// Advance moves the clock forward by d, firing every timer that comes due.
func (f *Fake) Advance(d time.Duration) {
	f.AdvanceTo(f.now.Add(d))
}

// AdvanceTo moves the clock to t, firing every timer due at or before t.
func (f *Fake) AdvanceTo(t time.Time) {
	for {
		next := f.next(t)
		if next == nil {
			break
		}
		f.now = next.at
		next.fired = true
		next.f()
	}
	if t.After(f.now) {
		f.now = t
	}
	f.compact()
}

// Pending returns the number of timers that are scheduled and not stopped.
func (f *Fake) Pending() int {
	n := 0
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (f *Fake) next(limit time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range f.timers {
		if t.stopped || t.fired || t.at.After(limit) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (f *Fake) compact() {
	live := f.timers[:0]
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	f.timers = live
}
