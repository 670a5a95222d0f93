package logic

import (
	"log/slog"
	"time"

	"github.com/sweeney/button-hub/internal/sched"
)

// Classifier is the timing state machine that turns deduplicated raw events
// for one button into gestures.
//
// Per button: Idle -> AwaitingRelease -> Counting -> Idle, with the long-press
// timer as an escape from AwaitingRelease straight back to Idle. Code-driven
// events bypass the machine and are emitted immediately.
type Classifier struct {
	sched       sched.Scheduler
	timing      Timing
	codes       CodeSource
	emit        func(GestureEvent)
	emitRelease bool
	logger      *slog.Logger
}

// NewClassifier creates a classifier. emit is called on the scheduler's
// context for every gesture.
func NewClassifier(s sched.Scheduler, timing Timing, codes CodeSource, emitRelease bool, emit func(GestureEvent), logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		sched:       s,
		timing:      timing,
		codes:       codes,
		emit:        emit,
		emitRelease: emitRelease,
		logger:      logger,
	}
}

// SetCodes replaces the code source, e.g. after a mode change.
func (c *Classifier) SetCodes(codes CodeSource) { c.codes = codes }

// SetEmitRelease toggles the Release gesture after a timer-driven Long.
func (c *Classifier) SetEmitRelease(v bool) { c.emitRelease = v }

// Lookup maps a raw code to a gesture. Unknown codes fall back to single.
func (c *Classifier) Lookup(ch Channel, code int) Gesture {
	g, ok := c.resolve(ch, code)
	if !ok {
		c.logger.Warn("unknown gesture code, using single", "channel", ch.String(), "code", code)
	}
	return g
}

func (c *Classifier) resolve(ch Channel, code int) (Gesture, bool) {
	var m CodeMap
	if c.codes != nil {
		m = c.codes(ch)
	}
	if g, ok := m[code]; ok {
		return g, true
	}
	return GestureSingle, false
}

// Handle feeds one admitted event into the state machine.
func (c *Classifier) Handle(st *ButtonChannelState, ev RawPressEvent) {
	switch ev.Signal {
	case SignalCode:
		g := GestureSingle
		if !ev.Fallback {
			g = c.Lookup(ev.Channel, ev.Code)
		}
		c.emit(GestureEvent{
			DeviceID:    ev.DeviceID,
			Button:      ev.Button,
			Gesture:     g,
			RepeatCount: repeatFor(g),
			Timestamp:   ev.Time,
			Channel:     ev.Channel,
			Origin:      ev.Origin,
		})
	case SignalPress:
		c.press(st, ev)
	case SignalRelease:
		c.release(st, ev)
	case SignalClick:
		c.click(st, ev)
	}
}

func (c *Classifier) press(st *ButtonChannelState, ev RawPressEvent) {
	if st.phase == PhaseAwaitingRelease || st.longFired {
		// Still held.
		return
	}
	st.phase = PhaseAwaitingRelease
	st.heldSince = ev.Time
	st.cycleChannel, st.cycleAt = ev.Channel, ev.Time
	c.schedule(st, slotLong, func() { c.fireLong(st, ev) })
}

func (c *Classifier) release(st *ButtonChannelState, ev RawPressEvent) {
	if st.phase == PhaseAwaitingRelease {
		st.heldSince = time.Time{}
		c.count(st, ev)
		return
	}
	if st.longFired {
		st.longFired = false
		if c.emitRelease {
			c.emit(GestureEvent{
				DeviceID:    ev.DeviceID,
				Button:      ev.Button,
				Gesture:     GestureRelease,
				RepeatCount: 1,
				Timestamp:   ev.Time,
				Channel:     ev.Channel,
				Origin:      ev.Origin,
			})
		}
	}
}

func (c *Classifier) click(st *ButtonChannelState, ev RawPressEvent) {
	st.longFired = false
	st.heldSince = time.Time{}
	c.count(st, ev)
}

// count records one completed press and (re)starts the click-gap timer.
func (c *Classifier) count(st *ButtonChannelState, ev RawPressEvent) {
	st.pendingClickCount++
	st.phase = PhaseCounting
	st.cycleChannel, st.cycleAt = ev.Channel, ev.Time
	c.schedule(st, slotGap, func() { c.fireGap(st, ev) })
}

// Absorb discards a press or click cycle that another channel started within
// the cross-channel window before ev. It reports whether anything was discarded.
func (c *Classifier) Absorb(st *ButtonChannelState, ev RawPressEvent) bool {
	if st.phase == PhaseIdle || st.cycleChannel == ev.Channel {
		return false
	}
	if ev.Time.Sub(st.cycleAt) >= c.timing.CrossChannel {
		return false
	}
	c.Cancel(st)
	st.pendingClickCount = 0
	st.phase = PhaseIdle
	st.heldSince = time.Time{}
	return true
}

func (c *Classifier) fireLong(st *ButtonChannelState, ev RawPressEvent) {
	st.pendingClickCount = 0
	st.phase = PhaseIdle
	st.heldSince = time.Time{}
	st.longFired = true
	c.emit(GestureEvent{
		DeviceID:    ev.DeviceID,
		Button:      ev.Button,
		Gesture:     GestureLong,
		RepeatCount: 1,
		Timestamp:   c.sched.Now(),
		Channel:     ev.Channel,
		Origin:      ev.Origin,
	})
}

func (c *Classifier) fireGap(st *ButtonChannelState, ev RawPressEvent) {
	n := st.pendingClickCount
	st.pendingClickCount = 0
	st.phase = PhaseIdle
	if n <= 0 {
		return
	}
	g := GestureMultiN
	switch n {
	case 1:
		g = GestureSingle
	case 2:
		g = GestureDouble
	}
	c.emit(GestureEvent{
		DeviceID:    ev.DeviceID,
		Button:      ev.Button,
		Gesture:     g,
		RepeatCount: n,
		Timestamp:   c.sched.Now(),
		Channel:     ev.Channel,
		Origin:      ev.Origin,
	})
}

// schedule puts fire in the button's single timer slot, cancelling whatever
// was there. A callback that was already dispatched when it got replaced sees
// a stale generation and does nothing.
func (c *Classifier) schedule(st *ButtonChannelState, slot timerSlot, fire func()) {
	c.Cancel(st)
	d := c.timing.ClickGap
	if slot == slotLong {
		d = c.timing.LongPress
	}
	gen := st.timerGen
	st.slot = slot
	st.timer = c.sched.AfterFunc(d, func() {
		if st.timerGen != gen || st.slot != slot {
			return
		}
		st.timer = nil
		st.slot = slotNone
		st.timerGen++
		fire()
	})
}

// Cancel stops the button's pending timer, if any.
func (c *Classifier) Cancel(st *ButtonChannelState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = nil
	st.slot = slotNone
	st.timerGen++
}
