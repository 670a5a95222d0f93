package logic

import (
	"log/slog"
	"sort"
	"time"

	"github.com/sweeney/button-hub/internal/sched"
)

// EngineConfig configures a per-device Engine.
type EngineConfig struct {
	DeviceID    string
	Timing      Timing
	Codes       CodeSource
	EmitRelease bool

	// Sink receives every classified gesture.
	Sink func(GestureEvent)
	// OnDrop, if set, is told about every filtered event.
	OnDrop func(RawPressEvent, DropReason)

	Logger *slog.Logger
}

// Engine is the complete per-device classification state: one
// ButtonChannelState per button, the deduplicator, the classifier, and the
// periodic purge of the dedup tables. All methods must be called on the
// scheduler's context.
type Engine struct {
	deviceID   string
	sched      sched.Scheduler
	timing     Timing
	dedup      *Deduplicator
	classifier *Classifier
	buttons    map[int]*ButtonChannelState
	purge      sched.Timer
	onDrop     func(RawPressEvent, DropReason)
	logger     *slog.Logger
	closed     bool
}

// NewEngine creates an engine and starts its purge sweep.
func NewEngine(s sched.Scheduler, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = func(GestureEvent) {}
	}
	e := &Engine{
		deviceID: cfg.DeviceID,
		sched:    s,
		timing:   cfg.Timing,
		dedup:    NewDeduplicator(cfg.Timing),
		buttons:  make(map[int]*ButtonChannelState),
		onDrop:   cfg.OnDrop,
		logger:   logger,
	}
	e.classifier = NewClassifier(s, cfg.Timing, cfg.Codes, cfg.EmitRelease, sink, logger)
	e.schedulePurge()
	return e
}

// SetCodes swaps the code maps used for code-driven events.
func (e *Engine) SetCodes(codes CodeSource) { e.classifier.SetCodes(codes) }

// SetEmitRelease toggles the Release gesture after a timer-driven Long.
func (e *Engine) SetEmitRelease(v bool) { e.classifier.SetEmitRelease(v) }

// Handle runs one raw event through the filters and, if admitted, the
// classifier. It reports whether the event was admitted.
func (e *Engine) Handle(ev RawPressEvent) bool {
	if e.closed {
		return false
	}
	if ev.DeviceID == "" {
		ev.DeviceID = e.deviceID
	}
	st := e.button(ev.Button)
	if reason := e.dedup.Admit(st, ev, e.logicalCommand(ev)); reason != DropNone {
		e.logger.Debug("raw event dropped",
			"button", ev.Button, "channel", ev.Channel.String(), "code", ev.Code,
			"signal", ev.Signal.String(), "origin", ev.Origin.String(), "reason", string(reason))
		if e.onDrop != nil {
			e.onDrop(ev, reason)
		}
		return false
	}
	if ev.Signal == SignalCode && e.classifier.Absorb(st, ev) {
		e.logger.Debug("pending cycle absorbed by code event",
			"button", ev.Button, "channel", ev.Channel.String())
	}
	e.classifier.Handle(st, ev)
	return true
}

// logicalCommand is the channel-independent meaning of ev. A click is the
// same physical action a single-press code reports.
func (e *Engine) logicalCommand(ev RawPressEvent) string {
	switch ev.Signal {
	case SignalCode:
		if ev.Fallback {
			return string(GestureSingle)
		}
		g, _ := e.classifier.resolve(ev.Channel, ev.Code)
		return string(g)
	case SignalClick:
		return string(GestureSingle)
	}
	return ev.Signal.String()
}

func (e *Engine) button(n int) *ButtonChannelState {
	st, ok := e.buttons[n]
	if !ok {
		st = newButtonChannelState(n)
		e.buttons[n] = st
	}
	return st
}

func (e *Engine) schedulePurge() {
	if e.timing.PurgeInterval <= 0 {
		return
	}
	e.purge = e.sched.AfterFunc(e.timing.PurgeInterval, func() {
		if e.closed {
			return
		}
		e.Purge()
		e.schedulePurge()
	})
}

// Purge drops expired dedup entries on every button.
func (e *Engine) Purge() int {
	now := e.sched.Now()
	n := 0
	for _, st := range e.buttons {
		n += e.dedup.Purge(st, now)
	}
	if n > 0 {
		e.logger.Debug("dedup entries purged", "count", n)
	}
	return n
}

// Close cancels every outstanding timer. The engine ignores events afterwards.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.purge != nil {
		e.purge.Stop()
		e.purge = nil
	}
	for _, st := range e.buttons {
		e.classifier.Cancel(st)
	}
}

// ButtonSnapshot is a read-only view of one button's state.
type ButtonSnapshot struct {
	Button       int
	Phase        Phase
	PendingCount int
	TimerPending bool
	HeldSince    time.Time
	DedupEntries int
}

// Snapshot returns the state of every known button, ordered by button index.
func (e *Engine) Snapshot() []ButtonSnapshot {
	out := make([]ButtonSnapshot, 0, len(e.buttons))
	for _, st := range e.buttons {
		out = append(out, ButtonSnapshot{
			Button:       st.Button,
			Phase:        st.phase,
			PendingCount: st.pendingClickCount,
			TimerPending: st.slot != slotNone,
			HeldSince:    st.heldSince,
			DedupEntries: len(st.dedupEntries),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Button < out[j].Button })
	return out
}
