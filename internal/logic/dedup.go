package logic

import (
	"time"

	"github.com/sweeney/button-hub/internal/sched"
)

// DropReason says which filter rejected a raw event.
type DropReason string

const (
	DropNone         DropReason = ""
	DropInit         DropReason = "init"
	DropDebounce     DropReason = "debounce"
	DropPeriodic     DropReason = "periodic"
	DropCrossChannel DropReason = "cross_channel"
	DropOrigin       DropReason = "virtual_physical"
)

// Phase is the classifier state of one button.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAwaitingRelease
	PhaseCounting
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingRelease:
		return "awaiting_release"
	case PhaseCounting:
		return "counting"
	}
	return "idle"
}

type timerSlot uint8

const (
	slotNone timerSlot = iota
	slotLong
	slotGap
)

// channelMemo remembers the last value seen on one channel of a button.
type channelMemo struct {
	value int
	at    time.Time
}

type dedupEntry struct {
	at      time.Time
	channel Channel
}

// ButtonChannelState is everything the core tracks for one button of one
// device. It is created on the first event for the button and owned by the
// device's processing context.
type ButtonChannelState struct {
	Button int

	channels map[Channel]*channelMemo

	lastVirtualPressAt  time.Time
	lastPhysicalPressAt time.Time

	// dedupEntries is keyed by logical command.
	dedupEntries map[string]dedupEntry

	// lastCode* remember the latest admitted code event.
	lastCodeAt      time.Time
	lastCodeChannel Channel

	phase             Phase
	pendingClickCount int
	heldSince         time.Time
	longFired         bool
	cycleChannel      Channel
	cycleAt           time.Time

	// Single pending-classification slot: at most one of the long-press and
	// click-gap timers exists at a time.
	timer    sched.Timer
	slot     timerSlot
	timerGen uint64
}

func newButtonChannelState(button int) *ButtonChannelState {
	return &ButtonChannelState{
		Button:       button,
		channels:     make(map[Channel]*channelMemo),
		dedupEntries: make(map[string]dedupEntry),
	}
}

// Deduplicator applies the four noise filters to raw events.
type Deduplicator struct {
	timing Timing
}

// NewDeduplicator creates a Deduplicator with the given windows.
func NewDeduplicator(timing Timing) *Deduplicator {
	return &Deduplicator{timing: timing}
}

// Admit decides whether ev reaches the classifier. logical is the
// channel-independent meaning of the event, used for cross-channel
// suppression. State is only updated for what the filters need to remember.
func (d *Deduplicator) Admit(st *ButtonChannelState, ev RawPressEvent, logical string) DropReason {
	now := ev.Time

	memo, seen := st.channels[ev.Channel]
	if !seen {
		st.channels[ev.Channel] = &channelMemo{value: ev.Code, at: now}
		if ev.State {
			// First state report only establishes what the device currently shows.
			return DropInit
		}
	} else {
		prevValue, prevAt := memo.value, memo.at
		memo.value, memo.at = ev.Code, now
		if prevValue == ev.Code {
			gap := now.Sub(prevAt)
			if gap < d.timing.Debounce {
				return DropDebounce
			}
			if ev.State && gap >= d.timing.Periodic {
				return DropPeriodic
			}
		}
	}

	if entry, ok := st.dedupEntries[logical]; ok && entry.channel != ev.Channel {
		if now.Sub(entry.at) < d.timing.CrossChannel {
			return DropCrossChannel
		}
	}

	// Timer-driven signals from another channel right after a code event
	// describe the gesture that code already reported.
	if ev.Signal != SignalCode && !st.lastCodeAt.IsZero() && ev.Channel != st.lastCodeChannel &&
		now.Sub(st.lastCodeAt) < d.timing.CrossChannel {
		return DropCrossChannel
	}

	if ev.Signal != SignalRelease {
		other := st.lastPhysicalPressAt
		if ev.Origin == OriginPhysical {
			other = st.lastVirtualPressAt
		}
		if !other.IsZero() && now.Sub(other) < d.timing.VirtualWindow {
			return DropOrigin
		}
		if ev.Origin == OriginVirtual {
			st.lastVirtualPressAt = now
		} else {
			st.lastPhysicalPressAt = now
		}
	}

	if ev.Signal == SignalCode {
		st.lastCodeAt, st.lastCodeChannel = now, ev.Channel
	}
	st.dedupEntries[logical] = dedupEntry{at: now, channel: ev.Channel}
	return DropNone
}

// Purge removes cross-channel entries older than the purge horizon and
// returns how many were removed.
func (d *Deduplicator) Purge(st *ButtonChannelState, now time.Time) int {
	cutoff := now.Add(-d.timing.PurgeHorizon)
	removed := 0
	for k, e := range st.dedupEntries {
		if e.at.Before(cutoff) {
			delete(st.dedupEntries, k)
			removed++
		}
	}
	return removed
}
