// Package logic contains the pure gesture classification core: deduplication
// of raw button signals and the timing state machine that turns them into
// gestures. This package has NO I/O. Time and timers come from an injected
// sched.Scheduler, so every path can be driven by a fake clock.
package logic

import (
	"strings"
	"time"
)

// Channel identifies the low-level event source a raw signal arrived on.
type Channel uint8

const (
	ChannelSceneRecall Channel = iota + 1
	ChannelOnOff
	ChannelMultistate
	ChannelVendorDatapoint
	ChannelRawFrame
)

var channelNames = map[Channel]string{
	ChannelSceneRecall:     "scene_recall",
	ChannelOnOff:           "onoff",
	ChannelMultistate:      "multistate_input",
	ChannelVendorDatapoint: "vendor_datapoint",
	ChannelRawFrame:        "raw_frame",
}

// String returns the wire name of the channel.
func (c Channel) String() string {
	if s, ok := channelNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseChannel resolves a wire name into a Channel.
func ParseChannel(s string) (Channel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range channelNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

// AllChannels returns every channel in default priority order.
func AllChannels() []Channel {
	return []Channel{ChannelSceneRecall, ChannelOnOff, ChannelMultistate, ChannelVendorDatapoint, ChannelRawFrame}
}

// Origin tells whether a signal was caused by the hardware or by software.
type Origin uint8

const (
	OriginPhysical Origin = iota
	OriginVirtual
)

func (o Origin) String() string {
	if o == OriginVirtual {
		return "virtual"
	}
	return "physical"
}

// ParseOrigin maps a wire name onto an Origin. Anything unrecognized is physical.
func ParseOrigin(s string) Origin {
	if strings.EqualFold(strings.TrimSpace(s), "virtual") {
		return OriginVirtual
	}
	return OriginPhysical
}

// Gesture is a semantically meaningful user action.
type Gesture string

const (
	GestureSingle  Gesture = "single"
	GestureDouble  Gesture = "double"
	GestureTriple  Gesture = "triple"
	GestureMultiN  Gesture = "multi"
	GestureLong    Gesture = "long"
	GestureRelease Gesture = "release"
)

// ParseGesture resolves a gesture name. "hold" is accepted for long.
func ParseGesture(s string) (Gesture, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return GestureSingle, true
	case "double":
		return GestureDouble, true
	case "triple":
		return GestureTriple, true
	case "multi":
		return GestureMultiN, true
	case "long", "hold":
		return GestureLong, true
	case "release":
		return GestureRelease, true
	}
	return "", false
}

// Signal describes how a raw event participates in classification.
type Signal uint8

const (
	// SignalCode carries a gesture code that maps directly to a gesture.
	SignalCode Signal = iota
	// SignalClick is a press with an implied, immediate release.
	SignalClick
	// SignalPress starts a hold; a release or the long-press timer ends it.
	SignalPress
	// SignalRelease ends a hold.
	SignalRelease
)

func (s Signal) String() string {
	switch s {
	case SignalCode:
		return "code"
	case SignalClick:
		return "click"
	case SignalPress:
		return "press"
	case SignalRelease:
		return "release"
	}
	return "unknown"
}

// RawPressEvent is the canonical form every adapter produces. It is consumed
// immediately by the engine and never retained.
type RawPressEvent struct {
	DeviceID string
	Button   int
	Channel  Channel
	Code     int
	Signal   Signal
	// State marks attribute reports that mirror device state. Only these are
	// subject to initialization and periodic-report filtering.
	State bool
	// Fallback marks a code event whose payload could not be parsed. It
	// classifies as Single whatever the code maps say.
	Fallback bool
	Time     time.Time
	Origin   Origin
}

// GestureEvent is the classified output. One is emitted per physical gesture.
type GestureEvent struct {
	DeviceID    string
	Button      int
	Gesture     Gesture
	RepeatCount int
	Timestamp   time.Time
	Channel     Channel
	Origin      Origin
}

// CodeMap maps raw gesture codes onto gestures.
type CodeMap map[int]Gesture

// DefaultCodeMap is the fallback used when nothing better is known.
func DefaultCodeMap() CodeMap {
	return CodeMap{
		0: GestureSingle,
		1: GestureDouble,
		2: GestureLong,
		3: GestureSingle,
		4: GestureDouble,
		5: GestureLong,
	}
}

// Clone returns a copy of m.
func (m CodeMap) Clone() CodeMap {
	out := make(CodeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CodeSource returns the code map in force for a channel.
type CodeSource func(Channel) CodeMap

// Timing holds every window and timeout the core uses.
type Timing struct {
	ClickGap      time.Duration
	LongPress     time.Duration
	Debounce      time.Duration
	Periodic      time.Duration
	CrossChannel  time.Duration
	VirtualWindow time.Duration
	PurgeInterval time.Duration
	PurgeHorizon  time.Duration
}

// DefaultTiming returns the stock timing values.
func DefaultTiming() Timing {
	return Timing{
		ClickGap:      400 * time.Millisecond,
		LongPress:     1000 * time.Millisecond,
		Debounce:      100 * time.Millisecond,
		Periodic:      5000 * time.Millisecond,
		CrossChannel:  500 * time.Millisecond,
		VirtualWindow: 1500 * time.Millisecond,
		PurgeInterval: 60 * time.Second,
		PurgeHorizon:  10 * time.Second,
	}
}

func repeatFor(g Gesture) int {
	switch g {
	case GestureDouble:
		return 2
	case GestureTriple:
		return 3
	}
	return 1
}
