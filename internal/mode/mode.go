// Package mode negotiates a device into its full reporting mode: write the
// mode attribute, let it settle, read it back, retry on a backoff schedule
// and re-verify periodically. Every wait is a scheduler timer and every I/O
// runs off the device context with its completion posted back.
package mode

import (
	"context"
	"errors"
	"time"
)

// ErrMismatch reports a read-back value that differs from the one written.
var ErrMismatch = errors.New("mode read-back mismatch")

// Mode is the reporting mode a device is believed to be in.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeReduced
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeReduced:
		return "reduced"
	case ModeFull:
		return "full"
	}
	return "unknown"
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) Mode {
	switch s {
	case "reduced":
		return ModeReduced
	case "full":
		return ModeFull
	}
	return ModeUnknown
}

// Phase is the negotiation state.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	PhaseAttempting
	PhaseVerified
	PhaseUnverified
)

func (p Phase) String() string {
	switch p {
	case PhaseAttempting:
		return "attempting"
	case PhaseVerified:
		return "verified"
	case PhaseUnverified:
		return "unverified"
	}
	return "unknown"
}

// ModeState is the per-device negotiation record.
type ModeState struct {
	Mode           Mode
	Phase          Phase
	LastVerifiedAt time.Time
	// Attempts counts write attempts in the current negotiation round.
	Attempts int
}

// IO writes and reads the mode attribute of a device. Implementations may
// block; the negotiator never calls them on the device context.
type IO interface {
	WriteMode(ctx context.Context, deviceID string, attribute uint16, value int) error
	ReadMode(ctx context.Context, deviceID string, attribute uint16) (int, error)
}

// Record is the persisted last-verified mode of a device.
type Record struct {
	Mode       Mode      `json:"mode"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Store persists Records across restarts.
type Store interface {
	Load(ctx context.Context, deviceID string) (Record, bool, error)
	Save(ctx context.Context, deviceID string, rec Record) error
}

// DefaultSchedule is the attempt schedule as offsets from the start of a
// negotiation round.
func DefaultSchedule() []time.Duration {
	return []time.Duration{
		0,
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
		1000 * time.Millisecond,
	}
}

// DefaultReverify is how long a verification is trusted.
const DefaultReverify = 6 * time.Hour
