package mode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/button-hub/internal/profile"
	"github.com/sweeney/button-hub/internal/sched"
)

// Config configures a Negotiator.
type Config struct {
	DeviceID string
	Params   profile.ModeParameters
	IO       IO
	// Store is optional. Without it every start negotiates.
	Store    Store
	Schedule []time.Duration
	Reverify time.Duration
	// OnChange is called on the device context whenever the mode changes.
	OnChange func(Mode)
	Logger   *slog.Logger
}

// Negotiator drives one device through Unknown, Attempting and Verified or
// Unverified. All methods and callbacks run on the device context.
type Negotiator struct {
	cfg    Config
	sched  sched.Scheduler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state      ModeState
	roundStart time.Time
	next       int

	timer  sched.Timer
	gen    uint64
	closed bool
}

// NewNegotiator creates a negotiator. Nothing happens until Start.
func NewNegotiator(s sched.Scheduler, cfg Config) *Negotiator {
	if len(cfg.Schedule) == 0 {
		cfg.Schedule = DefaultSchedule()
	}
	if cfg.Reverify <= 0 {
		cfg.Reverify = DefaultReverify
	}
	if cfg.Params.Settle <= 0 {
		cfg.Params.Settle = profile.DefaultSettle
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Negotiator{
		cfg:    cfg,
		sched:  s,
		logger: logger.With("component", "mode"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current negotiation record.
func (n *Negotiator) State() ModeState { return n.state }

// Start consults the persisted record and either trusts it or begins a
// negotiation round.
func (n *Negotiator) Start() {
	if n.closed {
		return
	}
	if n.cfg.Store == nil {
		n.beginRound()
		return
	}
	var (
		rec   Record
		found bool
		err   error
	)
	gen := n.gen
	n.sched.Go(func() {
		rec, found, err = n.cfg.Store.Load(n.ctx, n.cfg.DeviceID)
	}, func() {
		if n.closed || gen != n.gen {
			return
		}
		if err != nil {
			n.logger.Warn("mode record unavailable", "error", err)
		}
		age := n.sched.Now().Sub(rec.VerifiedAt)
		if err == nil && found && rec.Mode == ModeFull && age >= 0 && age < n.cfg.Reverify {
			n.logger.Info("mode trusted from record", "verified_at", rec.VerifiedAt)
			n.state.Phase = PhaseVerified
			n.state.LastVerifiedAt = rec.VerifiedAt
			n.changed(ModeFull)
			n.arm(n.cfg.Reverify-age, n.reverify)
			return
		}
		n.beginRound()
	})
}

// Close cancels the pending timer and any in-flight I/O. Completions that
// arrive later are ignored.
func (n *Negotiator) Close() {
	if n.closed {
		return
	}
	n.closed = true
	n.disarm()
	n.cancel()
}

func (n *Negotiator) beginRound() {
	n.roundStart = n.sched.Now()
	n.next = 0
	n.state.Phase = PhaseAttempting
	n.state.Attempts = 0
	n.attempt()
}

func (n *Negotiator) attempt() {
	n.next++
	n.state.Attempts++
	attempt := n.state.Attempts

	var err error
	gen := n.gen
	n.sched.Go(func() {
		err = n.cfg.IO.WriteMode(n.ctx, n.cfg.DeviceID, n.cfg.Params.Attribute, n.cfg.Params.Value)
	}, func() {
		if n.closed || gen != n.gen {
			return
		}
		if err != nil {
			n.failed(attempt, fmt.Errorf("write mode: %w", err))
			return
		}
		n.arm(n.cfg.Params.Settle, func() { n.verify(attempt) })
	})
}

func (n *Negotiator) verify(attempt int) {
	var (
		got int
		err error
	)
	gen := n.gen
	n.sched.Go(func() {
		got, err = n.cfg.IO.ReadMode(n.ctx, n.cfg.DeviceID, n.cfg.Params.Attribute)
	}, func() {
		if n.closed || gen != n.gen {
			return
		}
		if err == nil && got != n.cfg.Params.Value {
			err = fmt.Errorf("read back %d, want %d: %w", got, n.cfg.Params.Value, ErrMismatch)
		}
		if err != nil {
			n.failed(attempt, err)
			return
		}
		n.verified()
	})
}

func (n *Negotiator) failed(attempt int, err error) {
	n.logger.Debug("mode attempt failed", "attempt", attempt, "error", err)
	if n.next < len(n.cfg.Schedule) {
		delay := n.roundStart.Add(n.cfg.Schedule[n.next]).Sub(n.sched.Now())
		if delay < 0 {
			delay = 0
		}
		n.arm(delay, n.attempt)
		return
	}
	n.logger.Warn("mode unverified, continuing degraded", "attempts", n.state.Attempts, "error", err)
	n.state.Phase = PhaseUnverified
	n.changed(ModeReduced)
	n.arm(n.cfg.Reverify, n.beginRound)
}

func (n *Negotiator) verified() {
	now := n.sched.Now()
	n.logger.Info("mode verified", "attempts", n.state.Attempts)
	n.state.Phase = PhaseVerified
	n.state.LastVerifiedAt = now
	n.changed(ModeFull)
	n.save(Record{Mode: ModeFull, VerifiedAt: now})
	n.arm(n.cfg.Reverify, n.reverify)
}

// reverify reads the attribute without writing. A device that reverted is
// treated as reduced until a new round succeeds.
func (n *Negotiator) reverify() {
	var (
		got int
		err error
	)
	gen := n.gen
	n.sched.Go(func() {
		got, err = n.cfg.IO.ReadMode(n.ctx, n.cfg.DeviceID, n.cfg.Params.Attribute)
	}, func() {
		if n.closed || gen != n.gen {
			return
		}
		if err == nil && got == n.cfg.Params.Value {
			now := n.sched.Now()
			n.state.LastVerifiedAt = now
			n.save(Record{Mode: ModeFull, VerifiedAt: now})
			n.arm(n.cfg.Reverify, n.reverify)
			return
		}
		if err == nil {
			err = fmt.Errorf("read back %d, want %d: %w", got, n.cfg.Params.Value, ErrMismatch)
		}
		n.logger.Info("mode re-verification failed", "error", err)
		n.changed(ModeReduced)
		n.beginRound()
	})
}

func (n *Negotiator) save(rec Record) {
	if n.cfg.Store == nil {
		return
	}
	var err error
	n.sched.Go(func() {
		err = n.cfg.Store.Save(n.ctx, n.cfg.DeviceID, rec)
	}, func() {
		if err != nil && !n.closed {
			n.logger.Warn("mode record not saved", "error", err)
		}
	})
}

func (n *Negotiator) changed(m Mode) {
	if n.state.Mode == m {
		return
	}
	n.state.Mode = m
	if n.cfg.OnChange != nil {
		n.cfg.OnChange(m)
	}
}

// arm replaces the single pending timer.
func (n *Negotiator) arm(d time.Duration, fire func()) {
	n.disarm()
	gen := n.gen
	n.timer = n.sched.AfterFunc(d, func() {
		if n.closed || gen != n.gen {
			return
		}
		n.timer = nil
		fire()
	})
}

func (n *Negotiator) disarm() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
}
