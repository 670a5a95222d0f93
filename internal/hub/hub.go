// Package hub owns the per-device processing contexts. Every device gets its
// own context (a goroutine draining an inbox) holding its engine, profile and
// mode negotiator; devices never share mutable state, so nothing inside a
// context needs a lock.
package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/button-hub/internal/adapter"
	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/profile"
	"github.com/sweeney/button-hub/internal/sched"
	"github.com/sweeney/button-hub/internal/trigger"
)

// MaxButtons is the largest supported button count.
const MaxButtons = 8

// DefaultDriver is used for devices that appear without configuration.
const DefaultDriver = "generic"

// Identity is the vendor/model pair a device reports. Either may be empty
// until the device has been interviewed.
type Identity struct {
	Manufacturer string
	Model        string
}

// IsZero reports whether nothing is known.
func (i Identity) IsZero() bool { return i.Manufacturer == "" && i.Model == "" }

// Inbound is one delivery plus whatever the collaborator knows about the
// sending device.
type Inbound struct {
	Delivery    adapter.Delivery
	Identity    Identity
	ButtonCount int
}

// DeviceConfig is the externally supplied configuration of a device.
type DeviceConfig struct {
	ID          string
	Driver      string
	ButtonCount int
	Identity    Identity
}

// Config configures a Hub.
type Config struct {
	Timing   logic.Timing
	Reverify time.Duration

	Resolver *profile.Resolver
	Router   *adapter.Router
	Emitter  *trigger.Emitter

	// ModeIO is optional; without it no device is negotiated.
	ModeIO    mode.IO
	ModeStore mode.Store

	Devices  []DeviceConfig
	Observer Observer

	// NewContext creates a device context. Defaults to a sched.Loop.
	NewContext func() sched.Context
	InboxSize  int

	Logger *slog.Logger
}

// Hub routes deliveries to device contexts, creating them on first contact.
type Hub struct {
	cfg    Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	devices map[string]*device
	known   map[string]DeviceConfig
	closed  bool
}

// New creates a hub. Configured devices are created lazily like any other.
func New(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = profile.NewResolver()
	}
	if cfg.Router == nil {
		cfg.Router = adapter.NewRouter(cfg.Logger)
	}
	if cfg.Observer == nil {
		cfg.Observer = Observers(nil)
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.NewContext == nil {
		size := cfg.InboxSize
		cfg.NewContext = func() sched.Context { return sched.NewLoop(size) }
	}
	known := make(map[string]DeviceConfig, len(cfg.Devices))
	for _, d := range cfg.Devices {
		known[d.ID] = d
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "hub"),
		ctx:     ctx,
		cancel:  cancel,
		devices: make(map[string]*device),
		known:   known,
	}
}

// Deliver hands a delivery to its device's context. It reports whether the
// delivery was accepted.
func (h *Hub) Deliver(in Inbound) bool {
	id := in.Delivery.DeviceID
	if id == "" {
		h.logger.Warn("delivery without device id dropped")
		return false
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	d, ok := h.devices[id]
	if !ok {
		d = h.newDevice(id, in)
		h.devices[id] = d
		go d.ctx.Run()
		// First message on a fresh inbox never blocks.
		d.ctx.Post(d.start)
	}
	h.mu.Unlock()

	return d.ctx.Post(func() { d.handle(in) })
}

func (h *Hub) newDevice(id string, in Inbound) *device {
	cfg, configured := h.known[id]
	if !configured {
		cfg = DeviceConfig{ID: id, Driver: DefaultDriver, ButtonCount: in.ButtonCount, Identity: in.Identity}
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultDriver
	}
	cfg.ButtonCount = clampButtons(cfg.ButtonCount)
	ctx := h.cfg.NewContext()
	return &device{
		hub:        h,
		cfg:        cfg,
		configured: configured,
		ctx:        ctx,
		logger:     h.cfg.Logger.With("device", id),
	}
}

// Remove tears down a device context: every timer is cancelled and later
// callbacks are discarded. It reports whether the device existed.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	d, ok := h.devices[id]
	delete(h.devices, id)
	h.mu.Unlock()
	if !ok {
		return false
	}
	d.ctx.Do(d.teardown)
	d.ctx.Stop()
	h.cfg.Observer.DeviceRemoved(id)
	h.logger.Info("device removed", "device", id)
	return true
}

// Close tears down every device and rejects further deliveries.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	devices := h.devices
	h.devices = make(map[string]*device)
	h.mu.Unlock()

	for _, d := range devices {
		d.ctx.Do(d.teardown)
		d.ctx.Stop()
	}
	h.cancel()
}

// DeviceStatus is a read-only view of one device context.
type DeviceStatus struct {
	ID           string
	Driver       string
	ButtonCount  int
	Profile      string
	Manufacturer string
	Model        string
	Mode         mode.Mode
	ModePhase    mode.Phase
	Negotiated   bool
	Buttons      []logic.ButtonSnapshot
}

// Devices returns the status of every live device, sorted by id. Each view
// is taken on the device's own context.
func (h *Hub) Devices() []DeviceStatus {
	h.mu.Lock()
	devices := make([]*device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	h.mu.Unlock()

	out := make([]DeviceStatus, 0, len(devices))
	for _, d := range devices {
		var s DeviceStatus
		if d.ctx.Do(func() { s = d.status() }) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clampButtons(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxButtons {
		return MaxButtons
	}
	return n
}
