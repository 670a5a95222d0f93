package hub

import (
	"log/slog"

	"github.com/sweeney/button-hub/internal/adapter"
	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/profile"
	"github.com/sweeney/button-hub/internal/sched"
	"github.com/sweeney/button-hub/internal/trigger"
)

// device is the state bundle of one device context. Every method except
// construction runs on ctx.
type device struct {
	hub        *Hub
	cfg        DeviceConfig
	configured bool
	ctx        sched.Context
	logger     *slog.Logger

	prof       profile.Profile
	engine     *logic.Engine
	negotiator *mode.Negotiator
	mode       mode.Mode

	queue      []logic.GestureEvent
	publishing bool
	closed     bool
}

func (d *device) start() {
	h := d.hub
	d.prof = h.cfg.Resolver.Resolve(d.cfg.Identity.Manufacturer, d.cfg.Identity.Model)
	d.engine = logic.NewEngine(d.ctx, logic.EngineConfig{
		DeviceID:    d.cfg.ID,
		Timing:      h.cfg.Timing,
		Codes:       d.prof.CodeSource(false),
		EmitRelease: d.prof.EmitRelease,
		Sink:        d.gesture,
		OnDrop:      d.dropped,
		Logger:      d.logger,
	})
	h.cfg.Observer.DeviceAdded(d.cfg.ID)
	d.logger.Info("device created", "profile", d.prof.Name, "buttons", d.cfg.ButtonCount, "driver", d.cfg.Driver)
	d.startNegotiation()
}

func (d *device) handle(in Inbound) {
	if d.closed {
		return
	}
	if !in.Identity.IsZero() && in.Identity != d.cfg.Identity {
		d.cfg.Identity = in.Identity
		d.reresolve()
	}
	if !d.configured && in.ButtonCount > 0 {
		d.cfg.ButtonCount = clampButtons(in.ButtonCount)
	}

	dev := adapter.Device{ID: d.cfg.ID, ButtonCount: d.cfg.ButtonCount, Profile: d.prof}
	for _, ev := range d.hub.cfg.Router.Route(dev, in.Delivery) {
		d.engine.Handle(ev)
	}
}

// reresolve applies a profile change once the identity becomes known.
func (d *device) reresolve() {
	p := d.hub.cfg.Resolver.Resolve(d.cfg.Identity.Manufacturer, d.cfg.Identity.Model)
	if p.Name == d.prof.Name {
		d.prof = p
		return
	}
	d.logger.Info("profile resolved", "profile", p.Name, "previous", d.prof.Name)
	if d.negotiator != nil {
		d.negotiator.Close()
		d.negotiator = nil
	}
	d.prof = p
	d.mode = mode.ModeUnknown
	d.engine.SetCodes(p.CodeSource(false))
	d.engine.SetEmitRelease(p.EmitRelease)
	d.startNegotiation()
}

func (d *device) startNegotiation() {
	h := d.hub
	if !d.prof.RequiresModeSwitch || h.cfg.ModeIO == nil {
		return
	}
	d.negotiator = mode.NewNegotiator(d.ctx, mode.Config{
		DeviceID: d.cfg.ID,
		Params:   d.prof.Mode,
		IO:       h.cfg.ModeIO,
		Store:    h.cfg.ModeStore,
		Reverify: h.cfg.Reverify,
		OnChange: d.modeChanged,
		Logger:   d.logger,
	})
	d.negotiator.Start()
}

func (d *device) modeChanged(m mode.Mode) {
	d.mode = m
	d.engine.SetCodes(d.prof.CodeSource(m == mode.ModeFull))
	d.hub.cfg.Observer.ModeChanged(d.cfg.ID, m)
}

func (d *device) gesture(g logic.GestureEvent) {
	d.logger.Info("gesture", "button", g.Button, "gesture", string(g.Gesture), "count", g.RepeatCount,
		"channel", g.Channel.String(), "origin", g.Origin.String())
	d.hub.cfg.Observer.GestureClassified(g)
	d.queue = append(d.queue, g)
	if !d.publishing {
		d.publishNext()
	}
}

// publishNext publishes queued gestures one at a time, off the context, so
// a slow broker never delays classification and per-device order holds.
func (d *device) publishNext() {
	emitter := d.hub.cfg.Emitter
	if d.closed || len(d.queue) == 0 || emitter == nil {
		d.publishing = false
		d.queue = nil
		return
	}
	g := d.queue[0]
	d.queue = d.queue[1:]
	d.publishing = true

	dev := trigger.Device{ID: d.cfg.ID, Driver: d.cfg.Driver, ButtonCount: d.cfg.ButtonCount}
	ctx := d.hub.ctx
	var res trigger.Result
	d.ctx.Go(func() {
		res = emitter.Emit(ctx, dev, g)
	}, func() {
		d.hub.cfg.Observer.TriggerPublished(d.cfg.ID, res)
		d.publishNext()
	})
}

func (d *device) dropped(ev logic.RawPressEvent, reason logic.DropReason) {
	d.hub.cfg.Observer.EventDropped(d.cfg.ID, ev.Channel, reason)
}

func (d *device) teardown() {
	if d.closed {
		return
	}
	d.closed = true
	if d.engine != nil {
		d.engine.Close()
	}
	if d.negotiator != nil {
		d.negotiator.Close()
	}
	d.queue = nil
}

func (d *device) status() DeviceStatus {
	s := DeviceStatus{
		ID:           d.cfg.ID,
		Driver:       d.cfg.Driver,
		ButtonCount:  d.cfg.ButtonCount,
		Profile:      d.prof.Name,
		Manufacturer: d.cfg.Identity.Manufacturer,
		Model:        d.cfg.Identity.Model,
		Mode:         d.mode,
	}
	if d.negotiator != nil {
		s.Negotiated = true
		s.ModePhase = d.negotiator.State().Phase
	}
	if d.engine != nil {
		s.Buttons = d.engine.Snapshot()
	}
	return s
}
