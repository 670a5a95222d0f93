package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-hub/internal/adapter"
	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/profile"
	"github.com/sweeney/button-hub/internal/sched"
	"github.com/sweeney/button-hub/internal/trigger"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	device string
	card   string
	tokens map[string]any
}

type recorder struct {
	mu    sync.Mutex
	calls []published
}

func (r *recorder) PublishTrigger(_ context.Context, deviceID, cardID string, tokens map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, published{deviceID, cardID, tokens})
	return nil
}

func (r *recorder) gestures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if c.card == trigger.PrimaryCard {
			out = append(out, c.tokens["gesture"].(string))
		}
	}
	return out
}

type countingObserver struct {
	added, removed int
	gestures       []logic.GestureEvent
	drops          map[logic.DropReason]int
	modes          []mode.Mode
	results        int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{drops: make(map[logic.DropReason]int)}
}

func (o *countingObserver) DeviceAdded(string)   { o.added++ }
func (o *countingObserver) DeviceRemoved(string) { o.removed++ }
func (o *countingObserver) GestureClassified(g logic.GestureEvent) {
	o.gestures = append(o.gestures, g)
}
func (o *countingObserver) EventDropped(_ string, _ logic.Channel, r logic.DropReason) { o.drops[r]++ }
func (o *countingObserver) ModeChanged(_ string, m mode.Mode)                          { o.modes = append(o.modes, m) }
func (o *countingObserver) TriggerPublished(string, trigger.Result)                    { o.results++ }

type harness struct {
	clock *sched.Fake
	pub   *recorder
	obs   *countingObserver
	io    *mode.FakeIO
	hub   *Hub
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{clock: sched.NewFake(t0), pub: &recorder{}, obs: newCountingObserver()}
	h.io = &mode.FakeIO{Clock: h.clock.Now}
	cfg := Config{
		Timing:     logic.DefaultTiming(),
		Reverify:   6 * time.Hour,
		Emitter:    trigger.NewEmitter(h.pub, nil, logger),
		ModeIO:     h.io,
		Observer:   h.obs,
		NewContext: func() sched.Context { return h.clock },
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.hub = New(cfg)
	t.Cleanup(h.hub.Close)
	return h
}

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func (h *harness) deliverAt(ms int, id string, events ...adapter.ChannelEvent) bool {
	h.clock.AdvanceTo(t0.Add(time.Duration(ms) * time.Millisecond))
	return h.hub.Deliver(Inbound{Delivery: adapter.Delivery{DeviceID: id, Time: h.clock.Now(), Events: events}})
}

func toggle(endpoint int) adapter.ChannelEvent {
	return adapter.ChannelEvent{Endpoint: endpoint, Channel: logic.ChannelOnOff, Command: "toggle"}
}

func TestTripleToggleBecomesOneMultiGesture(t *testing.T) {
	h := newHarness(t, nil)

	h.deliverAt(0, "hall", toggle(1))
	h.deliverAt(150, "hall", toggle(1))
	h.deliverAt(300, "hall", toggle(1))
	h.clock.AdvanceTo(t0.Add(699 * time.Millisecond))
	assert.Empty(t, h.pub.gestures())

	h.clock.AdvanceTo(t0.Add(700 * time.Millisecond))
	require.Equal(t, []string{"multi"}, h.pub.gestures())
	assert.Equal(t, 3, h.pub.calls[0].tokens["count"])
	assert.Equal(t, "hall", h.pub.calls[0].device)
	require.Len(t, h.obs.gestures, 1)
	assert.Equal(t, t0.Add(700*time.Millisecond), h.obs.gestures[0].Timestamp)
}

func TestSceneRecallEmitsImmediately(t *testing.T) {
	h := newHarness(t, nil)

	h.deliverAt(0, "hall", adapter.ChannelEvent{Endpoint: 1, Channel: logic.ChannelSceneRecall, Value: intp(2)})

	assert.Equal(t, []string{"long"}, h.pub.gestures())
	assert.Equal(t, 1, h.obs.results)
}

func TestDevicesAreCreatedLazily(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Devices = []DeviceConfig{{ID: "desk", Driver: "tuya", ButtonCount: 2}}
	})

	assert.Empty(t, h.hub.Devices())

	h.hub.Deliver(Inbound{Delivery: adapter.Delivery{DeviceID: "hall", Time: t0}, ButtonCount: 4})
	h.hub.Deliver(Inbound{Delivery: adapter.Delivery{DeviceID: "desk", Time: t0}, ButtonCount: 6})
	h.hub.Deliver(Inbound{Delivery: adapter.Delivery{DeviceID: "attic", Time: t0}, ButtonCount: 40})

	devs := h.hub.Devices()
	require.Len(t, devs, 3)
	assert.Equal(t, "attic", devs[0].ID)
	assert.Equal(t, MaxButtons, devs[0].ButtonCount)
	assert.Equal(t, "desk", devs[1].ID)
	assert.Equal(t, 2, devs[1].ButtonCount, "configured button count wins")
	assert.Equal(t, "tuya", devs[1].Driver)
	assert.Equal(t, "hall", devs[2].ID)
	assert.Equal(t, 4, devs[2].ButtonCount)
	assert.Equal(t, DefaultDriver, devs[2].Driver)
	assert.Equal(t, "default", devs[2].Profile)
	assert.Equal(t, 3, h.obs.added)
}

func TestIdentityArrivalStartsNegotiation(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Resolver = profile.NewResolver(profile.Profile{
			Name:               "switch",
			Manufacturer:       "_TZ3000_*",
			Model:              "TS004F",
			RawCodeToGesture:   logic.CodeMap{0: logic.GestureSingle},
			RequiresModeSwitch: true,
			Mode: profile.ModeParameters{
				Attribute: 0x8004,
				Value:     1,
				FullCodes: logic.CodeMap{0: logic.GestureDouble},
			},
		})
	})
	h.io.WriteErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}
	scene := adapter.ChannelEvent{Endpoint: 1, Channel: logic.ChannelSceneRecall, Value: intp(0)}

	// First contact: identity unknown, default profile, no negotiation.
	h.deliverAt(0, "hall", scene)
	assert.Equal(t, []string{"single"}, h.pub.gestures())
	assert.Empty(t, h.io.Writes())

	h.clock.AdvanceTo(t0.Add(time.Second))
	h.hub.Deliver(Inbound{
		Delivery: adapter.Delivery{DeviceID: "hall", Time: h.clock.Now()},
		Identity: Identity{Manufacturer: "_TZ3000_abc", Model: "TS004F"},
	})
	devs := h.hub.Devices()
	require.Len(t, devs, 1)
	assert.Equal(t, "switch", devs[0].Profile)
	assert.Equal(t, mode.PhaseAttempting, devs[0].ModePhase)

	h.clock.AdvanceTo(t0.Add(time.Second + 525*time.Millisecond))
	devs = h.hub.Devices()
	assert.Equal(t, mode.ModeFull, devs[0].Mode)
	assert.Equal(t, mode.PhaseVerified, devs[0].ModePhase)
	assert.Len(t, h.io.Writes(), 5)
	assert.Equal(t, []mode.Mode{mode.ModeFull}, h.obs.modes)

	// Codes now resolve through the full-mode map.
	h.deliverAt(5000, "hall", scene)
	assert.Equal(t, []string{"single", "double"}, h.pub.gestures())
}

func TestRemoveCancelsTimers(t *testing.T) {
	h := newHarness(t, nil)
	attr := func(v bool) adapter.ChannelEvent {
		return adapter.ChannelEvent{Endpoint: 1, Channel: logic.ChannelOnOff, Attribute: boolp(v)}
	}

	h.deliverAt(0, "hall", attr(false))
	h.deliverAt(1000, "hall", attr(true))
	assert.Equal(t, 1, h.obs.drops[logic.DropInit])
	require.Len(t, h.hub.Devices(), 1)
	assert.Equal(t, logic.PhaseAwaitingRelease, h.hub.Devices()[0].Buttons[0].Phase)

	assert.True(t, h.hub.Remove("hall"))
	assert.False(t, h.hub.Remove("hall"))
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Empty(t, h.pub.gestures())
	assert.Empty(t, h.hub.Devices())
	assert.Equal(t, 1, h.obs.removed)
}

func TestHeldAttributeLongThenRelease(t *testing.T) {
	h := newHarness(t, nil)
	attr := func(v bool) adapter.ChannelEvent {
		return adapter.ChannelEvent{Endpoint: 1, Channel: logic.ChannelOnOff, Attribute: boolp(v)}
	}

	h.deliverAt(0, "hall", attr(false))
	h.deliverAt(1000, "hall", attr(true))
	h.deliverAt(2500, "hall", attr(false))

	assert.Equal(t, []string{"long", "release"}, h.pub.gestures())
}

func TestVirtualAndPhysicalPublishOnce(t *testing.T) {
	h := newHarness(t, nil)

	h.clock.AdvanceTo(t0.Add(1000 * time.Millisecond))
	h.hub.Deliver(Inbound{Delivery: adapter.Delivery{
		DeviceID: "hall", Origin: logic.OriginVirtual, Time: h.clock.Now(),
		Events: []adapter.ChannelEvent{{Endpoint: 1, Channel: logic.ChannelSceneRecall, Value: intp(0)}},
	}})
	h.deliverAt(1300, "hall", adapter.ChannelEvent{Endpoint: 1, Channel: logic.ChannelSceneRecall, Value: intp(0)})
	h.clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"single"}, h.pub.gestures())
	assert.Equal(t, 1, h.obs.drops[logic.DropOrigin])
}

func TestDeliverRejected(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.hub.Deliver(Inbound{}))
	h.hub.Close()
	assert.False(t, h.deliverAt(0, "hall", toggle(1)))
}
