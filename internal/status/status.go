// Package status provides a thread-safe status tracker for the button hub.
// It observes the hub and is read by HTTP handlers and heartbeats.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/button-hub/internal/hub"
	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/trigger"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing cmd-level helpers from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	TopicPrefix string
	HTTPAddr    string
	Redis       string
	GPIOPins    []int
}

// CardCounts tallies trigger card outcomes.
type CardCounts struct {
	Published int
	NotFound  int
	Failed    int
}

// LastGesture is the most recent gesture of a device.
type LastGesture struct {
	Button  int
	Gesture logic.Gesture
	Count   int
	At      time.Time
}

// DeviceSnapshot merges the hub's view of a device with what the tracker
// has counted for it.
type DeviceSnapshot struct {
	hub.DeviceStatus
	Gestures map[logic.Gesture]int
	Drops    map[logic.DropReason]int
	Cards    CardCounts
	Last     *LastGesture
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Devices       []DeviceSnapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Gestures returns the number of gestures across all devices.
func (s Snapshot) Gestures() int {
	n := 0
	for _, d := range s.Devices {
		for _, c := range d.Gestures {
			n += c
		}
	}
	return n
}

type deviceCounts struct {
	gestures map[logic.Gesture]int
	drops    map[logic.DropReason]int
	cards    CardCounts
	mode     mode.Mode
	last     *LastGesture
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// hub.Observer.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	counts  map[string]*deviceCounts
	devices func() []hub.DeviceStatus
	now     func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		counts: make(map[string]*deviceCounts),
		now:    time.Now,
	}
}

// SetDeviceSource sets where the live device list comes from, normally
// Hub.Devices.
func (t *Tracker) SetDeviceSource(f func() []hub.DeviceStatus) {
	t.mu.Lock()
	t.devices = f
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffered sets the number of triggers waiting for a connection.
func (t *Tracker) SetMQTTBuffered(n int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = n
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

func (t *Tracker) device(id string) *deviceCounts {
	c, ok := t.counts[id]
	if !ok {
		c = &deviceCounts{
			gestures: make(map[logic.Gesture]int),
			drops:    make(map[logic.DropReason]int),
		}
		t.counts[id] = c
	}
	return c
}

func (t *Tracker) DeviceAdded(id string) {
	t.mu.Lock()
	t.device(id)
	t.mu.Unlock()
}

func (t *Tracker) DeviceRemoved(id string) {
	t.mu.Lock()
	delete(t.counts, id)
	t.mu.Unlock()
}

func (t *Tracker) GestureClassified(g logic.GestureEvent) {
	t.mu.Lock()
	c := t.device(g.DeviceID)
	c.gestures[g.Gesture]++
	c.last = &LastGesture{Button: g.Button, Gesture: g.Gesture, Count: g.RepeatCount, At: g.Timestamp}
	t.mu.Unlock()
}

func (t *Tracker) EventDropped(id string, _ logic.Channel, reason logic.DropReason) {
	t.mu.Lock()
	t.device(id).drops[reason]++
	t.mu.Unlock()
}

func (t *Tracker) ModeChanged(id string, m mode.Mode) {
	t.mu.Lock()
	t.device(id).mode = m
	t.mu.Unlock()
}

func (t *Tracker) TriggerPublished(id string, res trigger.Result) {
	t.mu.Lock()
	c := t.device(id)
	c.cards.Published += len(res.Published)
	c.cards.NotFound += len(res.NotFound)
	c.cards.Failed += len(res.Failed)
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	source := t.devices
	t.mu.RUnlock()

	// The source runs on device contexts, which may be waiting on our lock.
	var live []hub.DeviceStatus
	if source != nil {
		live = source()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snap
	s.Now = t.now()

	byID := make(map[string]hub.DeviceStatus, len(live))
	for _, d := range live {
		byID[d.ID] = d
	}
	ids := make([]string, 0, len(t.counts)+len(live))
	for id := range t.counts {
		ids = append(ids, id)
	}
	for id := range byID {
		if _, ok := t.counts[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	s.Devices = make([]DeviceSnapshot, 0, len(ids))
	for _, id := range ids {
		ds := DeviceSnapshot{
			Gestures: make(map[logic.Gesture]int),
			Drops:    make(map[logic.DropReason]int),
		}
		if st, ok := byID[id]; ok {
			ds.DeviceStatus = st
		} else {
			ds.DeviceStatus = hub.DeviceStatus{ID: id}
		}
		if c, ok := t.counts[id]; ok {
			for k, v := range c.gestures {
				ds.Gestures[k] = v
			}
			for k, v := range c.drops {
				ds.Drops[k] = v
			}
			ds.Cards = c.cards
			if c.last != nil {
				last := *c.last
				ds.Last = &last
			}
			if _, live := byID[id]; !live {
				ds.Mode = c.mode
			}
		}
		s.Devices = append(s.Devices, ds)
	}
	return s
}
