package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Gestures      int          `json:"gestures"`
	Devices       []DeviceJSON `json:"devices"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// DeviceJSON is the JSON representation of one device.
type DeviceJSON struct {
	ID           string         `json:"id"`
	Driver       string         `json:"driver,omitempty"`
	ButtonCount  int            `json:"button_count"`
	Profile      string         `json:"profile,omitempty"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	Model        string         `json:"model,omitempty"`
	Mode         string         `json:"mode"`
	ModePhase    string         `json:"mode_phase,omitempty"`
	Gestures     map[string]int `json:"gestures"`
	Drops        map[string]int `json:"drops"`
	Cards        CardsJSON      `json:"cards"`
	Last         *LastJSON      `json:"last_gesture,omitempty"`
	Buttons      []ButtonJSON   `json:"buttons,omitempty"`
}

// CardsJSON is the JSON representation of trigger card outcomes.
type CardsJSON struct {
	Published int `json:"published"`
	NotFound  int `json:"not_found"`
	Failed    int `json:"failed"`
}

// LastJSON is the JSON representation of the latest gesture.
type LastJSON struct {
	Button  int    `json:"button"`
	Gesture string `json:"gesture"`
	Count   int    `json:"count"`
	At      string `json:"at"`
}

// ButtonJSON is the classifier state of one button.
type ButtonJSON struct {
	Button       int    `json:"button"`
	Phase        string `json:"phase"`
	PendingCount int    `json:"pending_count"`
	TimerPending bool   `json:"timer_pending"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPAddr    string `json:"http_addr"`
	Redis       string `json:"redis,omitempty"`
	GPIOPins    []int  `json:"gpio_pins,omitempty"`
}

func buildDevice(d DeviceSnapshot) DeviceJSON {
	dj := DeviceJSON{
		ID:           d.ID,
		Driver:       d.Driver,
		ButtonCount:  d.ButtonCount,
		Profile:      d.Profile,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		Mode:         d.Mode.String(),
		Gestures:     make(map[string]int, len(d.Gestures)),
		Drops:        make(map[string]int, len(d.Drops)),
		Cards: CardsJSON{
			Published: d.Cards.Published,
			NotFound:  d.Cards.NotFound,
			Failed:    d.Cards.Failed,
		},
	}
	if d.Negotiated {
		dj.ModePhase = d.ModePhase.String()
	}
	for g, n := range d.Gestures {
		dj.Gestures[string(g)] = n
	}
	for r, n := range d.Drops {
		dj.Drops[string(r)] = n
	}
	if d.Last != nil {
		dj.Last = &LastJSON{
			Button:  d.Last.Button,
			Gesture: string(d.Last.Gesture),
			Count:   d.Last.Count,
			At:      d.Last.At.UTC().Format(time.RFC3339Nano),
		}
	}
	for _, b := range d.Buttons {
		dj.Buttons = append(dj.Buttons, ButtonJSON{
			Button:       b.Button,
			Phase:        b.Phase.String(),
			PendingCount: b.PendingCount,
			TimerPending: b.TimerPending,
		})
	}
	return dj
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
		},
		Gestures: snap.Gestures(),
		Devices:  make([]DeviceJSON, 0, len(snap.Devices)),
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
			Redis:       snap.Config.Redis,
			GPIOPins:    snap.Config.GPIOPins,
		},
	}
	for _, d := range snap.Devices {
		inner.Devices = append(inner.Devices, buildDevice(d))
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Per-button classifier state is left out to keep heartbeats small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	for i := range inner.Devices {
		inner.Devices[i].Buttons = nil
	}
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
