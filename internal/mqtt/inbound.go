package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sweeney/button-hub/internal/adapter"
	"github.com/sweeney/button-hub/internal/hub"
	"github.com/sweeney/button-hub/internal/logic"
)

// ErrBadMessage reports an inbound message that cannot be decoded.
var ErrBadMessage = errors.New("bad inbound message")

// DeliveryJSON is the inbound message carrying one delivery.
type DeliveryJSON struct {
	Device       string      `json:"device"`
	Endpoint     int         `json:"endpoint"`
	Origin       string      `json:"origin"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
	ButtonCount  int         `json:"button_count"`
	Events       []EventJSON `json:"events"`
}

// EventJSON is one channel payload. Endpoint defaults to the delivery's;
// Data is base64 encoded.
type EventJSON struct {
	Channel   string `json:"channel"`
	Endpoint  *int   `json:"endpoint,omitempty"`
	Command   string `json:"command,omitempty"`
	Attribute *bool  `json:"attribute,omitempty"`
	Value     *int   `json:"value,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// DecodeDelivery parses an inbound delivery. topicDevice, the device id from
// the topic, is used when the payload carries none. Events on unknown
// channels are kept with a zero channel; the router has no adapter for them.
// The receive time stamps the delivery.
func DecodeDelivery(topicDevice string, payload []byte, received time.Time) (hub.Inbound, error) {
	var dj DeliveryJSON
	if err := json.Unmarshal(payload, &dj); err != nil {
		return hub.Inbound{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if dj.Device == "" {
		dj.Device = topicDevice
	}
	if dj.Device == "" {
		return hub.Inbound{}, fmt.Errorf("%w: no device id", ErrBadMessage)
	}
	endpoint := dj.Endpoint
	if endpoint == 0 {
		endpoint = 1
	}

	events := make([]adapter.ChannelEvent, 0, len(dj.Events))
	for _, ej := range dj.Events {
		ch, _ := logic.ParseChannel(ej.Channel)
		ep := endpoint
		if ej.Endpoint != nil {
			ep = *ej.Endpoint
		}
		events = append(events, adapter.ChannelEvent{
			Endpoint:  ep,
			Channel:   ch,
			Command:   ej.Command,
			Attribute: ej.Attribute,
			Value:     ej.Value,
			Data:      ej.Data,
		})
	}

	return hub.Inbound{
		Delivery: adapter.Delivery{
			DeviceID: dj.Device,
			Origin:   logic.ParseOrigin(dj.Origin),
			Time:     received,
			Events:   events,
		},
		Identity:    hub.Identity{Manufacturer: dj.Manufacturer, Model: dj.Model},
		ButtonCount: dj.ButtonCount,
	}, nil
}

// Handler dispatches inbound messages by topic.
type Handler struct {
	Topics     Topics
	Deliver    func(hub.Inbound) bool
	Remove     func(deviceID string) bool
	ModeResult func(payload []byte)
	Now        func() time.Time
	Logger     *slog.Logger
}

// HandleMessage routes one inbound message. Malformed messages are logged and dropped.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rest, ok := strings.CutPrefix(topic, h.Topics.Prefix+"/")
	if !ok {
		logger.Debug("message outside prefix ignored", "topic", topic)
		return
	}
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[0] == "events" && h.Deliver != nil:
		now := time.Now
		if h.Now != nil {
			now = h.Now
		}
		in, err := DecodeDelivery(parts[1], payload, now())
		if err != nil {
			logger.Warn("delivery dropped", "topic", topic, "error", err)
			return
		}
		if !h.Deliver(in) {
			logger.Warn("delivery rejected", "device", in.Delivery.DeviceID)
		}
	case len(parts) == 2 && parts[0] == "remove" && h.Remove != nil:
		if !h.Remove(parts[1]) {
			logger.Debug("remove for unknown device", "device", parts[1])
		}
	case len(parts) == 3 && parts[0] == "mode" && parts[2] == "result" && h.ModeResult != nil:
		h.ModeResult(payload)
	default:
		logger.Debug("unhandled topic", "topic", topic)
	}
}
