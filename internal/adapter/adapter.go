// Package adapter turns channel payloads from the protocol collaborator into
// canonical logic.RawPressEvent values. There is one adapter per channel
// kind. The Router applies a device's channel priority to a delivery and
// runs the raw-frame catch-all last.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/profile"
)

var (
	// ErrMalformed reports a payload an adapter cannot interpret.
	ErrMalformed = errors.New("malformed payload")
	// ErrNoButton reports a payload that maps to no button of the device.
	ErrNoButton = errors.New("no matching button")
)

// Device is what adapters need to know about the device a payload came from.
type Device struct {
	ID          string
	ButtonCount int
	Profile     profile.Profile
}

func (d Device) validButton(n int) bool {
	return n >= 1 && n <= d.ButtonCount
}

// ChannelEvent is one already-decoded payload. Which fields are set depends
// on the channel: Value for scene recall and multistate input, Command or
// Attribute for on/off, Data for vendor datapoints and raw frames.
type ChannelEvent struct {
	Endpoint  int
	Channel   logic.Channel
	Command   string
	Attribute *bool
	Value     *int
	Data      []byte
}

// Delivery is every channel payload that arrived together for one device.
type Delivery struct {
	DeviceID string
	Origin   logic.Origin
	Time     time.Time
	Events   []ChannelEvent
}

// Adapter interprets the payloads of exactly one channel kind. The returned
// event carries Button, Channel, Code, Signal and State; the router fills in
// device, time and origin.
type Adapter interface {
	Channel() logic.Channel
	Adapt(dev Device, ev ChannelEvent) (logic.RawPressEvent, error)
}

// DefaultAdapters returns one adapter for every channel kind.
func DefaultAdapters() []Adapter {
	return []Adapter{SceneRecall{}, OnOff{}, Multistate{}, VendorDatapoint{}, RawFrame{}}
}

// Router dispatches delivery payloads to the adapter registered for each
// channel.
type Router struct {
	adapters map[logic.Channel]Adapter
	logger   *slog.Logger
}

// NewRouter registers the given adapters, or DefaultAdapters when none are given.
func NewRouter(logger *slog.Logger, adapters ...Adapter) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if len(adapters) == 0 {
		adapters = DefaultAdapters()
	}
	r := &Router{adapters: make(map[logic.Channel]Adapter, len(adapters)), logger: logger}
	for _, a := range adapters {
		r.adapters[a.Channel()] = a
	}
	return r
}

// Adapter returns the adapter registered for ch, if any.
func (r *Router) Adapter(ch logic.Channel) (Adapter, bool) {
	a, ok := r.adapters[ch]
	return a, ok
}

// Route converts a delivery into raw events ordered by the device's channel
// priority. A raw frame is only interpreted when no earlier channel produced
// an event for the same endpoint. Payloads that cannot be interpreted are
// logged and skipped.
func (r *Router) Route(dev Device, d Delivery) []logic.RawPressEvent {
	order := make([]int, len(d.Events))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dev.Profile.Rank(d.Events[order[a]].Channel) < dev.Profile.Rank(d.Events[order[b]].Channel)
	})

	produced := make(map[int]bool)
	out := make([]logic.RawPressEvent, 0, len(d.Events))
	for _, i := range order {
		ce := d.Events[i]
		if ce.Channel == logic.ChannelRawFrame && produced[ce.Endpoint] {
			r.logger.Debug("raw frame superseded", "device", dev.ID, "endpoint", ce.Endpoint)
			continue
		}
		a, ok := r.Adapter(ce.Channel)
		if !ok {
			r.logger.Debug("no adapter for channel", "device", dev.ID, "channel", ce.Channel.String())
			continue
		}
		ev, err := a.Adapt(dev, ce)
		if err != nil {
			r.logger.Warn("payload dropped", "device", dev.ID, "channel", ce.Channel.String(),
				"endpoint", ce.Endpoint, "error", err)
			continue
		}
		ev.DeviceID = dev.ID
		ev.Channel = ce.Channel
		ev.Time = d.Time
		ev.Origin = d.Origin
		produced[ce.Endpoint] = true
		out = append(out, ev)
	}
	return out
}

func endpointButton(dev Device, endpoint int) (int, error) {
	if !dev.validButton(endpoint) {
		return 0, fmt.Errorf("endpoint %d of %d-button device: %w", endpoint, dev.ButtonCount, ErrNoButton)
	}
	return endpoint, nil
}
