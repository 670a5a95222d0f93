package gpio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/button-hub/internal/adapter"
	"github.com/sweeney/button-hub/internal/hub"
	"github.com/sweeney/button-hub/internal/logic"
)

// DefaultDevice is the device id wired buttons report under.
const DefaultDevice = "gpio"

// Source turns pin samples into OnOff attribute deliveries for one local
// device. Pin i reports as endpoint i+1.
type Source struct {
	DeviceID string
	Reader   Reader
	Deliver  func(hub.Inbound) bool
	Now      func() time.Time
	Logger   *slog.Logger

	last []bool
}

// Poll reads every pin once. The first successful read reports every pin;
// later reads report only pins that changed. It returns the number of
// events delivered.
func (s *Source) Poll() (int, error) {
	values, err := s.Reader.Read()
	if err != nil {
		return 0, fmt.Errorf("poll gpio: %w", err)
	}

	var events []adapter.ChannelEvent
	for i, v := range values {
		if s.last != nil && i < len(s.last) && s.last[i] == v {
			continue
		}
		on := v
		events = append(events, adapter.ChannelEvent{
			Endpoint:  i + 1,
			Channel:   logic.ChannelOnOff,
			Attribute: &on,
		})
	}
	s.last = values
	if len(events) == 0 {
		return 0, nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	id := s.DeviceID
	if id == "" {
		id = DefaultDevice
	}
	in := hub.Inbound{
		Delivery: adapter.Delivery{
			DeviceID: id,
			Origin:   logic.OriginPhysical,
			Time:     now(),
			Events:   events,
		},
		ButtonCount: len(values),
	}
	if !s.Deliver(in) {
		if s.Logger != nil {
			s.Logger.Warn("gpio delivery rejected", "device", id)
		}
		return 0, nil
	}
	return len(events), nil
}
