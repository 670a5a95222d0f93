package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/button-hub/internal/hub"
	"github.com/sweeney/button-hub/internal/logic"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(
		[]bool{true, false},
		[]bool{false, true},
	)

	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[0] || got[1] {
		t.Errorf("sample 0: expected [true false], got %v", got)
	}

	got, _ = f.Read()
	if got[0] || !got[1] {
		t.Errorf("sample 1: expected [false true], got %v", got)
	}

	// Third read should repeat last sample
	got, _ = f.Read()
	if got[0] || !got[1] {
		t.Errorf("sample 2 (repeat): expected [false true], got %v", got)
	}
}

func TestFakeReaderReturnsCopies(t *testing.T) {
	f := NewFakeReader([]bool{true})
	got, _ := f.Read()
	got[0] = false

	again, _ := f.Read()
	if !again[0] {
		t.Error("caller mutation leaked into the script")
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()

	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]bool{true})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]bool{true}, []bool{false})
	f.Read()

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed {
		t.Error("reset should clear Closed")
	}
	got, _ := f.Read()
	if !got[0] {
		t.Errorf("after reset: expected first sample, got %v", got)
	}
}

type captured struct {
	inbound []hub.Inbound
	accept  bool
}

func (c *captured) deliver(in hub.Inbound) bool {
	c.inbound = append(c.inbound, in)
	return c.accept
}

func newSource(r Reader, c *captured) *Source {
	return &Source{
		DeviceID: "panel",
		Reader:   r,
		Deliver:  c.deliver,
		Now:      func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestSourceFirstPollReportsEveryPin(t *testing.T) {
	c := &captured{accept: true}
	s := newSource(NewFakeReader([]bool{false, true, false}), c)

	n, err := s.Poll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 events, got %d", n)
	}

	in := c.inbound[0]
	if in.Delivery.DeviceID != "panel" || in.ButtonCount != 3 {
		t.Errorf("unexpected delivery: %+v", in)
	}
	if in.Delivery.Origin != logic.OriginPhysical {
		t.Errorf("expected physical origin, got %s", in.Delivery.Origin)
	}
	for i, ev := range in.Delivery.Events {
		if ev.Endpoint != i+1 {
			t.Errorf("event %d: expected endpoint %d, got %d", i, i+1, ev.Endpoint)
		}
		if ev.Channel != logic.ChannelOnOff {
			t.Errorf("event %d: expected onoff channel, got %s", i, ev.Channel)
		}
	}
	if !*in.Delivery.Events[1].Attribute || *in.Delivery.Events[0].Attribute {
		t.Errorf("attribute values do not match pins")
	}
}

func TestSourceReportsOnlyChanges(t *testing.T) {
	c := &captured{accept: true}
	s := newSource(NewFakeReader(
		[]bool{false, false},
		[]bool{false, false},
		[]bool{false, true},
		[]bool{false, false},
	), c)

	s.Poll()
	if n, _ := s.Poll(); n != 0 {
		t.Errorf("unchanged pins should deliver nothing, got %d", n)
	}
	if n, _ := s.Poll(); n != 1 {
		t.Errorf("expected press, got %d events", n)
	}
	if n, _ := s.Poll(); n != 1 {
		t.Errorf("expected release, got %d events", n)
	}

	if len(c.inbound) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(c.inbound))
	}
	press := c.inbound[1].Delivery.Events[0]
	if press.Endpoint != 2 || !*press.Attribute {
		t.Errorf("unexpected press event: %+v", press)
	}
	release := c.inbound[2].Delivery.Events[0]
	if release.Endpoint != 2 || *release.Attribute {
		t.Errorf("unexpected release event: %+v", release)
	}
}

func TestSourceReadError(t *testing.T) {
	r := NewFakeReader([]bool{true})
	r.ReadError = errors.New("line busy")
	c := &captured{accept: true}

	if _, err := newSource(r, c).Poll(); err == nil {
		t.Error("expected error")
	}
	if len(c.inbound) != 0 {
		t.Error("nothing should be delivered on error")
	}
}

func TestSourceRejectedDelivery(t *testing.T) {
	c := &captured{accept: false}
	n, err := newSource(NewFakeReader([]bool{true}), c).Poll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("rejected delivery should count 0, got %d", n)
	}
}

func TestSourceDefaultDevice(t *testing.T) {
	c := &captured{accept: true}
	s := &Source{Reader: NewFakeReader([]bool{true}), Deliver: c.deliver}
	s.Poll()
	if c.inbound[0].Delivery.DeviceID != DefaultDevice {
		t.Errorf("expected %s, got %s", DefaultDevice, c.inbound[0].Delivery.DeviceID)
	}
}
