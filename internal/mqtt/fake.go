package mqtt

import (
	"context"
	"sync"
)

// TriggerCall is one recorded trigger publish.
type TriggerCall struct {
	Device string
	Card   string
	Tokens map[string]any
}

// FakePublisher records published events for test assertions. It is safe
// for concurrent use because device contexts publish from their own goroutines.
type FakePublisher struct {
	mu sync.Mutex

	// Triggers contains all trigger cards that were published.
	Triggers []TriggerCall

	// Payloads contains the JSON trigger payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishTrigger.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTrigger records the trigger card.
func (f *FakePublisher) PublishTrigger(_ context.Context, deviceID, cardID string, tokens map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatTriggerPayload(deviceID, cardID, tokens)
	if err != nil {
		return err
	}
	f.Triggers = append(f.Triggers, TriggerCall{Device: deviceID, Card: cardID, Tokens: tokens})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// TriggerCalls returns a copy of the recorded triggers.
func (f *FakePublisher) TriggerCalls() []TriggerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TriggerCall(nil), f.Triggers...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Triggers = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
