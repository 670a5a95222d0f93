// Package trigger publishes classified gestures to the automation side as
// trigger cards: one primary card plus the legacy per-driver card ids older
// flows still listen on.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/button-hub/internal/logic"
)

// ErrCardNotFound reports a card id nobody registered. It is not a failure.
var ErrCardNotFound = errors.New("trigger card not found")

// PrimaryCard is the card every gesture is published on.
const PrimaryCard = "button_gesture"

// Publisher delivers one trigger card invocation.
type Publisher interface {
	PublishTrigger(ctx context.Context, deviceID, cardID string, tokens map[string]any) error
}

// Device identifies the publishing device for legacy card ids.
type Device struct {
	ID          string
	Driver      string
	ButtonCount int
}

// Result summarizes one Emit.
type Result struct {
	EventID   string
	Published []string
	NotFound  []string
	Failed    []string
}

// Emitter fans one gesture out to the primary and legacy cards.
type Emitter struct {
	pub    Publisher
	cards  map[string]bool
	newID  func() string
	logger *slog.Logger
}

// NewEmitter creates an emitter. cards lists the legacy card ids that exist;
// the primary card always exists.
func NewEmitter(pub Publisher, cards []string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	reg := map[string]bool{PrimaryCard: true}
	for _, c := range cards {
		reg[c] = true
	}
	return &Emitter{
		pub:    pub,
		cards:  reg,
		newID:  uuid.NewString,
		logger: logger.With("component", "trigger"),
	}
}

// Cards returns the registered card ids, sorted.
func (e *Emitter) Cards() []string {
	out := make([]string, 0, len(e.cards))
	for c := range e.cards {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// LegacyCardIDs returns the compatibility card ids for a gesture.
func LegacyCardIDs(dev Device, button int, g logic.Gesture) []string {
	driver := dev.Driver
	if driver == "" {
		driver = "generic"
	}
	return []string{
		fmt.Sprintf("%s_%dgang_button%d_%s", driver, dev.ButtonCount, button, g),
		fmt.Sprintf("%s_button%d_%s", driver, button, g),
	}
}

// Tokens builds the token map published with every card.
func Tokens(eventID string, g logic.GestureEvent) map[string]any {
	return map[string]any{
		"button":    g.Button,
		"gesture":   string(g.Gesture),
		"count":     g.RepeatCount,
		"event_id":  eventID,
		"device":    g.DeviceID,
		"timestamp": g.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Emit publishes g on every card. Cards are independent: an unknown card is
// skipped, a failing card is logged, and neither stops the rest.
func (e *Emitter) Emit(ctx context.Context, dev Device, g logic.GestureEvent) Result {
	res := Result{EventID: e.newID()}
	tokens := Tokens(res.EventID, g)

	ids := append([]string{PrimaryCard}, LegacyCardIDs(dev, g.Button, g.Gesture)...)
	for _, id := range ids {
		err := e.publish(ctx, dev.ID, id, tokens)
		switch {
		case err == nil:
			res.Published = append(res.Published, id)
		case errors.Is(err, ErrCardNotFound):
			e.logger.Debug("trigger card not registered", "device", dev.ID, "card", id)
			res.NotFound = append(res.NotFound, id)
		default:
			e.logger.Warn("trigger publish failed", "device", dev.ID, "card", id, "error", err)
			res.Failed = append(res.Failed, id)
		}
	}
	return res
}

func (e *Emitter) publish(ctx context.Context, deviceID, cardID string, tokens map[string]any) error {
	if !e.cards[cardID] {
		return fmt.Errorf("%s: %w", cardID, ErrCardNotFound)
	}
	return e.pub.PublishTrigger(ctx, deviceID, cardID, tokens)
}
