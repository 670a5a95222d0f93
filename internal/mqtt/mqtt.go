// Package mqtt is the collaborator boundary: inbound channel deliveries,
// outbound trigger cards and system events, and the mode attribute
// request/response exchange, all over MQTT.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// DefaultPrefix is the topic root.
const DefaultPrefix = "buttonhub"

// Topics builds every topic from one prefix.
type Topics struct {
	Prefix string
}

// NewTopics returns Topics for prefix, or DefaultPrefix when empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{Prefix: prefix}
}

// Events matches inbound deliveries: <prefix>/events/<device>.
func (t Topics) Events() string { return t.Prefix + "/events/+" }

// Remove matches device removal requests: <prefix>/remove/<device>.
func (t Topics) Remove() string { return t.Prefix + "/remove/+" }

// ModeResults matches mode exchange responses: <prefix>/mode/<device>/result.
func (t Topics) ModeResults() string { return t.Prefix + "/mode/+/result" }

// ModeRequest is where mode reads and writes for a device are requested.
func (t Topics) ModeRequest(deviceID string) string { return t.Prefix + "/mode/" + deviceID + "/set" }

// Trigger is the topic a trigger card invocation is published on.
func (t Topics) Trigger(deviceID, cardID string) string {
	return t.Prefix + "/trigger/" + deviceID + "/" + cardID
}

// System is the topic for lifecycle events.
func (t Topics) System() string { return t.Prefix + "/system" }

// Subscriptions returns every inbound topic filter.
func (t Topics) Subscriptions() []string {
	return []string{t.Events(), t.Remove(), t.ModeResults()}
}

// Publisher publishes outbound messages.
type Publisher interface {
	// PublishTrigger sends one trigger card invocation.
	PublishTrigger(ctx context.Context, deviceID, cardID string, tokens map[string]any) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TriggerPayload is the message published for a trigger card.
type TriggerPayload struct {
	Trigger TriggerInner `json:"trigger"`
}

// TriggerInner contains the trigger details.
type TriggerInner struct {
	Device string         `json:"device"`
	Card   string         `json:"card"`
	Tokens map[string]any `json:"tokens"`
}

// FormatTriggerPayload creates the JSON payload for a trigger card.
func FormatTriggerPayload(deviceID, cardID string, tokens map[string]any) ([]byte, error) {
	return json.Marshal(TriggerPayload{Trigger: TriggerInner{Device: deviceID, Card: cardID, Tokens: tokens}})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
