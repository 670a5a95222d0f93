package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned for messages that are not buffered while offline.
var ErrNotConnected = errors.New("mqtt not connected")

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int
	Logger     *slog.Logger
}

// RealClient talks to an actual MQTT broker. Trigger messages published
// while disconnected are held in a ring buffer and replayed on reconnect.
type RealClient struct {
	client paho.Client
	topics Topics
	logger *slog.Logger

	mu      sync.Mutex
	buffer  *ringBuffer
	handler func(topic string, payload []byte)
}

// NewRealClient creates a client and starts connecting. It does not fail
// when the broker is unreachable; the connection is retried in the
// background and triggers are buffered meanwhile.
func NewRealClient(o Options) (*RealClient, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: no broker address")
	}
	if o.ClientID == "" {
		o.ClientID = "button-hub"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 256
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	c := &RealClient{
		topics: o.Topics,
		logger: o.Logger.With("component", "mqtt"),
		buffer: newRingBuffer(o.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.Topics.System(), string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("connection lost", "error", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		c.logger.Warn("broker not reachable yet, retrying in background", "broker", o.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Subscribe registers the inbound handler for every subscription topic.
// Subscriptions are renewed after each reconnect.
func (c *RealClient) Subscribe(handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe()
}

func (c *RealClient) subscribe() error {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return nil
	}
	filters := make(map[string]byte)
	for _, t := range c.topics.Subscriptions() {
		filters[t] = 1
	}
	token := c.client.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// onConnect runs on paho's goroutine after every (re)connect.
func (c *RealClient) onConnect(paho.Client) {
	c.logger.Info("connected")
	// Handlers must not block paho's connect path.
	go func() {
		if err := c.subscribe(); err != nil {
			c.logger.Warn("resubscribe failed", "error", err)
		}
		c.replay()
	}()
}

func (c *RealClient) replay() {
	c.mu.Lock()
	msgs := c.buffer.drainAll()
	c.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	c.logger.Info("replaying buffered messages", "count", len(msgs))
	for _, m := range msgs {
		if err := c.Publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			c.logger.Warn("replay publish failed", "topic", m.topic, "error", err)
		}
	}
}

// Publish sends a raw message. It fails while disconnected.
func (c *RealClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishTrigger sends a trigger card invocation, buffering it while offline.
func (c *RealClient) PublishTrigger(_ context.Context, deviceID, cardID string, tokens map[string]any) error {
	payload, err := FormatTriggerPayload(deviceID, cardID, tokens)
	if err != nil {
		return fmt.Errorf("format trigger payload: %w", err)
	}
	topic := c.topics.Trigger(deviceID, cardID)

	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		overflow := c.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: 1})
		c.mu.Unlock()
		if overflow {
			c.logger.Warn("offline buffer full, dropping oldest")
		}
		return nil
	}
	return c.Publish(topic, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events must arrive
	if err := c.Publish(c.topics.System(), 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// Buffered returns the number of triggers waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
