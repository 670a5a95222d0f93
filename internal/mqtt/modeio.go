package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrModeTimeout reports a mode request nobody answered.
var ErrModeTimeout = errors.New("mode request timed out")

// Transport publishes a raw message.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// ModeRequest asks the collaborator to write or read a mode attribute.
type ModeRequest struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	Attribute uint16 `json:"attribute"`
	Value     *int   `json:"value,omitempty"`
}

// ModeResponse answers a ModeRequest.
type ModeResponse struct {
	RequestID string `json:"request_id"`
	Value     int    `json:"value"`
	Error     string `json:"error,omitempty"`
}

// ModeClient implements mode.IO as a request/response exchange correlated
// by request id.
type ModeClient struct {
	transport Transport
	topics    Topics
	timeout   time.Duration
	newID     func() string
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan ModeResponse
}

// NewModeClient creates a client. timeout bounds each exchange.
func NewModeClient(t Transport, topics Topics, timeout time.Duration, logger *slog.Logger) *ModeClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModeClient{
		transport: t,
		topics:    topics,
		timeout:   timeout,
		newID:     uuid.NewString,
		logger:    logger.With("component", "modeio"),
		pending:   make(map[string]chan ModeResponse),
	}
}

// WriteMode asks the device to store value in attribute.
func (c *ModeClient) WriteMode(ctx context.Context, deviceID string, attribute uint16, value int) error {
	_, err := c.roundTrip(ctx, deviceID, ModeRequest{Op: "write", Attribute: attribute, Value: &value})
	return err
}

// ReadMode reads attribute back from the device.
func (c *ModeClient) ReadMode(ctx context.Context, deviceID string, attribute uint16) (int, error) {
	resp, err := c.roundTrip(ctx, deviceID, ModeRequest{Op: "read", Attribute: attribute})
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// HandleResult delivers a response to the waiting request. Unknown or late
// responses are dropped.
func (c *ModeClient) HandleResult(payload []byte) {
	var resp ModeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.logger.Warn("mode response dropped", "error", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	delete(c.pending, resp.RequestID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("mode response without request", "request_id", resp.RequestID)
		return
	}
	ch <- resp
}

func (c *ModeClient) roundTrip(ctx context.Context, deviceID string, req ModeRequest) (ModeResponse, error) {
	req.RequestID = c.newID()
	payload, err := json.Marshal(req)
	if err != nil {
		return ModeResponse{}, fmt.Errorf("encode mode request: %w", err)
	}

	ch := make(chan ModeResponse, 1)
	c.mu.Lock()
	c.pending[req.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	if err := c.transport.Publish(c.topics.ModeRequest(deviceID), 1, false, payload); err != nil {
		return ModeResponse{}, fmt.Errorf("publish mode %s: %w", req.Op, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, fmt.Errorf("mode %s: %s", req.Op, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		return ModeResponse{}, fmt.Errorf("mode %s: %w", req.Op, ErrModeTimeout)
	case <-ctx.Done():
		return ModeResponse{}, ctx.Err()
	}
}
