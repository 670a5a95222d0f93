package adapter

import (
	"fmt"

	"github.com/sweeney/button-hub/internal/logic"
)

// maxCompositeBytes bounds the big-endian composite interpretation.
const maxCompositeBytes = 4

// ParsePositional extracts a button index and gesture code from an opaque
// payload. Strategies are tried in order and the first one yielding a button
// in 1..buttons wins:
//
//  1. data[0] is the button, data[1] the code
//  2. a lone byte is the code, the endpoint is the button
//  3. the payload is a big-endian composite: button = v/3+1, code = v%3
//
// ok is false when no strategy produced a valid button.
func ParsePositional(data []byte, endpoint, buttons int) (button, code int, ok bool) {
	valid := func(n int) bool { return n >= 1 && n <= buttons }

	if len(data) >= 2 && valid(int(data[0])) {
		return int(data[0]), int(data[1]), true
	}
	if len(data) == 1 && valid(endpoint) {
		return endpoint, int(data[0]), true
	}
	if len(data) > 0 && len(data) <= maxCompositeBytes {
		v := 0
		for _, b := range data {
			v = v<<8 | int(b)
		}
		if b := v/3 + 1; valid(b) {
			return b, v % 3, true
		}
	}
	return 0, 0, false
}

func adaptPositional(dev Device, ev ChannelEvent) (logic.RawPressEvent, error) {
	if len(ev.Data) == 0 {
		return logic.RawPressEvent{}, fmt.Errorf("empty %s payload: %w", ev.Channel, ErrMalformed)
	}
	button, code, ok := ParsePositional(ev.Data, ev.Endpoint, dev.ButtonCount)
	if ok {
		return logic.RawPressEvent{Button: button, Code: code, Signal: logic.SignalCode}, nil
	}
	// Unparseable: a single press on the reporting endpoint.
	b, err := endpointButton(dev, ev.Endpoint)
	if err != nil {
		return logic.RawPressEvent{}, err
	}
	return logic.RawPressEvent{Button: b, Signal: logic.SignalCode, Fallback: true}, nil
}
