package adapter

import (
	"fmt"

	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/profile"
)

// SceneRecall uses the recalled scene id as the gesture code.
type SceneRecall struct{}

func (SceneRecall) Channel() logic.Channel { return logic.ChannelSceneRecall }

func (SceneRecall) Adapt(dev Device, ev ChannelEvent) (logic.RawPressEvent, error) {
	if ev.Value == nil {
		return logic.RawPressEvent{}, fmt.Errorf("scene recall without scene id: %w", ErrMalformed)
	}
	button, err := endpointButton(dev, ev.Endpoint)
	if err != nil {
		return logic.RawPressEvent{}, err
	}
	return logic.RawPressEvent{Button: button, Code: *ev.Value, Signal: logic.SignalCode}, nil
}

// OnOff handles both named commands and bare attribute reports.
type OnOff struct{}

func (OnOff) Channel() logic.Channel { return logic.ChannelOnOff }

func (OnOff) Adapt(dev Device, ev ChannelEvent) (logic.RawPressEvent, error) {
	button, err := endpointButton(dev, ev.Endpoint)
	if err != nil {
		return logic.RawPressEvent{}, err
	}

	if ev.Attribute != nil {
		code := 0
		if *ev.Attribute {
			code = 1
		}
		out := logic.RawPressEvent{Button: button, Code: code, State: true, Signal: logic.SignalClick}
		if dev.Profile.AttributeStyle != profile.AttributeToggle {
			out.Signal = logic.SignalRelease
			if *ev.Attribute {
				out.Signal = logic.SignalPress
			}
		}
		return out, nil
	}

	if ev.Command == "" {
		return logic.RawPressEvent{}, fmt.Errorf("on/off payload without command or attribute: %w", ErrMalformed)
	}
	action, ok := dev.Profile.Command(ev.Command)
	if !ok {
		return logic.RawPressEvent{}, fmt.Errorf("unknown on/off command %q: %w", ev.Command, ErrMalformed)
	}
	return logic.RawPressEvent{Button: button, Code: action.Code, Signal: action.Signal}, nil
}

// Multistate uses the present value as the gesture code. The mapping comes
// from the profile's multistate code map.
type Multistate struct{}

func (Multistate) Channel() logic.Channel { return logic.ChannelMultistate }

func (Multistate) Adapt(dev Device, ev ChannelEvent) (logic.RawPressEvent, error) {
	if ev.Value == nil {
		return logic.RawPressEvent{}, fmt.Errorf("multistate report without present value: %w", ErrMalformed)
	}
	button, err := endpointButton(dev, ev.Endpoint)
	if err != nil {
		return logic.RawPressEvent{}, err
	}
	return logic.RawPressEvent{Button: button, Code: *ev.Value, Signal: logic.SignalCode}, nil
}

// VendorDatapoint parses opaque vendor bytes positionally.
type VendorDatapoint struct{}

func (VendorDatapoint) Channel() logic.Channel { return logic.ChannelVendorDatapoint }

func (VendorDatapoint) Adapt(dev Device, ev ChannelEvent) (logic.RawPressEvent, error) {
	return adaptPositional(dev, ev)
}

// RawFrame is the catch-all for frames the collaborator has no decoder for.
type RawFrame struct{}

func (RawFrame) Channel() logic.Channel { return logic.ChannelRawFrame }

func (RawFrame) Adapt(dev Device, ev ChannelEvent) (logic.RawPressEvent, error) {
	return adaptPositional(dev, ev)
}
