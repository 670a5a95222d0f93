package hub

import (
	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/trigger"
)

// Observer is told about everything that happens in device contexts. Calls
// arrive concurrently from different devices.
type Observer interface {
	DeviceAdded(deviceID string)
	DeviceRemoved(deviceID string)
	GestureClassified(g logic.GestureEvent)
	EventDropped(deviceID string, ch logic.Channel, reason logic.DropReason)
	ModeChanged(deviceID string, m mode.Mode)
	TriggerPublished(deviceID string, res trigger.Result)
}

// Observers fans every call out to each observer in order.
type Observers []Observer

func (o Observers) DeviceAdded(id string) {
	for _, x := range o {
		x.DeviceAdded(id)
	}
}

func (o Observers) DeviceRemoved(id string) {
	for _, x := range o {
		x.DeviceRemoved(id)
	}
}

func (o Observers) GestureClassified(g logic.GestureEvent) {
	for _, x := range o {
		x.GestureClassified(g)
	}
}

func (o Observers) EventDropped(id string, ch logic.Channel, reason logic.DropReason) {
	for _, x := range o {
		x.EventDropped(id, ch, reason)
	}
}

func (o Observers) ModeChanged(id string, m mode.Mode) {
	for _, x := range o {
		x.ModeChanged(id, m)
	}
}

func (o Observers) TriggerPublished(id string, res trigger.Result) {
	for _, x := range o {
		x.TriggerPublished(id, res)
	}
}
