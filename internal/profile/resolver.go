package profile

import (
	"strings"
	"time"

	"github.com/sweeney/button-hub/internal/logic"
)

// Resolver matches identities against overrides first, then the built-in table.
type Resolver struct {
	entries []Profile
}

// NewResolver creates a resolver. Overrides are matched before built-ins, in
// the order given.
func NewResolver(overrides ...Profile) *Resolver {
	entries := make([]Profile, 0, len(overrides)+len(builtin))
	entries = append(entries, overrides...)
	entries = append(entries, builtin...)
	return &Resolver{entries: entries}
}

// Resolve returns the profile for a vendor/model pair. Either may be empty,
// e.g. on first contact before the device has been interviewed; callers
// re-resolve once the identity is known.
func (r *Resolver) Resolve(manufacturer, model string) Profile {
	manufacturer = strings.TrimSpace(manufacturer)
	model = strings.TrimSpace(model)
	if manufacturer == "" && model == "" {
		return Default()
	}
	for _, p := range r.entries {
		if matches(p.Manufacturer, manufacturer) && matches(p.Model, model) {
			return fill(p)
		}
	}
	return Default()
}

// matches compares a pattern against a value. An empty pattern matches
// anything, a trailing '*' matches any suffix, comparison ignores case.
func matches(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	if value == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(strings.TrimSuffix(pattern, "*")))
	}
	return strings.EqualFold(pattern, value)
}

// fill completes a partially specified profile with defaults.
func fill(p Profile) Profile {
	d := Default()
	if len(p.RawCodeToGesture) == 0 {
		p.RawCodeToGesture = d.RawCodeToGesture
	}
	if len(p.ChannelPriority) == 0 {
		p.ChannelPriority = d.ChannelPriority
	}
	if p.OnOffStyle == "" {
		p.OnOffStyle = d.OnOffStyle
	}
	if p.AttributeStyle == "" {
		p.AttributeStyle = d.AttributeStyle
	}
	if p.RequiresModeSwitch && p.Mode.Settle <= 0 {
		p.Mode.Settle = DefaultSettle
	}
	return p
}

// DefaultSettle is the wait between a mode write and its read-back.
const DefaultSettle = 25 * time.Millisecond

// Tuya scene switches keep their operating mode in on/off cluster attribute
// 0x8004: 0 is the dimmer (command) mode, 1 the event mode that reports
// single/double/hold. In dimmer mode only code 0 is a gesture the switch
// reports reliably; anything else is read as a single press until the mode
// is verified.
const tuyaModeAttribute = 0x8004

var builtin = []Profile{
	{
		Name:         "tuya-ts004f",
		Manufacturer: "_TZ3000_*",
		Model:        "TS004F",
		RawCodeToGesture: logic.CodeMap{
			0: logic.GestureSingle,
		},
		ChannelPriority: []logic.Channel{
			logic.ChannelOnOff, logic.ChannelSceneRecall, logic.ChannelVendorDatapoint,
			logic.ChannelMultistate, logic.ChannelRawFrame,
		},
		OnOffStyle:         StyleReporting,
		RequiresModeSwitch: true,
		Mode: ModeParameters{
			Attribute: tuyaModeAttribute,
			Value:     1,
			Settle:    DefaultSettle,
			FullCodes: logic.CodeMap{
				0: logic.GestureSingle,
				1: logic.GestureDouble,
				2: logic.GestureLong,
			},
		},
		EmitRelease: true,
	},
	{
		Name:         "tuya-ts004x",
		Manufacturer: "_TZ3000_*",
		Model:        "TS004*",
		RawCodeToGesture: logic.CodeMap{
			0: logic.GestureSingle,
			1: logic.GestureDouble,
			2: logic.GestureLong,
		},
		OnOffStyle:  StyleReporting,
		EmitRelease: true,
	},
	{
		Name:         "tuya-ts0601",
		Manufacturer: "_TZE200_*",
		Model:        "TS0601",
		ChannelPriority: []logic.Channel{
			logic.ChannelVendorDatapoint, logic.ChannelRawFrame, logic.ChannelOnOff,
			logic.ChannelSceneRecall, logic.ChannelMultistate,
		},
		EmitRelease: true,
	},
	{
		Name:         "aqara-remote",
		Manufacturer: "LUMI",
		Model:        "lumi.remote.*",
		ChannelCodes: map[logic.Channel]logic.CodeMap{
			logic.ChannelMultistate: {
				0:   logic.GestureLong,
				1:   logic.GestureSingle,
				2:   logic.GestureDouble,
				3:   logic.GestureTriple,
				255: logic.GestureRelease,
			},
		},
		ChannelPriority: []logic.Channel{
			logic.ChannelMultistate, logic.ChannelOnOff, logic.ChannelSceneRecall,
			logic.ChannelVendorDatapoint, logic.ChannelRawFrame,
		},
		AttributeStyle: AttributeToggle,
		EmitRelease:    true,
	},
}
