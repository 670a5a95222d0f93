// Package profile resolves a device's vendor and model into the data that
// drives classification: code maps, channel priority, on/off command
// conventions and whether the device needs a reporting-mode switch.
//
// Code maps differ between vendors, and sometimes between models of one
// vendor. They are configuration data: the built-in table covers known
// hardware, and config overrides win over it.
package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/button-hub/internal/logic"
)

// OnOffStyle selects how named on/off commands are interpreted.
type OnOffStyle string

const (
	// StyleReporting devices send distinct named commands per gesture; generic
	// on/off/toggle commands are presses to be counted.
	StyleReporting OnOffStyle = "reporting"
	// StyleControl devices reuse generic on/off/toggle for the three gestures.
	StyleControl OnOffStyle = "control"
)

// AttributeStyle selects how a bare on/off attribute report is read.
type AttributeStyle string

const (
	// AttributeHeld: true while the button is down, false on release.
	AttributeHeld AttributeStyle = "held"
	// AttributeToggle: the value flips once per press.
	AttributeToggle AttributeStyle = "toggle"
)

// CommandAction is what an on/off command name means to the classifier.
type CommandAction struct {
	Signal logic.Signal
	Code   int
}

// ModeParameters describe the write that puts a device in full reporting mode.
type ModeParameters struct {
	// Attribute is the vendor attribute holding the operating mode.
	Attribute uint16
	// Value is the attribute value for full reporting mode.
	Value int
	// Settle is the delay between the write and the verifying read.
	Settle time.Duration
	// FullCodes replaces the code map once the device is in full mode.
	FullCodes logic.CodeMap
}

// Profile is the resolved, static description of one device type.
type Profile struct {
	Name         string
	Manufacturer string
	Model        string

	RawCodeToGesture logic.CodeMap
	// ChannelCodes overrides RawCodeToGesture for individual channels.
	ChannelCodes    map[logic.Channel]logic.CodeMap
	ChannelPriority []logic.Channel

	OnOffStyle     OnOffStyle
	OnOffCommands  map[string]CommandAction
	AttributeStyle AttributeStyle

	RequiresModeSwitch bool
	Mode               ModeParameters

	EmitRelease bool
}

// Default returns the profile used for unknown or unmatched identities.
func Default() Profile {
	return Profile{
		Name:             "default",
		RawCodeToGesture: logic.DefaultCodeMap(),
		ChannelPriority:  logic.AllChannels(),
		OnOffStyle:       StyleReporting,
		AttributeStyle:   AttributeHeld,
		EmitRelease:      true,
	}
}

// Codes returns the code map for a channel. When full is set and the profile
// has a full-mode map, that map wins.
func (p Profile) Codes(ch logic.Channel, full bool) logic.CodeMap {
	if full && len(p.Mode.FullCodes) > 0 {
		return p.Mode.FullCodes
	}
	if m, ok := p.ChannelCodes[ch]; ok && len(m) > 0 {
		return m
	}
	if len(p.RawCodeToGesture) > 0 {
		return p.RawCodeToGesture
	}
	return logic.DefaultCodeMap()
}

// CodeSource binds Codes to a mode.
func (p Profile) CodeSource(full bool) logic.CodeSource {
	return func(ch logic.Channel) logic.CodeMap { return p.Codes(ch, full) }
}

// Rank returns the position of ch in the channel priority, lower first.
// Channels missing from the list rank after all listed ones.
func (p Profile) Rank(ch logic.Channel) int {
	for i, c := range p.ChannelPriority {
		if c == ch {
			return i
		}
	}
	return len(p.ChannelPriority) + int(ch)
}

var reportingCommands = map[string]CommandAction{
	"single": {Signal: logic.SignalCode, Code: 0},
	"double": {Signal: logic.SignalCode, Code: 1},
	"hold":   {Signal: logic.SignalCode, Code: 2},
	"long":   {Signal: logic.SignalCode, Code: 2},
	"off":    {Signal: logic.SignalClick, Code: 0},
	"on":     {Signal: logic.SignalClick, Code: 1},
	"toggle": {Signal: logic.SignalClick, Code: 2},
}

var controlCommands = map[string]CommandAction{
	"toggle": {Signal: logic.SignalCode, Code: 0},
	"on":     {Signal: logic.SignalCode, Code: 1},
	"off":    {Signal: logic.SignalCode, Code: 2},
}

// Command looks up an on/off command name, profile table first, then the
// defaults for the profile's style.
func (p Profile) Command(name string) (CommandAction, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := p.OnOffCommands[name]; ok {
		return a, true
	}
	table := reportingCommands
	if p.OnOffStyle == StyleControl {
		table = controlCommands
	}
	a, ok := table[name]
	return a, ok
}

func (p Profile) String() string {
	return fmt.Sprintf("%s(%s/%s)", p.Name, p.Manufacturer, p.Model)
}

// ParseOnOffStyle validates a style name. Empty means reporting.
func ParseOnOffStyle(s string) (OnOffStyle, error) {
	switch OnOffStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleReporting:
		return StyleReporting, nil
	case StyleControl:
		return StyleControl, nil
	}
	return "", fmt.Errorf("unknown onoff style %q", s)
}

// ParseAttributeStyle validates an attribute style name. Empty means held.
func ParseAttributeStyle(s string) (AttributeStyle, error) {
	switch AttributeStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", AttributeHeld:
		return AttributeHeld, nil
	case AttributeToggle:
		return AttributeToggle, nil
	}
	return "", fmt.Errorf("unknown attribute style %q", s)
}
