package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/profile"
)

const sample = `
timing:
  click_gap: 300ms
  reverify: 1h
devices:
  - id: hall
    driver: tuya
    button_count: 4
    manufacturer: _TZ3000_abc
    model: TS004F
  - id: desk
profiles:
  - name: lab-switch
    manufacturer: ACME
    model: "SW*"
    codes: {0: single, 1: double, 2: hold}
    channel_codes:
      multistate_input: {1: single, 2: double, 0: long}
    channel_priority: [onoff, scene_recall]
    onoff_style: control
    attribute_style: toggle
    onoff_commands:
      press_short: {signal: code, code: 0}
      press_any: {signal: click}
    requires_mode_switch: true
    mode:
      attribute: 32772
      value: 1
      settle: 40ms
      full_codes: {0: single, 1: double, 2: long}
    emit_release: false
cards:
  - tuya_4gang_button1_single
  - "  "
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, cfg.Timing.ClickGap)
	assert.Equal(t, logic.DefaultTiming().LongPress, cfg.Timing.LongPress)
	assert.Equal(t, time.Hour, cfg.Reverify)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "hall", cfg.Devices[0].ID)
	assert.Equal(t, 4, cfg.Devices[0].ButtonCount)
	assert.Equal(t, "TS004F", cfg.Devices[0].Identity.Model)
	assert.Equal(t, 1, cfg.Devices[1].ButtonCount)

	require.Len(t, cfg.Profiles, 1)
	p := cfg.Profiles[0]
	assert.Equal(t, "lab-switch", p.Name)
	assert.Equal(t, logic.GestureLong, p.RawCodeToGesture[2])
	assert.Equal(t, logic.GestureLong, p.ChannelCodes[logic.ChannelMultistate][0])
	assert.Equal(t, []logic.Channel{logic.ChannelOnOff, logic.ChannelSceneRecall}, p.ChannelPriority)
	assert.Equal(t, profile.StyleControl, p.OnOffStyle)
	assert.Equal(t, profile.AttributeToggle, p.AttributeStyle)
	assert.Equal(t, profile.CommandAction{Signal: logic.SignalClick}, p.OnOffCommands["press_any"])
	assert.True(t, p.RequiresModeSwitch)
	assert.Equal(t, uint16(0x8004), p.Mode.Attribute)
	assert.Equal(t, 40*time.Millisecond, p.Mode.Settle)
	assert.Len(t, p.Mode.FullCodes, 3)
	assert.False(t, p.EmitRelease)

	assert.Equal(t, []string{"tuya_4gang_button1_single"}, cfg.Cards)
}

func TestParsedProfileWinsInResolver(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	r := profile.NewResolver(cfg.Profiles...)
	assert.Equal(t, "lab-switch", r.Resolve("acme", "SW-2").Name)
	assert.Equal(t, "default", r.Resolve("acme", "other").Name)
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, logic.DefaultTiming(), cfg.Timing)
	assert.Equal(t, mode.DefaultReverify, cfg.Reverify)

	cfg, err = Parse([]byte(`profiles: [{manufacturer: X}]`))
	require.NoError(t, err)
	assert.True(t, cfg.Profiles[0].EmitRelease)
	assert.Equal(t, "override-0", cfg.Profiles[0].Name)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad duration", "timing: {click_gap: soon}"},
		{"negative duration", "timing: {long_press: -1s}"},
		{"missing id", "devices: [{button_count: 2}]"},
		{"duplicate id", "devices: [{id: a}, {id: a}]"},
		{"too many buttons", "devices: [{id: a, button_count: 9}]"},
		{"negative buttons", "devices: [{id: a, button_count: -1}]"},
		{"unknown gesture", "profiles: [{codes: {0: wiggle}}]"},
		{"unknown channel", "profiles: [{channel_priority: [zone_status]}]"},
		{"unknown style", "profiles: [{onoff_style: sideways}]"},
		{"unknown signal", "profiles: [{onoff_commands: {x: {signal: wave}}}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			var le *LoadError
			assert.True(t, errors.As(err, &le))
		})
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("devices: [unterminated"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [{id: a, button_count: 12}]"), 0o600))

	_, err := Load(path)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, path, le.File)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
