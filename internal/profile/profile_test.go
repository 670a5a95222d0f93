package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-hub/internal/logic"
)

func TestDefaultProfile(t *testing.T) {
	p := Default()

	assert.Equal(t, logic.CodeMap{
		0: logic.GestureSingle, 1: logic.GestureDouble, 2: logic.GestureLong,
		3: logic.GestureSingle, 4: logic.GestureDouble, 5: logic.GestureLong,
	}, p.RawCodeToGesture)
	assert.Equal(t, []logic.Channel{
		logic.ChannelSceneRecall, logic.ChannelOnOff, logic.ChannelMultistate,
		logic.ChannelVendorDatapoint, logic.ChannelRawFrame,
	}, p.ChannelPriority)
	assert.False(t, p.RequiresModeSwitch)
}

func TestResolveUnknownIdentity(t *testing.T) {
	r := NewResolver()
	tests := []struct {
		name         string
		manufacturer string
		model        string
	}{
		{"empty", "", ""},
		{"unknown vendor", "ACME", "B1"},
		{"model only", "", "TS004F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r.Resolve(tt.manufacturer, tt.model)
			assert.Equal(t, "default", p.Name)
		})
	}
}

func TestResolveBuiltins(t *testing.T) {
	r := NewResolver()

	p := r.Resolve("_TZ3000_xabckq1v", "TS004F")
	assert.Equal(t, "tuya-ts004f", p.Name)
	assert.True(t, p.RequiresModeSwitch)
	assert.Equal(t, uint16(0x8004), p.Mode.Attribute)
	assert.Equal(t, DefaultSettle, p.Mode.Settle)
	assert.Equal(t, logic.CodeMap{0: logic.GestureSingle}, p.Codes(logic.ChannelOnOff, false))
	assert.Equal(t, logic.GestureDouble, p.Codes(logic.ChannelOnOff, true)[1])
	assert.Equal(t, logic.GestureLong, p.Codes(logic.ChannelOnOff, true)[2])

	p = r.Resolve("_tz3000_abc", "ts0044")
	assert.Equal(t, "tuya-ts004x", p.Name)
	assert.False(t, p.RequiresModeSwitch)
	assert.Equal(t, logic.DefaultCodeMap()[0], p.RawCodeToGesture[0])

	p = r.Resolve("LUMI", "lumi.remote.b286acn02")
	assert.Equal(t, "aqara-remote", p.Name)
	assert.Equal(t, logic.GestureLong, p.Codes(logic.ChannelMultistate, false)[0])
	assert.Equal(t, logic.GestureSingle, p.Codes(logic.ChannelSceneRecall, false)[0])
	assert.Equal(t, AttributeToggle, p.AttributeStyle)
}

func TestOverridesWinOverBuiltins(t *testing.T) {
	r := NewResolver(Profile{
		Name:             "site",
		Manufacturer:     "_TZ3000_*",
		Model:            "TS0044",
		RawCodeToGesture: logic.CodeMap{0: logic.GestureLong},
	})

	p := r.Resolve("_TZ3000_wkai4ga5", "TS0044")
	assert.Equal(t, "site", p.Name)
	assert.Equal(t, logic.GestureLong, p.Codes(logic.ChannelSceneRecall, false)[0])
	// Unspecified fields are filled from the default.
	assert.Equal(t, logic.AllChannels(), p.ChannelPriority)
	assert.Equal(t, StyleReporting, p.OnOffStyle)
}

func TestFullModeCodes(t *testing.T) {
	p := Default()
	p.Mode.FullCodes = logic.CodeMap{0: logic.GestureDouble}

	assert.Equal(t, logic.GestureSingle, p.Codes(logic.ChannelOnOff, false)[0])
	assert.Equal(t, logic.GestureDouble, p.Codes(logic.ChannelOnOff, true)[0])
	assert.Equal(t, logic.GestureDouble, p.CodeSource(true)(logic.ChannelSceneRecall)[0])
}

func TestCommandTables(t *testing.T) {
	p := Default()

	a, ok := p.Command("toggle")
	require.True(t, ok)
	assert.Equal(t, logic.SignalClick, a.Signal)

	a, ok = p.Command("Hold")
	require.True(t, ok)
	assert.Equal(t, CommandAction{Signal: logic.SignalCode, Code: 2}, a)

	p.OnOffStyle = StyleControl
	a, ok = p.Command("toggle")
	require.True(t, ok)
	assert.Equal(t, CommandAction{Signal: logic.SignalCode, Code: 0}, a)
	_, ok = p.Command("single")
	assert.False(t, ok, "control mode has no named gesture commands")

	p.OnOffCommands = map[string]CommandAction{"toggle": {Signal: logic.SignalPress, Code: 9}}
	a, _ = p.Command("toggle")
	assert.Equal(t, logic.SignalPress, a.Signal)
}

func TestRank(t *testing.T) {
	p := Default()
	p.ChannelPriority = []logic.Channel{logic.ChannelVendorDatapoint, logic.ChannelOnOff}

	assert.Less(t, p.Rank(logic.ChannelVendorDatapoint), p.Rank(logic.ChannelOnOff))
	assert.Less(t, p.Rank(logic.ChannelOnOff), p.Rank(logic.ChannelSceneRecall))
	assert.Less(t, p.Rank(logic.ChannelSceneRecall), p.Rank(logic.ChannelRawFrame))
}

func TestParseStyles(t *testing.T) {
	s, err := ParseOnOffStyle("")
	require.NoError(t, err)
	assert.Equal(t, StyleReporting, s)
	s, err = ParseOnOffStyle("Control")
	require.NoError(t, err)
	assert.Equal(t, StyleControl, s)
	_, err = ParseOnOffStyle("dimmer")
	assert.Error(t, err)

	a, err := ParseAttributeStyle("toggle")
	require.NoError(t, err)
	assert.Equal(t, AttributeToggle, a)
	_, err = ParseAttributeStyle("sticky")
	assert.Error(t, err)
}
