// Package config loads the daemon's YAML configuration: timing, known
// devices, profile overrides and the registered trigger cards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/button-hub/internal/hub"
	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/profile"
)

// ErrInvalid marks configuration that parsed but does not make sense.
var ErrInvalid = errors.New("invalid configuration")

// LoadError reports a configuration file that could not be loaded.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.File + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Config is the resolved configuration.
type Config struct {
	Timing   logic.Timing
	Reverify time.Duration
	Devices  []hub.DeviceConfig
	Profiles []profile.Profile
	Cards    []string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Timing:   logic.DefaultTiming(),
		Reverify: mode.DefaultReverify,
	}
}

type fileTiming struct {
	ClickGap      string `yaml:"click_gap"`
	LongPress     string `yaml:"long_press"`
	Debounce      string `yaml:"debounce"`
	Periodic      string `yaml:"periodic"`
	CrossChannel  string `yaml:"cross_channel"`
	VirtualWindow string `yaml:"virtual_window"`
	PurgeInterval string `yaml:"purge_interval"`
	PurgeHorizon  string `yaml:"purge_horizon"`
	Reverify      string `yaml:"reverify"`
}

type fileDevice struct {
	ID           string `yaml:"id"`
	Driver       string `yaml:"driver"`
	ButtonCount  int    `yaml:"button_count"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

type fileCommand struct {
	Signal string `yaml:"signal"`
	Code   int    `yaml:"code"`
}

type fileMode struct {
	Attribute uint16         `yaml:"attribute"`
	Value     int            `yaml:"value"`
	Settle    string         `yaml:"settle"`
	FullCodes map[int]string `yaml:"full_codes"`
}

type fileProfile struct {
	Name               string                    `yaml:"name"`
	Manufacturer       string                    `yaml:"manufacturer"`
	Model              string                    `yaml:"model"`
	Codes              map[int]string            `yaml:"codes"`
	ChannelCodes       map[string]map[int]string `yaml:"channel_codes"`
	ChannelPriority    []string                  `yaml:"channel_priority"`
	OnOffStyle         string                    `yaml:"onoff_style"`
	AttributeStyle     string                    `yaml:"attribute_style"`
	OnOffCommands      map[string]fileCommand    `yaml:"onoff_commands"`
	RequiresModeSwitch bool                      `yaml:"requires_mode_switch"`
	Mode               fileMode                  `yaml:"mode"`
	EmitRelease        *bool                     `yaml:"emit_release"`
}

type file struct {
	Timing   fileTiming    `yaml:"timing"`
	Devices  []fileDevice  `yaml:"devices"`
	Profiles []fileProfile `yaml:"profiles"`
	Cards    []string      `yaml:"cards"`
}

// Load reads the file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return Config{}, le
		}
		return Config{}, &LoadError{File: path, Message: "failed to parse", Cause: err}
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	cfg := Default()
	if err := f.Timing.apply(&cfg); err != nil {
		return Config{}, invalid("timing", err)
	}

	seen := make(map[string]bool)
	for i, d := range f.Devices {
		if d.ID == "" {
			return Config{}, invalid(fmt.Sprintf("devices[%d]", i), errors.New("id is required"))
		}
		if seen[d.ID] {
			return Config{}, invalid(fmt.Sprintf("devices[%d]", i), fmt.Errorf("duplicate id %q", d.ID))
		}
		seen[d.ID] = true
		if d.ButtonCount == 0 {
			d.ButtonCount = 1
		}
		if d.ButtonCount < 1 || d.ButtonCount > hub.MaxButtons {
			return Config{}, invalid(fmt.Sprintf("device %s", d.ID),
				fmt.Errorf("button_count %d outside 1..%d", d.ButtonCount, hub.MaxButtons))
		}
		cfg.Devices = append(cfg.Devices, hub.DeviceConfig{
			ID:          d.ID,
			Driver:      d.Driver,
			ButtonCount: d.ButtonCount,
			Identity:    hub.Identity{Manufacturer: d.Manufacturer, Model: d.Model},
		})
	}

	for i, fp := range f.Profiles {
		p, err := fp.profile()
		if err != nil {
			return Config{}, invalid(fmt.Sprintf("profiles[%d]", i), err)
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("override-%d", i)
		}
		cfg.Profiles = append(cfg.Profiles, p)
	}

	for _, c := range f.Cards {
		if c = strings.TrimSpace(c); c != "" {
			cfg.Cards = append(cfg.Cards, c)
		}
	}
	return cfg, nil
}

func invalid(where string, err error) error {
	return &LoadError{Message: where, Cause: fmt.Errorf("%w: %w", ErrInvalid, err)}
}

func (t fileTiming) apply(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"click_gap", t.ClickGap, &cfg.Timing.ClickGap},
		{"long_press", t.LongPress, &cfg.Timing.LongPress},
		{"debounce", t.Debounce, &cfg.Timing.Debounce},
		{"periodic", t.Periodic, &cfg.Timing.Periodic},
		{"cross_channel", t.CrossChannel, &cfg.Timing.CrossChannel},
		{"virtual_window", t.VirtualWindow, &cfg.Timing.VirtualWindow},
		{"purge_interval", t.PurgeInterval, &cfg.Timing.PurgeInterval},
		{"purge_horizon", t.PurgeHorizon, &cfg.Timing.PurgeHorizon},
		{"reverify", t.Reverify, &cfg.Reverify},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", f.name)
		}
		*f.dst = d
	}
	return nil
}

func codeMap(raw map[int]string) (logic.CodeMap, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	m := make(logic.CodeMap, len(raw))
	for code, name := range raw {
		g, ok := logic.ParseGesture(name)
		if !ok {
			return nil, fmt.Errorf("code %d: unknown gesture %q", code, name)
		}
		m[code] = g
	}
	return m, nil
}

func parseSignal(s string) (logic.Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "code":
		return logic.SignalCode, nil
	case "click":
		return logic.SignalClick, nil
	case "press":
		return logic.SignalPress, nil
	case "release":
		return logic.SignalRelease, nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}

func (fp fileProfile) profile() (profile.Profile, error) {
	p := profile.Profile{
		Name:               fp.Name,
		Manufacturer:       fp.Manufacturer,
		Model:              fp.Model,
		RequiresModeSwitch: fp.RequiresModeSwitch,
		EmitRelease:        fp.EmitRelease == nil || *fp.EmitRelease,
	}

	var err error
	if p.RawCodeToGesture, err = codeMap(fp.Codes); err != nil {
		return p, err
	}

	for name, raw := range fp.ChannelCodes {
		ch, ok := logic.ParseChannel(name)
		if !ok {
			return p, fmt.Errorf("channel_codes: unknown channel %q", name)
		}
		m, err := codeMap(raw)
		if err != nil {
			return p, fmt.Errorf("channel_codes %s: %w", name, err)
		}
		if p.ChannelCodes == nil {
			p.ChannelCodes = make(map[logic.Channel]logic.CodeMap)
		}
		p.ChannelCodes[ch] = m
	}

	for _, name := range fp.ChannelPriority {
		ch, ok := logic.ParseChannel(name)
		if !ok {
			return p, fmt.Errorf("channel_priority: unknown channel %q", name)
		}
		p.ChannelPriority = append(p.ChannelPriority, ch)
	}

	if p.OnOffStyle, err = profile.ParseOnOffStyle(fp.OnOffStyle); err != nil {
		return p, err
	}
	if p.AttributeStyle, err = profile.ParseAttributeStyle(fp.AttributeStyle); err != nil {
		return p, err
	}

	for name, c := range fp.OnOffCommands {
		sig, err := parseSignal(c.Signal)
		if err != nil {
			return p, fmt.Errorf("onoff_commands %s: %w", name, err)
		}
		if p.OnOffCommands == nil {
			p.OnOffCommands = make(map[string]profile.CommandAction)
		}
		p.OnOffCommands[strings.ToLower(name)] = profile.CommandAction{Signal: sig, Code: c.Code}
	}

	if p.RequiresModeSwitch {
		p.Mode = profile.ModeParameters{Attribute: fp.Mode.Attribute, Value: fp.Mode.Value}
		if fp.Mode.Settle != "" {
			if p.Mode.Settle, err = time.ParseDuration(fp.Mode.Settle); err != nil {
				return p, fmt.Errorf("mode settle: %w", err)
			}
		}
		if p.Mode.FullCodes, err = codeMap(fp.Mode.FullCodes); err != nil {
			return p, fmt.Errorf("mode full_codes: %w", err)
		}
	}
	return p, nil
}
