//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using the Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealReader requests pins on chip as inputs. Buttons pull the line to
// ground, so lines get an internal pull-up and are read active-low.
func NewRealReader(chip string, pins []int) (*RealReader, error) {
	if len(pins) == 0 {
		return nil, errors.New("gpio: no pins configured")
	}
	if chip == "" {
		chip = DefaultChip
	}
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := c.RequestLines(pins, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request pins %v: %w", pins, err)
	}

	return &RealReader{
		chip:   c,
		lines:  lines,
		values: make([]int, len(pins)),
	}, nil
}

// Read returns the logical state of every pin.
func (r *RealReader) Read() ([]bool, error) {
	if err := r.lines.Values(r.values); err != nil {
		return nil, fmt.Errorf("read pins: %w", err)
	}
	out := make([]bool, len(r.values))
	for i, v := range r.values {
		out[i] = v == 1
	}
	return out, nil
}

// Close releases GPIO resources.
// Pins are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so nothing is held in an unexpected state during reboot.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pins: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
