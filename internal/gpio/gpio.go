// Package gpio reads locally wired buttons.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads button input states.
type Reader interface {
	// Read returns the logical state of every configured pin, in pin order.
	// Lines are requested active-low, so true means the button is pressed.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the Raspberry Pi header chip.
const DefaultChip = "gpiochip0"
