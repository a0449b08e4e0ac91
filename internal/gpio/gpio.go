// Package gpio provides pin-addressed GPIO access with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// Reader reads sensor inputs addressed by BCM line offset.
type Reader interface {
	// Read returns the logical level of an input pin (true = active).
	Read(pin int) (bool, error)
}

// Writer drives outputs addressed by BCM line offset.
type Writer interface {
	// Write drives an output pin to the given logical level.
	Write(pin int, active bool) error
}

// Port reads sensor inputs and drives outputs.
type Port interface {
	Reader
	Writer

	// Close releases GPIO resources.
	Close() error
}

// NoPin marks an unconfigured input or output.
const NoPin = -1

// Valid BCM pin range on the 40-pin header.
const (
	MinPin = 0
	MaxPin = 26
)

// ValidPin reports whether pin addresses a usable header line.
func ValidPin(pin int) bool {
	return pin >= MinPin && pin <= MaxPin
}

// ErrUnknownPin is returned for pins that were not requested when the port was opened.
var ErrUnknownPin = errors.New("gpio: pin not configured")

// Lines describes the lines a port must request.
type Lines struct {
	Inputs  []int
	Outputs []int
	// ActiveLow inputs read true when the raw line is low.
	ActiveLow map[int]bool
}
