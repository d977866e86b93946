// Package gpio provides the relay output and RTC interrupt input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrHardware wraps every failure to reach a GPIO line. Match with errors.Is.
var ErrHardware = errors.New("gpio: hardware error")

// Relay drives the feed motor relay.
type Relay interface {
	// Set energizes (true) or de-energizes (false) the relay.
	Set(on bool) error

	// Close de-energizes the relay and releases GPIO resources.
	Close() error
}

// Interrupt is the RTC alarm output line. It is active low: the RTC pulls
// the line down while its alarm flag is set.
type Interrupt interface {
	// Asserted reports whether the line is currently held active.
	Asserted() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// EdgeHandler is called on every falling edge of the interrupt line. It runs on
// the gpiocdev event goroutine and must do nothing but set a flag.
type EdgeHandler func()

// Default pin definitions (BCM numbering).
const (
	DefaultPinRelay     = 17
	DefaultPinInterrupt = 4
	DefaultChip         = "gpiochip0"
)
