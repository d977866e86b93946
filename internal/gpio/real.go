//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealRelay drives the relay through the Linux GPIO character device.
type RealRelay struct {
	line *gpiocdev.Line
}

// NewRealRelay requests pin as an output, initially de-energized.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("%w: request relay pin %d: %v", ErrHardware, pin, err)
	}
	return &RealRelay{line: line}, nil
}

// Set energizes or de-energizes the relay.
func (r *RealRelay) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("%w: set relay pin: %v", ErrHardware, err)
	}
	return nil
}

// Close drives the relay low, then returns the pin to input with pull-down
// (Pi boot default) so the relay cannot float on across a reboot.
func (r *RealRelay) Close() error {
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive relay low: %w", err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealInterrupt watches the RTC alarm output line.
type RealInterrupt struct {
	line *gpiocdev.Line
}

// NewRealInterrupt requests pin as an input with pull-up and calls onEdge on
// every falling edge. onEdge may be nil when only the level is needed.
func NewRealInterrupt(chip string, pin int, onEdge EdgeHandler) (*RealInterrupt, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	if onEdge != nil {
		opts = append(opts,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onEdge() }),
		)
	}
	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: request interrupt pin %d: %v", ErrHardware, pin, err)
	}
	return &RealInterrupt{line: line}, nil
}

// Asserted reports whether the RTC is holding the line low.
func (i *RealInterrupt) Asserted() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("%w: read interrupt pin: %v", ErrHardware, err)
	}
	return v == 0, nil
}

// Close releases the line.
func (i *RealInterrupt) Close() error {
	if err := i.line.Close(); err != nil {
		return fmt.Errorf("close interrupt pin: %w", err)
	}
	return nil
}
