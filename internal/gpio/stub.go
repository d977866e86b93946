//go:build !linux

package gpio

import "fmt"

var errUnsupported = fmt.Errorf("%w: not supported on this platform (requires Linux)", ErrHardware)

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (r *RealRelay) Set(on bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error { return nil }

// RealInterrupt is not available on non-Linux platforms.
type RealInterrupt struct{}

// NewRealInterrupt returns an error on non-Linux platforms.
func NewRealInterrupt(chip string, pin int, onEdge EdgeHandler) (*RealInterrupt, error) {
	return nil, errUnsupported
}

// Asserted is not implemented on non-Linux platforms.
func (i *RealInterrupt) Asserted() (bool, error) { return false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (i *RealInterrupt) Close() error { return nil }
