package gpio

import (
	"fmt"
	"sync"
)

// FakeRelay records relay writes for test assertions.
type FakeRelay struct {
	mu sync.Mutex

	on      bool
	history []bool

	// SetError, if set, is returned by Set wrapped in ErrHardware. The state
	// is not changed.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRelay creates a de-energized FakeRelay.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Set records the write.
func (f *FakeRelay) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return fmt.Errorf("%w: %v", ErrHardware, f.SetError)
	}
	f.on = on
	f.history = append(f.history, on)
	return nil
}

// On reports the current relay state.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// History returns every value written, oldest first.
func (f *FakeRelay) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// Close de-energizes and marks the relay closed.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.Closed = true
	return nil
}

// FakeInterrupt is a scripted interrupt line.
type FakeInterrupt struct {
	// Level is returned by Asserted.
	Level bool

	// ReadError, if set, is returned by Asserted wrapped in ErrHardware.
	ReadError error

	// OnEdge is called by Fire.
	OnEdge EdgeHandler

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeInterrupt creates a FakeInterrupt that calls onEdge when fired.
func NewFakeInterrupt(onEdge EdgeHandler) *FakeInterrupt {
	return &FakeInterrupt{OnEdge: onEdge}
}

// Asserted returns the scripted level.
func (f *FakeInterrupt) Asserted() (bool, error) {
	if f.ReadError != nil {
		return false, fmt.Errorf("%w: %v", ErrHardware, f.ReadError)
	}
	return f.Level, nil
}

// Fire simulates a falling edge.
func (f *FakeInterrupt) Fire() {
	f.Level = true
	if f.OnEdge != nil {
		f.OnEdge()
	}
}

// Close marks the line closed.
func (f *FakeInterrupt) Close() error {
	f.Closed = true
	return nil
}
