// Package power owns the device's power state: it classifies the wake cause
// at boot, runs the alarm-triggered feed-and-sleep path, and runs the
// interactive control loop with its idle (auto-sleep) clock.
package power

import (
	"errors"
	"sync/atomic"
)

// State is the device power state. Exactly one holds at any instant.
type State int32

const (
	Booting State = iota
	Feeding
	Interactive
	Sleeping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Booting:
		return "BOOTING"
	case Feeding:
		return "FEEDING"
	case Interactive:
		return "INTERACTIVE"
	case Sleeping:
		return "SLEEPING"
	default:
		return "UNKNOWN"
	}
}

// States lists every state, in order.
var States = []State{Booting, Feeding, Interactive, Sleeping}

// WakeCause is the hardware-reported reason for this boot.
type WakeCause int

const (
	// WakePowerOn covers first power-up, reset button and any other cause.
	WakePowerOn WakeCause = iota
	// WakeAlarm means the RTC alarm woke the device.
	WakeAlarm
)

// String returns the cause name.
func (w WakeCause) String() string {
	if w == WakeAlarm {
		return "ALARM"
	}
	return "POWER_ON"
}

// ErrSleeping is returned by requests submitted after the loop has entered sleep.
var ErrSleeping = errors.New("power: device is going to sleep")

// Flag is the interrupt-to-loop handoff. The interrupt side only calls Set;
// the loop tests and clears it. No lock is needed.
type Flag struct {
	v atomic.Bool
}

// Set raises the flag. Safe to call from the GPIO event handler.
func (f *Flag) Set() { f.v.Store(true) }

// TestAndClear lowers the flag and reports whether it was raised.
func (f *Flag) TestAndClear() bool { return f.v.Swap(false) }

// Clear lowers the flag.
func (f *Flag) Clear() { f.v.Store(false) }

// IsSet reports the flag without clearing it.
func (f *Flag) IsSet() bool { return f.v.Load() }
