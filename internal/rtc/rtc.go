// Package rtc provides the battery-backed real-time clock and its alarm register.
// The real implementation talks to the kernel RTC driver (/dev/rtcN).
// The fake implementation allows testing without hardware.
package rtc

import (
	"errors"
	"fmt"
	"time"
)

// ErrHardware is wrapped by every error caused by an unreachable RTC.
var ErrHardware = errors.New("rtc: hardware unavailable")

// DefaultDevice is the kernel RTC device node.
const DefaultDevice = "/dev/rtc0"

// Clock is the wall clock and wake alarm.
type Clock interface {
	// Now reads the current wall-clock time from the RTC.
	Now() (time.Time, error)

	// SetAlarm programs and enables the alarm to fire at t.
	SetAlarm(t time.Time) error

	// DisableAlarm clears the alarm enable bit.
	DisableAlarm() error

	// Alarm returns the programmed alarm instant and whether it is enabled.
	Alarm() (time.Time, bool, error)

	// AlarmFired reports whether the alarm has fired since it was programmed.
	AlarmFired() (bool, error)

	// Close releases the device.
	Close() error
}

// unavailable is the Clock used when the device could not be opened.
type unavailable struct{ err error }

// Unavailable returns a Clock whose every operation fails with err, so a
// board with a dead RTC still boots into the interactive state.
func Unavailable(err error) Clock {
	return unavailable{err: fmt.Errorf("%w: %v", ErrHardware, err)}
}

func (u unavailable) Now() (time.Time, error)         { return time.Time{}, u.err }
func (u unavailable) SetAlarm(time.Time) error        { return u.err }
func (u unavailable) DisableAlarm() error             { return u.err }
func (u unavailable) Alarm() (time.Time, bool, error) { return time.Time{}, false, u.err }
func (u unavailable) AlarmFired() (bool, error)       { return false, u.err }
func (u unavailable) Close() error                    { return nil }
