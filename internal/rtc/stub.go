//go:build !linux

package rtc

import (
	"fmt"
	"time"
)

// Device is not available on non-Linux platforms.
type Device struct{}

// Open returns an error on non-Linux platforms.
func Open(path string, loc *time.Location) (*Device, error) {
	return nil, fmt.Errorf("%w: not supported on this platform (requires Linux)", ErrHardware)
}

func (d *Device) Now() (time.Time, error)         { return time.Time{}, ErrHardware }
func (d *Device) SetAlarm(t time.Time) error      { return ErrHardware }
func (d *Device) DisableAlarm() error             { return ErrHardware }
func (d *Device) Alarm() (time.Time, bool, error) { return time.Time{}, false, ErrHardware }
func (d *Device) AlarmFired() (bool, error)       { return false, ErrHardware }
func (d *Device) Close() error                    { return nil }
