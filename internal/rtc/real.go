//go:build linux

package rtc

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Device is a kernel RTC accessed through the RTC ioctls. The hardware keeps
// UTC; times are returned in loc.
type Device struct {
	fd  int
	loc *time.Location
}

// Open opens the RTC device node.
func Open(path string, loc *time.Location) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrHardware, path, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Device{fd: fd, loc: loc}, nil
}

// Now reads the RTC time.
func (d *Device) Now() (time.Time, error) {
	rt, err := unix.IoctlGetRTCTime(d.fd)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: read time: %v", ErrHardware, err)
	}
	return fromRTCTime(*rt).In(d.loc), nil
}

// SetAlarm programs the wake alarm and enables it.
func (d *Device) SetAlarm(t time.Time) error {
	alarm := unix.RTCWkAlrm{Enabled: 1, Time: toRTCTime(t)}
	if err := unix.IoctlSetRTCWkAlrm(d.fd, &alarm); err != nil {
		return fmt.Errorf("%w: set alarm: %v", ErrHardware, err)
	}
	return nil
}

// DisableAlarm clears the enable bit, keeping the programmed time.
func (d *Device) DisableAlarm() error {
	alarm, err := unix.IoctlGetRTCWkAlrm(d.fd)
	if err != nil {
		return fmt.Errorf("%w: read alarm: %v", ErrHardware, err)
	}
	alarm.Enabled = 0
	if err := unix.IoctlSetRTCWkAlrm(d.fd, alarm); err != nil {
		return fmt.Errorf("%w: disable alarm: %v", ErrHardware, err)
	}
	return nil
}

// Alarm returns the programmed alarm.
func (d *Device) Alarm() (time.Time, bool, error) {
	alarm, err := unix.IoctlGetRTCWkAlrm(d.fd)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: read alarm: %v", ErrHardware, err)
	}
	return fromRTCTime(alarm.Time).In(d.loc), alarm.Enabled != 0, nil
}

// AlarmFired reports the driver's pending flag.
func (d *Device) AlarmFired() (bool, error) {
	alarm, err := unix.IoctlGetRTCWkAlrm(d.fd)
	if err != nil {
		return false, fmt.Errorf("%w: read alarm: %v", ErrHardware, err)
	}
	return alarm.Pending != 0, nil
}

// Close closes the device node.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

func toRTCTime(t time.Time) unix.RTCTime {
	t = t.UTC()
	return unix.RTCTime{
		Sec:   int32(t.Second()),
		Min:   int32(t.Minute()),
		Hour:  int32(t.Hour()),
		Mday:  int32(t.Day()),
		Mon:   int32(t.Month()) - 1,
		Year:  int32(t.Year()) - 1900,
		Wday:  int32(t.Weekday()),
		Yday:  int32(t.YearDay()) - 1,
		Isdst: 0,
	}
}

func fromRTCTime(rt unix.RTCTime) time.Time {
	return time.Date(int(rt.Year)+1900, time.Month(rt.Mon+1), int(rt.Mday),
		int(rt.Hour), int(rt.Min), int(rt.Sec), 0, time.UTC)
}
