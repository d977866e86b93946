package power

import (
	"errors"
	"fmt"

	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/rtc"
)

// Platform is the wake/sleep capability of the target hardware. One variant
// per target is selected at build time by NewPlatform.
type Platform interface {
	// WakeCause reports why the device booted. Read once, at boot.
	WakeCause() (WakeCause, error)

	// Sleep enters deep sleep. On real hardware it does not return on success;
	// the next wake is a fresh boot.
	Sleep() error
}

// ClassifyWake reports WakeAlarm when the RTC interrupt line is asserted or
// the RTC reports its alarm fired. Any other case is WakePowerOn. Read errors
// are returned alongside the best classification available.
func ClassifyWake(irq gpio.Interrupt, clock rtc.Clock) (WakeCause, error) {
	var errs []error

	asserted, err := irq.Asserted()
	if err != nil {
		errs = append(errs, fmt.Errorf("interrupt line: %w", err))
	} else if asserted {
		return WakeAlarm, nil
	}

	fired, err := clock.AlarmFired()
	if err != nil {
		errs = append(errs, fmt.Errorf("rtc alarm flag: %w", err))
	} else if fired {
		return WakeAlarm, nil
	}

	return WakePowerOn, errors.Join(errs...)
}

// FakePlatform is a scripted Platform for tests.
type FakePlatform struct {
	Cause    WakeCause
	CauseErr error

	// SleepErr, if set, is returned by Sleep.
	SleepErr error

	// BeforeSleep, if set, runs at the start of Sleep so tests can inspect
	// the hardware at the moment of the transition.
	BeforeSleep func()

	// Sleeps counts Sleep calls.
	Sleeps int
}

// WakeCause returns the scripted cause.
func (f *FakePlatform) WakeCause() (WakeCause, error) {
	return f.Cause, f.CauseErr
}

// Sleep records the call.
func (f *FakePlatform) Sleep() error {
	if f.BeforeSleep != nil {
		f.BeforeSleep()
	}
	f.Sleeps++
	return f.SleepErr
}
