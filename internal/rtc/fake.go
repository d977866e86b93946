package rtc

import (
	"sync"
	"time"
)

// FakeClock is a settable RTC for tests.
type FakeClock struct {
	mu sync.Mutex

	current time.Time
	alarm   time.Time
	enabled bool

	// Fired is returned by AlarmFired.
	Fired bool

	// Err, if set, is returned by every operation.
	Err error

	// Writes counts SetAlarm and DisableAlarm calls.
	Writes int
}

// NewFakeClock creates a FakeClock reading now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{current: now}
}

// Set moves the clock to t.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}

// Now returns the scripted time.
func (f *FakeClock) Now() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return time.Time{}, f.Err
	}
	return f.current, nil
}

// SetAlarm records the alarm.
func (f *FakeClock) SetAlarm(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.alarm = t
	f.enabled = true
	f.Fired = false
	f.Writes++
	return nil
}

// DisableAlarm clears the enable bit.
func (f *FakeClock) DisableAlarm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.enabled = false
	f.Writes++
	return nil
}

// Alarm returns the recorded alarm.
func (f *FakeClock) Alarm() (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return time.Time{}, false, f.Err
	}
	return f.alarm, f.enabled, nil
}

// AlarmFired returns Fired.
func (f *FakeClock) AlarmFired() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	return f.Fired, nil
}

// Close is a no-op.
func (f *FakeClock) Close() error { return nil }
