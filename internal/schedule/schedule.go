// Package schedule computes the next feeding alert from the timer list and
// programs it into the RTC alarm register.
//
// The occurrence functions are pure: time is always passed in.
package schedule

import (
	"time"

	"github.com/sweeney/feeder/internal/config"
)

// Alert is the next occurrence of one timer.
type Alert struct {
	Index int // position in the stored timer list
	Timer config.Timer
	At    time.Time
}

// NextOccurrence returns the first instant strictly after now (truncated to
// the second) matching the timer's time of day and weekday mask, in now's
// location. A timer matching now to the second resolves to its next day, so
// an alarm that just fired is never re-armed for the same instant.
func NextOccurrence(t config.Timer, now time.Time) time.Time {
	base := now.Truncate(time.Second)
	// Eight days covers a weekly timer whose time today has already passed.
	for i := 0; i <= 7; i++ {
		at := time.Date(base.Year(), base.Month(), base.Day()+i,
			t.Time.Hour, t.Time.Minute, t.Time.Second, 0, base.Location())
		if !t.Weekdays.Has(at.Weekday()) {
			continue
		}
		if at.After(base) {
			return at
		}
	}
	return time.Time{}
}

// Next returns the earliest occurrence across all enabled timers. Ties go to
// the timer appearing first in the list. ok is false when no timer is enabled.
func Next(timers []config.Timer, now time.Time) (alert Alert, ok bool) {
	for i, t := range timers {
		if !t.Enabled {
			continue
		}
		at := NextOccurrence(t, now)
		if at.IsZero() {
			continue
		}
		if !ok || at.Before(alert.At) {
			alert = Alert{Index: i, Timer: t, At: at}
			ok = true
		}
	}
	return alert, ok
}
