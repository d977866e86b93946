package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/rtc"
)

// TimerSource provides a snapshot of the timer list.
type TimerSource interface {
	Timers() []config.Timer
}

// Scheduler arms the RTC alarm for the next alert. Safe for concurrent use.
type Scheduler struct {
	timers TimerSource
	clock  rtc.Clock
	log    *logger.Logger

	mu       sync.Mutex
	degraded error
}

// New creates a Scheduler.
func New(timers TimerSource, clock rtc.Clock, log *logger.Logger) *Scheduler {
	return &Scheduler{timers: timers, clock: clock, log: log}
}

// Now reads the wall clock from the RTC.
func (s *Scheduler) Now() (time.Time, error) {
	now, err := s.clock.Now()
	s.record(err)
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

// NextAlert returns the next alert after the current RTC time.
func (s *Scheduler) NextAlert() (Alert, bool, error) {
	now, err := s.Now()
	if err != nil {
		return Alert{}, false, err
	}
	alert, ok := Next(s.timers.Timers(), now)
	return alert, ok, nil
}

// Arm recomputes the next alert and programs the RTC alarm for it, or disables
// the alarm when no timer is enabled. Calling Arm again with no change in
// time or schedule programs the same instant.
func (s *Scheduler) Arm() (Alert, bool, error) {
	alert, ok, err := s.NextAlert()
	if err != nil {
		return Alert{}, false, err
	}

	if !ok {
		err = s.clock.DisableAlarm()
		s.record(err)
		if err != nil {
			return Alert{}, false, fmt.Errorf("disable alarm: %w", err)
		}
		s.log.Infow("alarm disabled, no enabled timers")
		return Alert{}, false, nil
	}

	err = s.clock.SetAlarm(alert.At)
	s.record(err)
	if err != nil {
		return Alert{}, false, fmt.Errorf("set alarm: %w", err)
	}
	s.log.Infow("alarm armed", "at", alert.At.Format(time.RFC3339), "timer", alert.Index, "time", alert.Timer.Time.String())
	return alert, true, nil
}

// Armed returns the alarm currently programmed in the RTC.
func (s *Scheduler) Armed() (time.Time, bool, error) {
	at, enabled, err := s.clock.Alarm()
	s.record(err)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read alarm: %w", err)
	}
	return at, enabled, nil
}

// Degraded returns the last RTC error, or nil once the RTC answers again.
// While degraded, wake-from-sleep feeding cannot be guaranteed.
func (s *Scheduler) Degraded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Scheduler) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && s.degraded == nil {
		s.log.Warnw("rtc unreachable, running in degraded mode", "err", err)
	}
	if err == nil && s.degraded != nil {
		s.log.Infow("rtc reachable again")
	}
	s.degraded = err
}
