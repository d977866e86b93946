// Package session is the interactive surface of the feeder core: the
// operations an operator can invoke while the device is awake. Operations
// that mutate core state run on the control loop through the controller and
// count as qualifying requests, resetting the idle clock. The polling reads
// (Time, RemainingIdle, Status) do not, so a status page left open cannot
// keep the device awake.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/schedule"
	"github.com/sweeney/feeder/internal/status"
)

// Loop is the part of the power controller the surface drives.
type Loop interface {
	Do(ctx context.Context, fn func(now time.Time) error) error
	RequestSleep(ctx context.Context) error
	Touch()
	Remaining() int
}

// Scheduler arms and reports the RTC alarm.
type Scheduler interface {
	Now() (time.Time, error)
	NextAlert() (schedule.Alert, bool, error)
	Arm() (schedule.Alert, bool, error)
	Armed() (time.Time, bool, error)
	Degraded() error
}

// Deps are the collaborators of a Surface.
type Deps struct {
	Loop      Loop
	Store     *config.Store
	Scheduler Scheduler
	Actuator  *feeder.Actuator
	Tracker   *status.Tracker
	Log       *logger.Logger
}

// Surface exposes the core operations. Safe for concurrent use.
type Surface struct {
	loop     Loop
	store    *config.Store
	sched    Scheduler
	actuator *feeder.Actuator
	tracker  *status.Tracker
	log      *logger.Logger
}

// New creates a Surface.
func New(d Deps) *Surface {
	return &Surface{
		loop:     d.Loop,
		store:    d.Store,
		sched:    d.Scheduler,
		actuator: d.Actuator,
		tracker:  d.Tracker,
		log:      d.Log,
	}
}

// Time is the RTC wall-clock reading.
type Time struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// Touch records a qualifying request without doing anything else.
func (s *Surface) Touch() {
	s.loop.Touch()
}

// Schedule returns the timer list as a JSON array.
func (s *Surface) Schedule() ([]byte, error) {
	s.loop.Touch()
	return s.store.TimersJSON()
}

// SetSchedule replaces the timer list and re-arms the alarm. A malformed
// document fails with config.ErrValidation and leaves the list unchanged.
// A failure to program the RTC is logged and shows up as degraded status;
// the new schedule is kept.
func (s *Surface) SetSchedule(ctx context.Context, doc []byte) error {
	return s.loop.Do(ctx, func(time.Time) error {
		if err := s.store.SetTimers(doc); err != nil {
			return err
		}
		s.log.Infow("schedule updated", "timers", len(s.store.Timers()))
		if _, _, err := s.sched.Arm(); err != nil {
			s.log.Errorw("re-arming alarm after schedule update failed", "err", err)
		}
		return nil
	})
}

// System returns the system settings.
func (s *Surface) System() config.SystemConfig {
	s.loop.Touch()
	return s.store.SystemConfig()
}

// SetSystem merges a JSON object onto the system settings.
func (s *Surface) SetSystem(ctx context.Context, doc []byte) error {
	return s.loop.Do(ctx, func(time.Time) error {
		if err := s.store.SetSystemConfig(doc); err != nil {
			return err
		}
		sys := s.store.SystemConfig()
		s.log.Infow("system settings updated",
			"auto_sleep", sys.AutoSleep, "auto_sleep_after", sys.AutoSleepAfter,
			"quantity", sys.Quantity, "factor", sys.Factor)
		return nil
	})
}

// Time reads the RTC.
func (s *Surface) Time() (Time, error) {
	now, err := s.sched.Now()
	if err != nil {
		return Time{}, err
	}
	return Time{
		Year:   now.Year(),
		Month:  int(now.Month()),
		Day:    now.Day(),
		Hour:   now.Hour(),
		Minute: now.Minute(),
		Second: now.Second(),
	}, nil
}

// RemainingIdle returns the seconds until auto-sleep. It may be negative.
func (s *Surface) RemainingIdle() int {
	return s.loop.Remaining()
}

// ManualFeed drives the relay directly, bypassing the timed cycle.
func (s *Surface) ManualFeed(ctx context.Context, on bool) error {
	return s.loop.Do(ctx, func(time.Time) error {
		return s.actuator.SetManual(on)
	})
}

// Feed starts a timed feed cycle. It reports false when a cycle was
// already active and the request was coalesced.
func (s *Surface) Feed(ctx context.Context) (bool, error) {
	var started bool
	err := s.loop.Do(ctx, func(now time.Time) error {
		started = s.actuator.StartFeeding(now, feeder.TriggerManual)
		return nil
	})
	return started, err
}

// Sleep asks the controller to power down after replying.
func (s *Surface) Sleep(ctx context.Context) error {
	return s.loop.RequestSleep(ctx)
}

// Status returns the tracked state completed with live RTC and idle readings.
func (s *Surface) Status() status.Snapshot {
	snap := s.tracker.Snapshot()
	snap.IdleRemaining = s.loop.Remaining()

	var errs []error
	if now, err := s.sched.Now(); err != nil {
		errs = append(errs, err)
	} else {
		snap.RTCTime = now
	}
	if at, enabled, err := s.sched.Armed(); err != nil {
		errs = append(errs, err)
	} else if enabled {
		snap.Armed = &status.Alarm{At: at, Timer: -1}
	}
	if alert, ok, err := s.sched.NextAlert(); err != nil {
		errs = append(errs, err)
	} else if ok {
		snap.NextAlert = &status.Alarm{At: alert.At, Timer: alert.Index}
	}
	if err := errors.Join(errs...); err != nil {
		snap.RTCError = err.Error()
	}
	return snap
}
