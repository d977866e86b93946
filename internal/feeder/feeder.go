// Package feeder drives the feed relay. A feed is a Cycle: a one-shot that
// energizes the relay, followed by a one-shot that de-energizes it after
// quantity × factor milliseconds. Both run from the control loop's task queue,
// so feeding never blocks the loop.
//
// An Actuator is owned by the control-loop goroutine and is not safe for
// concurrent use.
package feeder

import (
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/schedule"
	"github.com/sweeney/feeder/internal/tasks"
)

// Task names in the control-loop queue.
const (
	TaskStart = "feed.start"
	TaskStop  = "feed.stop"
)

// Trigger records what asked for a feed.
type Trigger string

const (
	TriggerAlarm     Trigger = "alarm"
	TriggerInterrupt Trigger = "interrupt"
	TriggerManual    Trigger = "manual"
)

// Cycle is one bounded relay-energized interval.
type Cycle struct {
	ID        string
	Trigger   Trigger
	StartedAt time.Time
	Planned   time.Duration
}

// Observer is notified of cycle transitions. Called on the loop goroutine.
type Observer interface {
	FeedStarted(c Cycle)
	FeedStopped(c Cycle, at time.Time, forced bool)
}

// RelayObserver is an Observer that also wants every relay write: the level
// last written, whether it is a manual override and the write error, if any.
type RelayObserver interface {
	RelayChanged(energized, manual bool, err error)
}

// DurationSource provides the planned feed duration (quantity × factor).
type DurationSource interface {
	FeedDuration() time.Duration
}

// Rearmer recomputes and programs the next alarm.
type Rearmer interface {
	Arm() (schedule.Alert, bool, error)
}

// FlagClearer clears the pending interrupt flag.
type FlagClearer interface {
	Clear()
}

// Actuator owns the relay and the active Cycle.
type Actuator struct {
	relay     gpio.Relay
	queue     *tasks.Queue
	durations DurationSource
	rearm     Rearmer
	irq       FlagClearer
	log       *logger.Logger

	cycle     *Cycle
	energized bool
	manual    bool
	relayErr  error
	observers []Observer
}

// New creates an Actuator. The relay is assumed de-energized.
func New(relay gpio.Relay, queue *tasks.Queue, durations DurationSource, rearm Rearmer, irq FlagClearer, log *logger.Logger) *Actuator {
	return &Actuator{
		relay:     relay,
		queue:     queue,
		durations: durations,
		rearm:     rearm,
		irq:       irq,
		log:       log,
	}
}

// AddObserver registers o for cycle notifications.
func (a *Actuator) AddObserver(o Observer) {
	a.observers = append(a.observers, o)
}

// StartFeeding arms a new Cycle. It returns false, doing nothing, when a cycle
// is already active: concurrent requests are coalesced, never stacked.
func (a *Actuator) StartFeeding(now time.Time, trigger Trigger) bool {
	if a.cycle != nil {
		a.log.Debugw("feed already active, request coalesced", "trigger", trigger, "cycle", a.cycle.ID)
		return false
	}
	a.cycle = &Cycle{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: now,
		Planned:   a.durations.FeedDuration(),
	}
	a.queue.Schedule(TaskStart, now, a.energize)
	return true
}

func (a *Actuator) energize(now time.Time) {
	if a.cycle == nil {
		return
	}
	a.cycle.StartedAt = now
	a.set(true)
	a.relayChanged()
	a.log.Infow("feeding started", "cycle", a.cycle.ID, "trigger", a.cycle.Trigger, "duration", a.cycle.Planned)
	c := *a.cycle
	for _, o := range a.observers {
		o.FeedStarted(c)
	}
	a.queue.Schedule(TaskStop, now.Add(a.cycle.Planned), a.StopFeeding)
}

// StopFeeding de-energizes the relay, ends the active cycle, clears the
// interrupt flag and re-arms the alarm: a completed feed retires the timer
// that just fired.
func (a *Actuator) StopFeeding(now time.Time) {
	a.set(false)
	a.queue.Cancel(TaskStart)
	a.queue.Cancel(TaskStop)
	a.manual = false
	a.relayChanged()
	a.irq.Clear()

	if a.cycle != nil {
		c := *a.cycle
		a.cycle = nil
		a.log.Infow("feeding finished", "cycle", c.ID, "elapsed", now.Sub(c.StartedAt))
		for _, o := range a.observers {
			o.FeedStopped(c, now, false)
		}
	}

	if _, _, err := a.rearm.Arm(); err != nil {
		a.log.Errorw("re-arming alarm after feed failed", "err", err)
	}
}

// ForceOff de-energizes the relay unconditionally and drops any active cycle
// without re-arming. Used on entry to sleep.
func (a *Actuator) ForceOff(now time.Time) {
	a.set(false)
	a.queue.Cancel(TaskStart)
	a.queue.Cancel(TaskStop)
	a.manual = false
	a.relayChanged()
	if a.cycle != nil {
		c := *a.cycle
		a.cycle = nil
		a.log.Warnw("feeding cut short", "cycle", c.ID, "elapsed", now.Sub(c.StartedAt))
		for _, o := range a.observers {
			o.FeedStopped(c, now, true)
		}
	}
}

// SetManual drives the relay directly. No cycle is created, there is no
// automatic stop and the alarm is not re-armed.
func (a *Actuator) SetManual(on bool) error {
	if err := a.set(on); err != nil {
		a.relayChanged()
		return err
	}
	a.manual = on
	a.relayChanged()
	a.log.Infow("manual feed", "on", on)
	return nil
}

// IsFeeding reports whether a cycle's start or stop one-shot is pending.
func (a *Actuator) IsFeeding() bool {
	return a.cycle != nil
}

// Active returns the active cycle.
func (a *Actuator) Active() (Cycle, bool) {
	if a.cycle == nil {
		return Cycle{}, false
	}
	return *a.cycle, true
}

// Energized reports the last state written to the relay.
func (a *Actuator) Energized() bool {
	return a.energized
}

// Manual reports whether the relay is on by manual override.
func (a *Actuator) Manual() bool {
	return a.manual
}

// RelayError returns the error of the last relay write, nil once a write
// succeeds again. It wraps gpio.ErrHardware.
func (a *Actuator) RelayError() error {
	return a.relayErr
}

func (a *Actuator) set(on bool) error {
	err := a.relay.Set(on)
	a.relayErr = err
	if err != nil {
		a.log.Errorw("relay write failed", "on", on, "err", err)
		return err
	}
	a.energized = on
	return nil
}

func (a *Actuator) relayChanged() {
	for _, o := range a.observers {
		if r, ok := o.(RelayObserver); ok {
			r.RelayChanged(a.energized, a.manual, a.relayErr)
		}
	}
}
