package power

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/schedule"
	"github.com/sweeney/feeder/internal/tasks"
)

// TaskSleep is the queue name of a pending sleep request.
const TaskSleep = "power.sleep"

// DefaultSleepGrace delays a requested sleep so the reply can reach the client.
const DefaultSleepGrace = 500 * time.Millisecond

// SettingsSource provides the auto-sleep settings.
type SettingsSource interface {
	SystemConfig() config.SystemConfig
}

// Armer programs the next alarm.
type Armer interface {
	Arm() (schedule.Alert, bool, error)
}

// Observer is notified of state transitions, on the loop goroutine.
type Observer interface {
	StateChanged(from, to State, reason string)
}

// WakeObserver is an Observer that also wants the classified wake cause.
type WakeObserver interface {
	WakeClassified(cause WakeCause)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Platform Platform
	Actuator *feeder.Actuator
	Queue    *tasks.Queue
	Armer    Armer
	Settings SettingsSource
	Flag     *Flag
	Log      *logger.Logger

	// Now returns the monotonic uptime clock. Defaults to time.Now.
	Now func() time.Time

	// SleepGrace defaults to DefaultSleepGrace.
	SleepGrace time.Duration
}

type request struct {
	fn   func(now time.Time) error
	done chan error
}

// Controller is the power-state machine. Boot and Run must be called from
// the same goroutine (the control loop); every other method is safe to call
// from any goroutine.
type Controller struct {
	platform Platform
	actuator *feeder.Actuator
	queue    *tasks.Queue
	armer    Armer
	settings SettingsSource
	flag     *Flag
	log      *logger.Logger
	now      func() time.Time
	grace    time.Duration

	start     time.Time
	state     atomic.Int32
	idleBase  atomic.Int64 // offset from start, nanoseconds
	wake      WakeCause
	observers []Observer

	requests chan request
	stopped  chan struct{}
	sleepFor string
}

// New creates a Controller in the Booting state.
func New(d Deps) *Controller {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	grace := d.SleepGrace
	if grace == 0 {
		grace = DefaultSleepGrace
	}
	c := &Controller{
		platform: d.Platform,
		actuator: d.Actuator,
		queue:    d.Queue,
		armer:    d.Armer,
		settings: d.Settings,
		flag:     d.Flag,
		log:      d.Log,
		now:      now,
		grace:    grace,
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
	c.start = now()
	c.state.Store(int32(Booting))
	return c
}

// AddObserver registers o for state transitions. Call before Boot.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// State returns the current power state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// WakeCause returns the cause classified by Boot.
func (c *Controller) WakeCause() WakeCause {
	return c.wake
}

func (c *Controller) transition(to State, reason string) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.log.Infow("power state", "from", from.String(), "to", to.String(), "reason", reason)
	for _, o := range c.observers {
		o.StateChanged(from, to, reason)
	}
}

// Boot classifies the wake cause. On an alarm wake it feeds to completion,
// re-arms the alarm and sleeps, returning Sleeping. Otherwise it enters
// Interactive and returns; the caller brings up the network and calls Run.
func (c *Controller) Boot(ctx context.Context, tick <-chan time.Time) (State, error) {
	cause, err := c.platform.WakeCause()
	if err != nil {
		c.log.Warnw("wake cause unreadable, assuming power-on", "err", err)
	}
	c.wake = cause
	c.log.Infow("boot", "wake_cause", cause.String())
	for _, o := range c.observers {
		if w, ok := o.(WakeObserver); ok {
			w.WakeClassified(cause)
		}
	}

	if cause != WakeAlarm {
		c.Touch()
		c.transition(Interactive, "wake: "+cause.String())
		return Interactive, nil
	}

	c.transition(Feeding, "wake: "+cause.String())
	now := c.now()
	c.actuator.StartFeeding(now, feeder.TriggerAlarm)
	c.queue.Poll(now)

	// Nothing else runs on this path, so wait out the feed on the loop ticks.
	for c.actuator.IsFeeding() {
		select {
		case <-ctx.Done():
			c.enterSleep(c.now(), "cancelled during alarm feed")
			return Sleeping, ctx.Err()
		case <-tick:
			c.queue.Poll(c.now())
		}
	}

	return Sleeping, c.enterSleep(c.now(), "alarm feed complete")
}

// Run is the interactive control loop. Each tick it starts a feed if the
// interrupt flag was raised, runs due one-shots and checks the idle clock.
// It returns after entering sleep, or when ctx is cancelled, in which case
// the relay is forced off first.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	defer close(c.stopped)

	for {
		select {
		case <-ctx.Done():
			c.actuator.ForceOff(c.now())
			c.log.Infow("control loop stopped", "err", ctx.Err())
			return nil

		case req := <-c.requests:
			now := c.now()
			err := req.fn(now)
			slept := c.step(now)
			req.done <- err
			if slept {
				return nil
			}

		case <-tick:
			if c.step(c.now()) {
				return nil
			}
		}
	}
}

// step runs one loop iteration and reports whether the device went to sleep.
func (c *Controller) step(now time.Time) bool {
	if c.flag.TestAndClear() {
		c.log.Infow("rtc interrupt")
		c.actuator.StartFeeding(now, feeder.TriggerInterrupt)
	}

	c.queue.Poll(now)

	if c.sleepFor == "" {
		if sys := c.settings.SystemConfig(); sys.AutoSleep && c.remaining(now, sys) <= 0 {
			c.sleepFor = "idle timeout"
		}
	}
	if c.sleepFor != "" {
		if err := c.enterSleep(now, c.sleepFor); err != nil {
			c.log.Errorw("sleep failed", "err", err)
		}
		return true
	}
	return false
}

// enterSleep forces the relay off, re-arms the alarm and hands over to the
// platform. The relay is never left energized across sleep.
func (c *Controller) enterSleep(now time.Time, reason string) error {
	c.actuator.ForceOff(now)
	c.queue.Clear()
	if _, _, err := c.armer.Arm(); err != nil {
		c.log.Errorw("arming alarm before sleep failed, wake-from-sleep feeding not guaranteed", "err", err)
	}
	c.transition(Sleeping, reason)
	return c.platform.Sleep()
}

// Do runs fn on the loop goroutine and returns its error once the loop
// iteration it ran in has finished. It counts as a qualifying request and
// resets the idle clock.
func (c *Controller) Do(ctx context.Context, fn func(now time.Time) error) error {
	c.Touch()
	done := make(chan error, 1)
	select {
	case c.requests <- request{fn: fn, done: done}:
	case <-c.stopped:
		return ErrSleeping
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestSleep schedules sleep after the grace period.
func (c *Controller) RequestSleep(ctx context.Context) error {
	return c.Do(ctx, func(now time.Time) error {
		if !c.queue.Pending(TaskSleep) {
			c.queue.Schedule(TaskSleep, now.Add(c.grace), func(time.Time) {
				c.sleepFor = "sleep requested"
			})
		}
		return nil
	})
}

// Touch resets the idle clock.
func (c *Controller) Touch() {
	c.idleBase.Store(int64(c.now().Sub(c.start)))
}

// Remaining returns auto_sleep_after minus the whole seconds elapsed since the
// last qualifying request. It goes negative once the timeout has passed.
func (c *Controller) Remaining() int {
	return c.remaining(c.now(), c.settings.SystemConfig())
}

func (c *Controller) remaining(now time.Time, sys config.SystemConfig) int {
	elapsed := now.Sub(c.start) - time.Duration(c.idleBase.Load())
	return sys.AutoSleepAfter - int(elapsed/time.Second)
}

// Uptime returns the time since the controller was created.
func (c *Controller) Uptime() time.Duration {
	return c.now().Sub(c.start)
}
