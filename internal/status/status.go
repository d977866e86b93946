// Package status provides a thread-safe status tracker for the feeder daemon.
// It is fed by the power controller and feed actuator observers and read by
// HTTP handlers and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/power"
)

// NetworkInfo describes the access point the device serves on.
type NetworkInfo struct {
	Mode      string
	Interface string
	Address   string
	SSID      string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs   int64
	Broker   string
	HTTPAddr string
	Timezone string
	Store    string
}

// FeedRecord describes the most recent feed cycle.
type FeedRecord struct {
	ID        string
	Trigger   feeder.Trigger
	StartedAt time.Time
	StoppedAt time.Time // zero while running
	Planned   time.Duration
	Forced    bool
}

// Alarm is an RTC alarm instant. Timer is the index of the timer it belongs
// to, or -1 when read back from the RTC.
type Alarm struct {
	At    time.Time
	Timer int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State     power.State
	WakeCause power.WakeCause
	Feeding   bool
	Energized bool
	Manual    bool
	RelayErr  string
	LastFeed  *FeedRecord
	FeedCount int

	// Filled in by the caller from live queries, not tracked.
	IdleRemaining int
	RTCTime       time.Time
	RTCError      string
	Armed         *Alarm
	NextAlert     *Alarm

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     power.Booting,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// StateChanged records a power state transition.
func (t *Tracker) StateChanged(_, to power.State, _ string) {
	t.mu.Lock()
	t.snap.State = to
	t.mu.Unlock()
}

// WakeClassified records the classified wake cause.
func (t *Tracker) WakeClassified(c power.WakeCause) {
	t.mu.Lock()
	t.snap.WakeCause = c
	t.mu.Unlock()
}

// FeedStarted records the start of a feed cycle.
func (t *Tracker) FeedStarted(c feeder.Cycle) {
	t.mu.Lock()
	t.snap.Feeding = true
	t.snap.FeedCount++
	t.snap.LastFeed = &FeedRecord{
		ID:        c.ID,
		Trigger:   c.Trigger,
		StartedAt: c.StartedAt,
		Planned:   c.Planned,
	}
	t.mu.Unlock()
}

// FeedStopped records the end of a feed cycle.
func (t *Tracker) FeedStopped(c feeder.Cycle, at time.Time, forced bool) {
	t.mu.Lock()
	t.snap.Feeding = false
	if t.snap.LastFeed != nil && t.snap.LastFeed.ID == c.ID {
		rec := *t.snap.LastFeed
		rec.StoppedAt = at
		rec.Forced = forced
		t.snap.LastFeed = &rec
	}
	t.mu.Unlock()
}

// RelayChanged records the last relay write.
func (t *Tracker) RelayChanged(energized, manual bool, err error) {
	t.mu.Lock()
	t.snap.Energized = energized
	t.snap.Manual = manual
	t.snap.RelayErr = ""
	if err != nil {
		t.snap.RelayErr = err.Error()
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
