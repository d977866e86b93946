package mqtt

import (
	"context"
	"time"

	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/status"
)

const (
	notifierQueue = 32
	sleepFlush    = 2 * time.Second
)

// Notifier turns feed and power observer callbacks into MQTT messages.
// Callbacks arrive on the control loop and only enqueue; Run publishes, so a
// slow broker never delays the relay.
type Notifier struct {
	pub      Publisher
	snapshot func() status.Snapshot
	log      *logger.Logger
	now      func() time.Time
	queue    chan func()
}

// NewNotifier creates a Notifier. snapshot supplies the status document
// attached to BOOT and SLEEP events.
func NewNotifier(pub Publisher, snapshot func() status.Snapshot, log *logger.Logger) *Notifier {
	return &Notifier{
		pub:      pub,
		snapshot: snapshot,
		log:      log,
		now:      time.Now,
		queue:    make(chan func(), notifierQueue),
	}
}

// Run publishes queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-n.queue:
			fn()
		}
	}
}

func (n *Notifier) enqueue(fn func()) bool {
	select {
	case n.queue <- fn:
		return true
	default:
		n.log.Warnw("mqtt notifier queue full, dropping event")
		return false
	}
}

// Flush waits until everything queued so far has been published, or timeout.
func (n *Notifier) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	if !n.enqueue(func() { close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (n *Notifier) publish(ev FeedEvent) {
	n.enqueue(func() {
		if err := n.pub.Publish(ev); err != nil {
			n.log.Warnw("mqtt publish failed", "event", ev.Event, "err", err)
		}
	})
}

func (n *Notifier) publishSystem(event, reason string) {
	ev := SystemEvent{
		Timestamp:  n.now(),
		Event:      event,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(n.snapshot(), event, reason),
		Retained:   true,
	}
	n.enqueue(func() {
		if err := n.pub.PublishSystem(ev); err != nil {
			n.log.Warnw("mqtt publish failed", "event", event, "err", err)
		}
	})
}

// FeedStarted publishes FEED_START.
func (n *Notifier) FeedStarted(c feeder.Cycle) {
	n.publish(FeedEvent{
		Timestamp: n.now(),
		Event:     EventFeedStart,
		CycleID:   c.ID,
		Trigger:   string(c.Trigger),
		Planned:   c.Planned,
	})
}

// FeedStopped publishes FEED_STOP.
func (n *Notifier) FeedStopped(c feeder.Cycle, at time.Time, forced bool) {
	n.publish(FeedEvent{
		Timestamp: n.now(),
		Event:     EventFeedStop,
		CycleID:   c.ID,
		Trigger:   string(c.Trigger),
		Planned:   c.Planned,
		Elapsed:   at.Sub(c.StartedAt),
		Forced:    forced,
	})
}

// StateChanged publishes BOOT when leaving Booting and SLEEP on sleep entry.
// Sleep entry waits briefly for the queue to drain since power is about to go.
func (n *Notifier) StateChanged(from, to power.State, reason string) {
	switch {
	case from == power.Booting:
		n.publishSystem(EventBoot, reason)
	case to == power.Sleeping:
		n.publishSystem(EventSleep, reason)
	}
	if to == power.Sleeping {
		if !n.Flush(sleepFlush) {
			n.log.Warnw("mqtt events not flushed before sleep")
		}
	}
}
