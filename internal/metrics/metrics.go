// Package metrics exposes feeder activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/schedule"
)

// Armer programs the next RTC alarm.
type Armer interface {
	Arm() (schedule.Alert, bool, error)
}

// Collector records feed cycles, power states and alarm failures. It
// implements feeder.Observer and power.Observer.
type Collector struct {
	feeds        *prometheus.CounterVec
	feedDuration prometheus.Histogram
	powerState   *prometheus.GaugeVec
	armErrors    prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg. remaining, if
// non-nil, is sampled on every scrape for the idle countdown.
func NewCollector(reg prometheus.Registerer, remaining func() int) *Collector {
	c := &Collector{
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_feeds_total",
			Help: "Feed cycles started, by trigger.",
		}, []string{"trigger"}),
		feedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feeder_feed_duration_seconds",
			Help:    "Time the relay was energized per feed cycle.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		powerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feeder_power_state",
			Help: "1 for the current power state, 0 otherwise.",
		}, []string{"state"}),
		armErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeder_alarm_arm_errors_total",
			Help: "Failed attempts to program the RTC alarm.",
		}),
	}

	for _, s := range power.States {
		c.powerState.WithLabelValues(s.String()).Set(0)
	}
	c.powerState.WithLabelValues(power.Booting.String()).Set(1)

	reg.MustRegister(c.feeds, c.feedDuration, c.powerState, c.armErrors)

	if remaining != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "feeder_idle_remaining_seconds",
			Help: "Seconds until auto-sleep; negative once the timeout has passed.",
		}, func() float64 { return float64(remaining()) }))
	}
	return c
}

// FeedStarted counts a cycle.
func (c *Collector) FeedStarted(cy feeder.Cycle) {
	c.feeds.WithLabelValues(string(cy.Trigger)).Inc()
}

// FeedStopped observes how long the relay was on.
func (c *Collector) FeedStopped(cy feeder.Cycle, at time.Time, _ bool) {
	c.feedDuration.Observe(at.Sub(cy.StartedAt).Seconds())
}

// StateChanged moves the power state gauge.
func (c *Collector) StateChanged(from, to power.State, _ string) {
	c.powerState.WithLabelValues(from.String()).Set(0)
	c.powerState.WithLabelValues(to.String()).Set(1)
}

type countingArmer struct {
	Armer
	errs prometheus.Counter
}

func (a countingArmer) Arm() (schedule.Alert, bool, error) {
	alert, ok, err := a.Armer.Arm()
	if err != nil {
		a.errs.Inc()
	}
	return alert, ok, err
}

// CountArmErrors wraps a so each failed Arm is counted.
func (c *Collector) CountArmErrors(a Armer) Armer {
	return countingArmer{Armer: a, errs: c.armErrors}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
