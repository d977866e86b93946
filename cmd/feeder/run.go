package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logger"
	"github.com/sweeney/feeder/internal/metrics"
	"github.com/sweeney/feeder/internal/mqtt"
	"github.com/sweeney/feeder/internal/netif"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/rtc"
	"github.com/sweeney/feeder/internal/schedule"
	"github.com/sweeney/feeder/internal/session"
	"github.com/sweeney/feeder/internal/status"
	"github.com/sweeney/feeder/internal/tasks"
	"github.com/sweeney/feeder/internal/web"
)

const shutdownTimeout = 5 * time.Second

func run(ctx context.Context, s settings, log *logger.Logger) error {
	var flag power.Flag

	irq, err := gpio.NewRealInterrupt(s.GPIOChip, s.InterruptPin, flag.Set)
	if err != nil {
		return fmt.Errorf("init interrupt: %w", err)
	}
	defer irq.Close()

	relay, err := gpio.NewRealRelay(s.GPIOChip, s.RelayPin)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

	powerLog := log.Named("power")

	clock := openClock(s, log.Named("rtc"))
	defer clock.Close()

	store, closeStore := openStore(s, log.Named("config"))
	defer closeStore()
	if err := store.Load(); err != nil {
		log.Warnw("config store unreadable, using defaults", "err", err)
	}

	reg := prometheus.NewRegistry()
	queue := tasks.New()
	sched := schedule.New(store, clock, log.Named("schedule"))

	var ctrl *power.Controller
	collector := metrics.NewCollector(reg, func() int { return ctrl.Remaining() })
	armer := collector.CountArmErrors(sched)

	actuator := feeder.New(relay, queue, store, armer, &flag, log.Named("feeder"))
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:   s.Tick.Milliseconds(),
		Broker:   s.MQTTBroker,
		HTTPAddr: s.HTTPAddr,
		Timezone: s.Timezone.String(),
		Store:    s.StoreBackend,
	})
	ctrl = power.New(power.Deps{
		Platform: power.NewPlatform(irq, clock, powerLog),
		Actuator: actuator,
		Queue:    queue,
		Armer:    armer,
		Settings: store,
		Flag:     &flag,
		Log:      powerLog,
	})
	actuator.AddObserver(tracker)
	actuator.AddObserver(collector)
	ctrl.AddObserver(tracker)
	ctrl.AddObserver(collector)

	if s.MQTTBroker != "" {
		mqttLog := log.Named("mqtt")
		pub, err := mqtt.NewRealPublisher(s.MQTTBroker, clientID(), mqttLog, tracker.SetMQTTConnected)
		if err != nil {
			mqttLog.Errorw("mqtt disabled", "broker", s.MQTTBroker, "err", err)
		} else {
			defer pub.Close()
			notifier := mqtt.NewNotifier(pub, tracker.Snapshot, mqttLog)
			// Outlives ctx so the SLEEP event can still be flushed on shutdown.
			nctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go notifier.Run(nctx)
			actuator.AddObserver(notifier)
			ctrl.AddObserver(notifier)
		}
	}

	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	state, err := ctrl.Boot(ctx, ticker.C)
	if state == power.Sleeping {
		return err
	}

	creds, err := power.WaitForCredentials(ctx, store, s.Retry, powerLog, time.After)
	if err != nil {
		return err
	}
	ap, err := netif.New(s.APMode, s.APInterface, s.APAddress, log.Named("netif"))
	if err != nil {
		return err
	}
	addr, err := ap.Start(ctx, creds.SSID, creds.Password)
	if err != nil {
		log.Errorw("access point failed, serving on existing interfaces", "err", err)
	}
	tracker.SetNetwork(&status.NetworkInfo{
		Mode:      s.APMode,
		Interface: s.APInterface,
		Address:   addr,
		SSID:      creds.SSID,
	})

	surface := session.New(session.Deps{
		Loop:      ctrl,
		Store:     store,
		Scheduler: sched,
		Actuator:  actuator,
		Tracker:   tracker,
		Log:       log.Named("session"),
	})
	srv := web.New(s.HTTPAddr, surface, log.Named("web"), web.Options{Metrics: metrics.Handler(reg)})

	// Network bring-up does not count against the idle timeout.
	ctrl.Touch()

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()

	g.Go(func() error {
		defer stopLoop()
		return ctrl.Run(loopCtx, ticker.C)
	})
	g.Go(func() error {
		log.Infow("http server listening", "addr", s.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-loopCtx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openClock opens the RTC, falling back to a clock that reports every
// operation as a hardware error.
func openClock(s settings, log *logger.Logger) rtc.Clock {
	dev, err := rtc.Open(s.RTCDevice, s.Timezone)
	if err != nil {
		log.Errorw("rtc unavailable, running degraded", "device", s.RTCDevice, "err", err)
		return rtc.Unavailable(err)
	}
	return dev
}

func openStorage(s settings) (config.Storage, func(), error) {
	if s.StoreBackend == backendSQLite {
		db, err := config.OpenSQLite(s.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return config.NewSQLiteStorage(db, config.DefaultDocumentKey), func() { _ = db.Close() }, nil
	}
	return config.NewFileStorage(afero.NewOsFs(), s.StorePath), func() {}, nil
}

// openStore returns the config store for the configured backend. If the
// backend cannot be opened the store is kept in memory for this boot.
func openStore(s settings, log *logger.Logger) (*config.Store, func()) {
	storage, closeStorage, err := openStorage(s)
	if err != nil {
		log.Errorw("config store unavailable, changes will not persist",
			"backend", s.StoreBackend, "path", s.StorePath, "err", err)
		return config.NewStore(config.NewFileStorage(afero.NewMemMapFs(), s.StorePath), log), func() {}
	}
	return config.NewStore(storage, log), closeStorage
}

// setWifi stores the access-point credentials. Unlike openStore it never
// falls back to memory. An unreadable document is replaced by the defaults,
// as on boot.
func setWifi(w io.Writer, s settings, creds config.WifiCredentials, log *logger.Logger) error {
	if !creds.Complete() {
		return fmt.Errorf("%w: ssid and password are required", config.ErrIncomplete)
	}
	storage, closeStorage, err := openStorage(s)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", config.ErrStorage, s.StorePath, err)
	}
	defer closeStorage()

	store := config.NewStore(storage, log)
	if err := store.Load(); err != nil {
		log.Warnw("config store unreadable, starting from defaults", "err", err)
	}
	if err := store.SetWifiCredentials(creds); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wifi: %s saved to %s\n", creds.SSID, s.StorePath)
	return nil
}

// printState writes the RTC time, the armed alarm and the next alert.
func printState(w io.Writer, s settings, log *logger.Logger) error {
	clock := openClock(s, log)
	defer clock.Close()
	store, closeStore := openStore(s, log)
	defer closeStore()
	if err := store.Load(); err != nil {
		log.Warnw("config store unreadable, using defaults", "err", err)
	}
	return writeState(w, schedule.New(store, clock, log))
}

func writeState(w io.Writer, sched *schedule.Scheduler) error {
	const layout = "2006-01-02 15:04:05 MST"

	now, err := sched.Now()
	if err != nil {
		fmt.Fprintf(w, "RTC: unavailable (%v)\n", err)
		return err
	}
	fmt.Fprintf(w, "RTC: %s\n", now.Format(layout))

	switch at, enabled, err := sched.Armed(); {
	case err != nil:
		fmt.Fprintf(w, "Alarm: unreadable (%v)\n", err)
	case enabled:
		fmt.Fprintf(w, "Alarm: %s\n", at.Format(layout))
	default:
		fmt.Fprintln(w, "Alarm: disabled")
	}

	alert, ok, err := sched.NextAlert()
	switch {
	case err != nil:
		fmt.Fprintf(w, "Next: unavailable (%v)\n", err)
	case ok:
		fmt.Fprintf(w, "Next: %s (timer %d)\n", alert.At.Format(layout), alert.Index)
	default:
		fmt.Fprintln(w, "Next: none")
	}
	return nil
}

func clientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "feeder"
	}
	return "feeder-" + host
}
