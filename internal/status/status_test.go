package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/feeder/internal/feeder"
	"github.com/sweeney/feeder/internal/power"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 100 {
		t.Errorf("Config.TickMs: got %d, want 100", snap.Config.TickMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.State != power.Booting {
		t.Errorf("State: got %v, want BOOTING", snap.State)
	}
	if snap.Feeding {
		t.Error("expected Feeding=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestStateChanged(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.StateChanged(power.Booting, power.Interactive, "wake: POWER_ON")
	if got := tr.Snapshot().State; got != power.Interactive {
		t.Errorf("State: got %v, want INTERACTIVE", got)
	}

	tr.WakeClassified(power.WakeAlarm)
	if got := tr.Snapshot().WakeCause; got != power.WakeAlarm {
		t.Errorf("WakeCause: got %v, want ALARM", got)
	}
}

func TestFeedCycle(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	c := feeder.Cycle{ID: "c1", Trigger: feeder.TriggerAlarm, StartedAt: start, Planned: 50 * time.Millisecond}

	tr.FeedStarted(c)
	snap := tr.Snapshot()
	if !snap.Feeding {
		t.Error("expected Feeding=true")
	}
	if snap.FeedCount != 1 {
		t.Errorf("FeedCount: got %d, want 1", snap.FeedCount)
	}
	if snap.LastFeed == nil || snap.LastFeed.ID != "c1" {
		t.Fatalf("LastFeed: got %+v", snap.LastFeed)
	}
	if !snap.LastFeed.StoppedAt.IsZero() {
		t.Error("expected StoppedAt zero while running")
	}

	tr.FeedStopped(c, start.Add(50*time.Millisecond), false)
	snap = tr.Snapshot()
	if snap.Feeding {
		t.Error("expected Feeding=false after stop")
	}
	if !snap.LastFeed.StoppedAt.Equal(start.Add(50 * time.Millisecond)) {
		t.Errorf("StoppedAt: got %v", snap.LastFeed.StoppedAt)
	}
	if snap.LastFeed.Forced {
		t.Error("expected Forced=false")
	}
}

func TestFeedStoppedForced(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	c := feeder.Cycle{ID: "c1", Trigger: feeder.TriggerInterrupt}

	tr.FeedStarted(c)
	tr.FeedStopped(c, time.Now(), true)

	if !tr.Snapshot().LastFeed.Forced {
		t.Error("expected Forced=true")
	}
}

func TestRelayChanged(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.RelayChanged(true, true, nil)
	snap := tr.Snapshot()
	if !snap.Energized || !snap.Manual {
		t.Errorf("got energized=%v manual=%v, want both true", snap.Energized, snap.Manual)
	}

	tr.RelayChanged(true, false, errors.New("gpio: hardware error: line busy"))
	snap = tr.Snapshot()
	if snap.Manual {
		t.Error("expected Manual=false")
	}
	if snap.RelayErr != "gpio: hardware error: line busy" {
		t.Errorf("RelayErr: got %q", snap.RelayErr)
	}

	tr.RelayChanged(false, false, nil)
	if tr.Snapshot().RelayErr != "" {
		t.Error("a successful write clears the relay error")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Mode: "nmcli", Address: "10.42.0.1", SSID: "Futterautomat"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.Address != "10.42.0.1" {
		t.Errorf("Network.Address: got %q, want %q", snap.Network.Address, "10.42.0.1")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	c := feeder.Cycle{ID: "c1"}
	tr.FeedStarted(c)

	snap1 := tr.Snapshot()

	tr.FeedStopped(c, time.Now(), true)

	if !snap1.Feeding {
		t.Error("snapshot should be a copy; Feeding was modified")
	}
	if !snap1.LastFeed.StoppedAt.IsZero() || snap1.LastFeed.Forced {
		t.Error("snapshot should be a copy; LastFeed was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:         power.Interactive,
		WakeCause:     power.WakePowerOn,
		FeedCount:     5,
		IdleRemaining: 120,
		RTCTime:       start.Add(15 * time.Minute),
		NextAlert:     &Alarm{At: start.Add(8 * time.Hour), Timer: 1},
		Armed:         &Alarm{At: start.Add(8 * time.Hour), Timer: -1},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{TickMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.State != "INTERACTIVE" {
		t.Errorf("State: got %q, want INTERACTIVE", parsed.Status.State)
	}
	if parsed.Status.WakeCause != "POWER_ON" {
		t.Errorf("WakeCause: got %q, want POWER_ON", parsed.Status.WakeCause)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.IdleRemaining != 120 {
		t.Errorf("IdleRemaining: got %d, want 120", parsed.Status.IdleRemaining)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.FeedCount != 5 {
		t.Errorf("FeedCount: got %d, want 5", parsed.Status.FeedCount)
	}
	if parsed.Status.RTC.Degraded {
		t.Error("expected RTC.Degraded=false")
	}
	if parsed.Status.RTC.NextAlert == nil || parsed.Status.RTC.NextAlert.At != "2026-01-01T08:00:00Z" {
		t.Errorf("NextAlert: got %+v", parsed.Status.RTC.NextAlert)
	}
	if idx := parsed.Status.RTC.NextAlert.Timer; idx == nil || *idx != 1 {
		t.Errorf("NextAlert.Timer: got %v, want 1", idx)
	}
	if parsed.Status.RTC.Armed == nil || parsed.Status.RTC.Armed.Timer != nil {
		t.Errorf("Armed: got %+v, want instant without timer", parsed.Status.RTC.Armed)
	}
	if parsed.Status.LastFeed != nil {
		t.Error("expected no LastFeed")
	}
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
}

func TestFormatJSONDegradedRTC(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		RTCError:  "rtc: hardware unreachable",
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if !parsed.Status.RTC.Degraded {
		t.Error("expected RTC.Degraded=true")
	}
	if parsed.Status.RTC.Time != "" {
		t.Errorf("RTC.Time: got %q, want empty", parsed.Status.RTC.Time)
	}
	if parsed.Status.State != "BOOTING" {
		t.Errorf("State: got %q, want BOOTING", parsed.Status.State)
	}
}

func TestFormatJSONRelayFault(t *testing.T) {
	snap := Snapshot{
		Energized: true,
		RelayErr:  "gpio: hardware error: set relay pin: busy",
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	relay := parsed.Status.Relay
	if !relay.Energized || !relay.Degraded {
		t.Errorf("relay: got %+v, want energized and degraded", relay)
	}
	if relay.Error != snap.RelayErr {
		t.Errorf("relay error: got %q", relay.Error)
	}
}

func TestFormatJSONLastFeed(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start,
		LastFeed: &FeedRecord{
			ID:        "c1",
			Trigger:   feeder.TriggerManual,
			StartedAt: start,
			Planned:   2500 * time.Millisecond,
		},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	f := parsed.Status.LastFeed
	if f == nil {
		t.Fatal("expected LastFeed")
	}
	if f.Trigger != "manual" || f.PlannedMs != 2500 || !f.InProgress || f.StoppedAt != "" {
		t.Errorf("LastFeed: got %+v", f)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:     power.Sleeping,
		WakeCause: power.WakeAlarm,
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SLEEP", "idle timeout")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SLEEP" {
		t.Errorf("Event: got %q, want SLEEP", parsed.Status.Event)
	}
	if parsed.Status.Reason != "idle timeout" {
		t.Errorf("Reason: got %q, want idle timeout", parsed.Status.Reason)
	}
	if parsed.Status.State != "SLEEPING" {
		t.Errorf("State: got %q, want SLEEPING", parsed.Status.State)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "BOOT", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "BOOT" {
		t.Errorf("event: got %v, want BOOT", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Mode: "static", Address: "192.168.4.1", SSID: "Futterautomat"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.Address != "192.168.4.1" {
		t.Errorf("Network.Address: got %q, want 192.168.4.1", parsed.Status.Network.Address)
	}
	if parsed.Status.Network.SSID != "Futterautomat" {
		t.Errorf("Network.SSID: got %q, want Futterautomat", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c := feeder.Cycle{ID: "c"}
			tr.FeedStarted(c)
			tr.FeedStopped(c, time.Now(), false)
			tr.StateChanged(power.Interactive, power.Feeding, "")
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{Address: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
