package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	WakeCause     string       `json:"wake_cause"`
	Feeding       bool         `json:"feeding"`
	Manual        bool         `json:"manual"`
	Relay         RelayJSON    `json:"relay"`
	IdleRemaining int          `json:"idle_remaining_seconds"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	RTC           RTCJSON      `json:"rtc"`
	LastFeed      *FeedJSON    `json:"last_feed,omitempty"`
	FeedCount     int          `json:"feed_count"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RTCJSON reports the clock and alarm state. Degraded is true while the RTC
// is unreachable.
type RTCJSON struct {
	Time      string     `json:"time,omitempty"`
	Degraded  bool       `json:"degraded"`
	Error     string     `json:"error,omitempty"`
	Armed     *AlarmJSON `json:"armed,omitempty"`
	NextAlert *AlarmJSON `json:"next_alert,omitempty"`
}

// RelayJSON reports the relay output. Degraded is true while the last write
// failed.
type RelayJSON struct {
	Energized bool   `json:"energized"`
	Degraded  bool   `json:"degraded"`
	Error     string `json:"error,omitempty"`
}

// AlarmJSON is the JSON representation of an alarm instant.
type AlarmJSON struct {
	At    string `json:"at"`
	Timer *int   `json:"timer,omitempty"`
}

// FeedJSON is the JSON representation of the last feed cycle.
type FeedJSON struct {
	ID         string `json:"id"`
	Trigger    string `json:"trigger"`
	StartedAt  string `json:"started_at"`
	StoppedAt  string `json:"stopped_at,omitempty"`
	PlannedMs  int64  `json:"planned_ms"`
	Forced     bool   `json:"forced,omitempty"`
	InProgress bool   `json:"in_progress"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Mode      string `json:"mode"`
	Interface string `json:"interface,omitempty"`
	Address   string `json:"address"`
	SSID      string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs   int64  `json:"tick_ms"`
	Broker   string `json:"broker"`
	HTTPAddr string `json:"http_addr"`
	Timezone string `json:"timezone"`
	Store    string `json:"store"`
}

func formatAlarm(a *Alarm) *AlarmJSON {
	if a == nil {
		return nil
	}
	out := &AlarmJSON{At: a.At.Format(time.RFC3339)}
	if a.Timer >= 0 {
		idx := a.Timer
		out.Timer = &idx
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         snap.State.String(),
		WakeCause:     snap.WakeCause.String(),
		Feeding:       snap.Feeding,
		Manual:        snap.Manual,
		Relay: RelayJSON{
			Energized: snap.Energized,
			Degraded:  snap.RelayErr != "",
			Error:     snap.RelayErr,
		},
		IdleRemaining: snap.IdleRemaining,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		RTC: RTCJSON{
			Degraded:  snap.RTCError != "",
			Error:     snap.RTCError,
			Armed:     formatAlarm(snap.Armed),
			NextAlert: formatAlarm(snap.NextAlert),
		},
		FeedCount: snap.FeedCount,
		MQTT:      MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:   snap.Config.TickMs,
			Broker:   snap.Config.Broker,
			HTTPAddr: snap.Config.HTTPAddr,
			Timezone: snap.Config.Timezone,
			Store:    snap.Config.Store,
		},
	}
	if !snap.RTCTime.IsZero() {
		inner.RTC.Time = snap.RTCTime.Format(time.RFC3339)
	}
	if f := snap.LastFeed; f != nil {
		inner.LastFeed = &FeedJSON{
			ID:         f.ID,
			Trigger:    string(f.Trigger),
			StartedAt:  f.StartedAt.UTC().Format(time.RFC3339),
			PlannedMs:  f.Planned.Milliseconds(),
			Forced:     f.Forced,
			InProgress: f.StoppedAt.IsZero(),
		}
		if !f.StoppedAt.IsZero() {
			inner.LastFeed.StoppedAt = f.StoppedAt.UTC().Format(time.RFC3339)
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Mode:      snap.Network.Mode,
			Interface: snap.Network.Interface,
			Address:   snap.Network.Address,
			SSID:      snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
