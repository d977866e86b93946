// Package mqtt announces feed cycles and power transitions on an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topics.
const (
	TopicEvents = "feeder/events" // FEED_START, FEED_STOP
	TopicSystem = "feeder/system" // BOOT, SLEEP, SHUTDOWN (will)
)

// Event names.
const (
	EventFeedStart = "FEED_START"
	EventFeedStop  = "FEED_STOP"
	EventBoot      = "BOOT"
	EventSleep     = "SLEEP"
	EventShutdown  = "SHUTDOWN"
)

// Publisher sends feeder events to a broker. A failed publish is reported
// to the caller and never affects feeding.
type Publisher interface {
	Publish(event FeedEvent) error
	PublishSystem(event SystemEvent) error
	Close() error
}


// FeedEvent is the start or end of one feed cycle.
type FeedEvent struct {
	Timestamp time.Time
	Event     string // EventFeedStart or EventFeedStop
	CycleID   string
	Trigger   string
	Planned   time.Duration
	Elapsed   time.Duration // FEED_STOP only
	Forced    bool          // FEED_STOP only: cut short by sleep entry
}

// SystemEvent represents a system lifecycle event (boot, sleep, LWT).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // status document; sent verbatim when set
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Feed FeedPayload `json:"feed"`
}

// FeedPayload contains the feed event details.
type FeedPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	CycleID   string `json:"cycle_id"`
	Trigger   string `json:"trigger"`
	PlannedMs int64  `json:"planned_ms"`
	ElapsedMs *int64 `json:"elapsed_ms,omitempty"`
	Forced    bool   `json:"forced,omitempty"`
}

// FormatPayload creates the JSON payload for a feed event.
func FormatPayload(event FeedEvent) ([]byte, error) {
	p := FeedPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		CycleID:   event.CycleID,
		Trigger:   event.Trigger,
		PlannedMs: event.Planned.Milliseconds(),
		Forced:    event.Forced,
	}
	if event.Event == EventFeedStop {
		ms := event.Elapsed.Milliseconds()
		p.ElapsedMs = &ms
	}
	return json.Marshal(Payload{Feed: p})
}

// SystemPayload is the bare system message, used for the will, which is
// registered at connect time and so cannot carry a status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner is the body of SystemPayload.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes a system event. A preformatted RawPayload, the
// status document for BOOT and SLEEP, is sent as is.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
