// Package config holds the feeder's persisted document: wireless credentials,
// the feeding timers and the system settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Error taxonomy. Match with errors.Is.
var (
	// ErrStorage: persistence unavailable or the stored document is corrupt.
	ErrStorage = errors.New("config: storage error")
	// ErrValidation: a malformed incoming document was rejected.
	ErrValidation = errors.New("config: validation error")
	// ErrIncomplete: wireless credentials are missing.
	ErrIncomplete = errors.New("config: wireless credentials incomplete")
)

// TimeOfDay is a wall-clock time within a day. JSON form is "HH:MM" or "HH:MM:SS".
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// String formats as HH:MM, or HH:MM:SS when seconds are set.
func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalJSON implements json.Marshaler.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time: expected string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("time %q: want HH:MM or HH:MM:SS", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("time %q: %w", s, err)
		}
		vals[i] = v
	}
	t := TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}
	return t, t.Validate()
}

// Validate checks the ranges.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return fmt.Errorf("time %02d:%02d:%02d out of range", t.Hour, t.Minute, t.Second)
	}
	return nil
}

// Weekdays is a bit mask indexed by time.Weekday. The zero mask means every day.
// JSON form is a list of day numbers, 0 = Sunday.
type Weekdays uint8

// EveryDay has all seven bits set.
const EveryDay Weekdays = 0x7f

// NewWeekdays builds a mask from days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// Has reports whether the mask matches d.
func (w Weekdays) Has(d time.Weekday) bool {
	return w == 0 || w&(1<<uint(d)) != 0
}

// MarshalJSON implements json.Marshaler.
func (w Weekdays) MarshalJSON() ([]byte, error) {
	days := []int{}
	if w != 0 {
		for d := 0; d < 7; d++ {
			if w&(1<<uint(d)) != 0 {
				days = append(days, d)
			}
		}
	}
	return json.Marshal(days)
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var days []int
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("weekdays: expected list of integers: %w", err)
	}
	var mask Weekdays
	for _, d := range days {
		if d < 0 || d > 6 {
			return fmt.Errorf("weekday %d out of range 0..6", d)
		}
		mask |= 1 << uint(d)
	}
	*w = mask
	return nil
}

// Timer is one feeding time. Disabled timers never take part in scheduling.
type Timer struct {
	Enabled  bool      `json:"enabled"`
	Time     TimeOfDay `json:"time"`
	Weekdays Weekdays  `json:"weekdays"`
}

// SystemConfig holds the feeding and auto-sleep settings.
type SystemConfig struct {
	AutoSleep      bool    `json:"auto_sleep"`
	AutoSleepAfter int     `json:"auto_sleep_after"` // seconds
	Quantity       int     `json:"quantity"`         // grams
	Factor         float64 `json:"factor"`           // milliseconds per gram
}

// MaxFeedDuration bounds quantity × factor.
const MaxFeedDuration = time.Hour

func (c SystemConfig) feedMillis() float64 {
	return float64(c.Quantity) * c.Factor
}

// FeedDuration returns quantity × factor milliseconds, capped at
// MaxFeedDuration.
func (c SystemConfig) FeedDuration() time.Duration {
	ms := c.feedMillis()
	if ms > float64(MaxFeedDuration/time.Millisecond) {
		return MaxFeedDuration
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Validate checks field ranges and formats.
func (c SystemConfig) Validate() error {
	if c.AutoSleepAfter < 0 {
		return fmt.Errorf("auto_sleep_after %d must not be negative", c.AutoSleepAfter)
	}
	if c.Quantity < 0 {
		return fmt.Errorf("quantity %d must not be negative", c.Quantity)
	}
	if c.Factor < 0 {
		return fmt.Errorf("factor %v must not be negative", c.Factor)
	}
	if c.feedMillis() > float64(MaxFeedDuration/time.Millisecond) {
		return fmt.Errorf("quantity %d × factor %v exceeds %v", c.Quantity, c.Factor, MaxFeedDuration)
	}
	return nil
}

// WifiCredentials are used to bring up the access point.
type WifiCredentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Complete reports whether both fields are set.
func (w WifiCredentials) Complete() bool {
	return w.SSID != "" && w.Password != ""
}

// Document is the single persisted document.
type Document struct {
	Wifi   WifiCredentials `json:"wifi"`
	Timers []Timer         `json:"timers"`
	System SystemConfig    `json:"system"`
}

// Defaults returns the document used when nothing valid is stored.
func Defaults() Document {
	return Document{
		Timers: []Timer{},
		System: SystemConfig{
			AutoSleep:      true,
			AutoSleepAfter: 300,
			Quantity:       0,
			Factor:         1,
		},
	}
}

// Validate checks every timer and the system settings.
func (d Document) Validate() error {
	for i, t := range d.Timers {
		if err := t.Time.Validate(); err != nil {
			return fmt.Errorf("timer %d: %w", i, err)
		}
	}
	return d.System.Validate()
}

func (d Document) clone() Document {
	c := d
	c.Timers = append([]Timer{}, d.Timers...)
	return c
}
