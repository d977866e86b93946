package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sweeney/feeder/internal/logger"
)

// Store owns the in-memory document and keeps it in step with Storage.
// Every mutating call persists before returning; on a failed write the
// in-memory document stays at the last durable snapshot.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	doc     Document
	log     *logger.Logger
}

// NewStore creates a Store holding Defaults until Load is called.
func NewStore(storage Storage, log *logger.Logger) *Store {
	return &Store{
		storage: storage,
		doc:     Defaults(),
		log:     log,
	}
}

// Load reads the document from storage. On any failure the store falls back
// to Defaults and returns an error wrapping ErrStorage.
func (s *Store) Load() error {
	data, err := s.storage.Read()
	if err != nil {
		s.reset()
		return fmt.Errorf("%w: read: %v", ErrStorage, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		s.reset()
		return fmt.Errorf("%w: parse stored document: %v", ErrStorage, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()

	s.log.Infow("config loaded", "timers", len(doc.Timers), "wifi_complete", doc.Wifi.Complete())
	return nil
}

func (s *Store) reset() {
	s.mu.Lock()
	s.doc = Defaults()
	s.mu.Unlock()
}

// Timers returns a copy of the timer list in stored order.
func (s *Store) Timers() []Timer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Timer{}, s.doc.Timers...)
}

// TimersJSON returns the timer list serialized as a JSON array.
func (s *Store) TimersJSON() ([]byte, error) {
	return json.Marshal(s.Timers())
}

// SetTimers replaces the timer list from a serialized document: either a JSON
// array of timers or an object {"timers": [...]}. All-or-nothing.
func (s *Store) SetTimers(data []byte) error {
	timers, err := decodeTimers(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.update(func(d *Document) { d.Timers = timers })
}

// SetSystemConfig replaces the system settings from a JSON object.
func (s *Store) SetSystemConfig(data []byte) error {
	sys := s.SystemConfig()
	if err := strictUnmarshal(data, &sys); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := sys.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.update(func(d *Document) { d.System = sys })
}

// SetWifiCredentials replaces the access-point credentials.
func (s *Store) SetWifiCredentials(w WifiCredentials) error {
	return s.update(func(d *Document) { d.Wifi = w })
}

// SystemConfig returns the system settings.
func (s *Store) SystemConfig() SystemConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.System
}

// WifiCredentials returns the access-point credentials.
func (s *Store) WifiCredentials() WifiCredentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Wifi
}

// Quantity returns the configured food quantity in grams.
func (s *Store) Quantity() int { return s.SystemConfig().Quantity }

// Factor returns the configured milliseconds-per-gram factor.
func (s *Store) Factor() float64 { return s.SystemConfig().Factor }

// FeedDuration returns quantity × factor milliseconds.
func (s *Store) FeedDuration() time.Duration { return s.SystemConfig().FeedDuration() }

// update applies mutate to a copy, persists it and only then publishes it.
func (s *Store) update(mutate func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	mutate(&next)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStorage, err)
	}
	if err := s.storage.Write(data); err != nil {
		s.log.Errorw("config write failed, keeping last durable document", "err", err)
		return fmt.Errorf("%w: write: %v", ErrStorage, err)
	}
	s.doc = next
	return nil
}

func decodeDocument(data []byte) (Document, error) {
	doc := Defaults()
	if err := strictUnmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	if doc.Timers == nil {
		doc.Timers = []Timer{}
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func decodeTimers(data []byte) ([]Timer, error) {
	trimmed := bytes.TrimSpace(data)
	timers := []Timer{}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := strictUnmarshal(trimmed, &timers); err != nil {
			return nil, err
		}
	} else {
		var wrapper struct {
			Timers *[]Timer `json:"timers"`
		}
		if err := strictUnmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		if wrapper.Timers == nil {
			return nil, fmt.Errorf("missing \"timers\"")
		}
		timers = *wrapper.Timers
	}
	for i, t := range timers {
		if err := t.Time.Validate(); err != nil {
			return nil, fmt.Errorf("timer %d: %w", i, err)
		}
	}
	if timers == nil {
		timers = []Timer{}
	}
	return timers, nil
}

// strictUnmarshal rejects unknown fields and trailing data so a document from
// a different schema fails closed.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after document")
	}
	return nil
}
