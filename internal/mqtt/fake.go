package mqtt

import "sync"

// Message is one publish seen by FakePublisher.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakePublisher records what would have been sent to the broker. Safe for
// concurrent use, so tests can read it while a Notifier publishes.
type FakePublisher struct {
	mu        sync.Mutex
	feeds     []FeedEvent
	systems   []SystemEvent
	messages  []Message
	err       error
	connected bool
	closed    bool
}

// NewFakePublisher creates a connected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{connected: true}
}

// Fail makes every following publish return err; nil restores success.
func (f *FakePublisher) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// SetConnected sets what IsConnected reports.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

func (f *FakePublisher) Publish(event FeedEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.feeds = append(f.feeds, event)
	f.messages = append(f.messages, Message{Topic: TopicEvents, Payload: payload})
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.systems = append(f.systems, event)
	f.messages = append(f.messages, Message{Topic: TopicSystem, Payload: payload, Retained: event.Retained})
	return nil
}

// Feeds returns the published feed events.
func (f *FakePublisher) Feeds() []FeedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FeedEvent(nil), f.feeds...)
}

// Systems returns the published system events.
func (f *FakePublisher) Systems() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systems...)
}

// Messages returns every publish in order.
func (f *FakePublisher) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
