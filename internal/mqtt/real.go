package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/feeder/internal/logger"
)

// DefaultOutboxSize is how many messages are held while disconnected.
const DefaultOutboxSize = 64

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    *logger.Logger

	mu  sync.Mutex
	out *outbox

	onStatus func(connected bool)
}

// NewRealPublisher creates a publisher for the given broker. The device may
// boot without a reachable broker, so a connect timeout is not fatal: the
// client keeps retrying in the background. onStatus, if set, is called on
// every connection change.
func NewRealPublisher(broker, clientID string, log *logger.Logger, onStatus func(connected bool)) (*RealPublisher, error) {
	p := &RealPublisher{
		log:      log,
		out:      newOutbox(DefaultOutboxSize, log),
		onStatus: onStatus,
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventShutdown, Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, false).
		SetOnConnectHandler(func(paho.Client) {
			p.setStatus(true)
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnw("mqtt connection lost", "err", err)
			p.setStatus(false)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnw("mqtt broker not reachable yet, retrying in background", "broker", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) setStatus(connected bool) {
	if p.onStatus != nil {
		p.onStatus(connected)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a feed event to the MQTT broker.
func (p *RealPublisher) Publish(event FeedEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(pending{topic: TopicEvents, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pending{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg pending) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.out.add(msg)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.requeue(msg)
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.requeue(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) requeue(msg pending) {
	p.mu.Lock()
	p.out.add(msg)
	p.mu.Unlock()
}

// flush replays held messages in order after a reconnect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.out.take()
	p.mu.Unlock()

	if len(msgs) > 0 {
		p.log.Infow("mqtt replaying held messages", "count", len(msgs))
	}
	for _, msg := range msgs {
		if err := p.publish(msg); err != nil {
			p.log.Warnw("mqtt replay failed", "err", err)
		}
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
