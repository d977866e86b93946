package mqtt

import "github.com/sweeney/feeder/internal/logger"

// pending is a serialized message waiting for the broker.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. They are
// replayed in publish order on reconnect. When full, the oldest feed event is
// dropped first; system events go only when nothing else is left to drop.
// Not safe for concurrent use.
type outbox struct {
	msgs    []pending
	limit   int
	dropped int
	log     *logger.Logger
}

func newOutbox(limit int, log *logger.Logger) *outbox {
	return &outbox{limit: limit, log: log}
}

func (o *outbox) add(m pending) {
	if len(o.msgs) >= o.limit {
		victim := 0
		for i, old := range o.msgs {
			if old.topic == TopicEvents {
				victim = i
				break
			}
		}
		o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
		if o.dropped == 0 {
			o.log.Warnw("mqtt outbox full, dropping messages", "limit", o.limit)
		}
		o.dropped++
	}
	o.msgs = append(o.msgs, m)
}

// take empties the outbox and returns its messages, oldest first.
func (o *outbox) take() []pending {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		o.log.Warnw("mqtt outbox overflowed while disconnected", "dropped", o.dropped)
	}
	msgs := o.msgs
	o.msgs = nil
	o.dropped = 0
	return msgs
}

func (o *outbox) size() int { return len(o.msgs) }
