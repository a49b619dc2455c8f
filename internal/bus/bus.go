package bus

import (
	"sync"

	"devv.network/node/internal/logging"
)

var log = logging.Logger("BUS")

// subscriberQueueSize bounds how many messages a slow subscriber can fall
// behind by before Publish starts dropping for it.
const subscriberQueueSize = 256

// Bus is an in-process, topic-keyed publish/subscribe fabric. Every worker
// subscribes to the topics it cares about and publishes onto the topics
// its outgoing messages are addressed to; nothing here assumes a single
// process boundary, so the same Bus also backs the optional websocket
// loopback transport in transport.go.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]chan Message)}
}

// Subscribe returns a channel that receives every message later published
// on topic. The channel is buffered; once a subscriber's buffer is full,
// Publish drops each new message for it rather than stalling every
// publisher.
func (b *Bus) Subscribe(topic string) <-chan Message {
	ch := make(chan Message, subscriberQueueSize)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish fans m out to every current subscriber of m.URI. A subscriber
// whose queue is full has the message dropped for it rather than blocking
// the publisher; this mirrors bounded-queue backpressure elsewhere in the
// node rather than silently growing memory.
func (b *Bus) Publish(m Message) {
	b.mu.RLock()
	targets := b.subs[m.URI]
	b.mu.RUnlock()
	for _, ch := range targets {
		select {
		case ch <- m:
		default:
			log.Warnf("dropping message for slow subscriber on %s (type=%s)", m.URI, m.Type)
		}
	}
}
