package bus

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// LoopbackServer exposes a Bus topic over a websocket, demonstrating the
// Message{uri,type,payload,index} contract carried over a real socket
// instead of only in-process channels. One connection relays one topic in
// both directions: frames received from the socket are parsed and
// republished on the Bus, and messages published on the Bus for that topic
// are encoded and written back out.
type LoopbackServer struct {
	bus   *Bus
	topic string
}

// NewLoopbackServer binds a server to a single bus topic.
func NewLoopbackServer(b *Bus, topic string) *LoopbackServer {
	return &LoopbackServer{bus: b, topic: topic}
}

// ServeHTTP upgrades the connection and pumps frames until either side
// closes it.
func (s *LoopbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("loopback upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(s.topic)
	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	go func() {
		defer closeDone()
		for {
			select {
			case m, ok := <-sub:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(m)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeDone()
			return
		}
		m, err := ParseFrame(data)
		if err != nil {
			log.Warnf("loopback received a malformed frame on %s: %v", s.topic, err)
			continue
		}
		m.URI = s.topic
		s.bus.Publish(m)
	}
}

// DialLoopback connects to a LoopbackServer's websocket endpoint and relays
// frames between the socket and the local Bus under the given topic, for
// processes that reach another node's bus over the network rather than
// in-process.
func DialLoopback(b *Bus, url, topic string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}

	sub := b.Subscribe(topic)
	go func() {
		for m := range sub {
			if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(m)); err != nil {
				return
			}
		}
	}()
	go func() {
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			m, err := ParseFrame(data)
			if err != nil {
				log.Warnf("loopback received a malformed frame on %s: %v", topic, err)
				continue
			}
			m.URI = topic
			b.Publish(m)
		}
	}()
	return nil
}
