package realtime

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"studygroup-chat/internal/stompwire"
)

// testBroker is a minimal STOMP broker speaking one frame per WebSocket message.
type testBroker struct {
	srv *httptest.Server

	mu     sync.Mutex
	reject string
	conns  []*brokerConn
	auth   []string
	seq    int

	frames chan *frame.Frame
}

type brokerConn struct {
	ws   *websocket.Conn
	wmu  sync.Mutex
	subs map[string]string
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()
	b := &testBroker{frames: make(chan *frame.Frame, 256)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.serve(ws, r.Header.Get("Authorization"))
	}))
	t.Cleanup(b.close)
	return b
}

func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

func (b *testBroker) rejectWith(message string) {
	b.mu.Lock()
	b.reject = message
	b.mu.Unlock()
}

func (b *testBroker) serve(ws *websocket.Conn, auth string) {
	c := &brokerConn{ws: ws, subs: make(map[string]string)}
	defer b.remove(c)

	_, data, err := ws.ReadMessage()
	if err != nil {
		return
	}
	f, err := stompwire.Decode(data)
	if err != nil || f.Command != frame.CONNECT {
		return
	}

	b.mu.Lock()
	b.auth = append(b.auth, auth)
	reject := b.reject
	b.mu.Unlock()
	if reject != "" {
		_ = c.write(frame.New(frame.ERROR, frame.Message, reject))
		_ = ws.Close()
		return
	}
	if err := c.write(frame.New(frame.CONNECTED, frame.Version, stompwire.Version, frame.HeartBeat, "0,0")); err != nil {
		return
	}

	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if stompwire.IsHeartbeat(data) {
			continue
		}
		f, err := stompwire.Decode(data)
		if err != nil {
			continue
		}
		b.mu.Lock()
		switch f.Command {
		case frame.SUBSCRIBE:
			c.subs[f.Header.Get(frame.Id)] = f.Header.Get(frame.Destination)
		case frame.UNSUBSCRIBE:
			delete(c.subs, f.Header.Get(frame.Id))
		}
		b.mu.Unlock()
		select {
		case b.frames <- f:
		default:
		}
		if f.Command == frame.DISCONNECT {
			return
		}
	}
}

func (b *testBroker) remove(c *brokerConn) {
	_ = c.ws.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.conns {
		if other == c {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			return
		}
	}
}

func (c *brokerConn) write(f *frame.Frame) error {
	return c.writeRaw(stompwire.MustEncode(f))
}

func (c *brokerConn) writeRaw(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// subscriptions returns the ids subscribed to destination across open connections.
func (b *testBroker) subscriptions(destination string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for _, c := range b.conns {
		for id, dest := range c.subs {
			if dest == destination {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// publish delivers body to every subscriber of destination.
func (b *testBroker) publish(destination, body string) {
	b.mu.Lock()
	type target struct {
		c  *brokerConn
		id string
	}
	var targets []target
	for _, c := range b.conns {
		for id, dest := range c.subs {
			if dest == destination {
				targets = append(targets, target{c, id})
			}
		}
	}
	b.mu.Unlock()
	for _, t := range targets {
		b.deliver(t.c, t.id, destination, body)
	}
}

// publishTo delivers body to a subscription id whether or not it is still registered.
func (b *testBroker) publishTo(subscriptionID, destination, body string) {
	b.mu.Lock()
	conns := append([]*brokerConn(nil), b.conns...)
	b.mu.Unlock()
	for _, c := range conns {
		b.deliver(c, subscriptionID, destination, body)
	}
}

// publishRaw writes data verbatim to every open connection.
func (b *testBroker) publishRaw(data []byte) {
	b.mu.Lock()
	conns := append([]*brokerConn(nil), b.conns...)
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.writeRaw(data)
	}
}

func (b *testBroker) deliver(c *brokerConn, subscriptionID, destination, body string) {
	b.mu.Lock()
	b.seq++
	id := strconv.Itoa(b.seq)
	b.mu.Unlock()
	f := frame.New(frame.MESSAGE,
		frame.Subscription, subscriptionID,
		frame.MessageId, id,
		frame.Destination, destination,
		frame.ContentType, "application/json",
	)
	f.Body = []byte(body)
	_ = c.write(f)
}

// dropAll closes every open connection without a STOMP goodbye.
func (b *testBroker) dropAll() {
	b.mu.Lock()
	conns := append([]*brokerConn(nil), b.conns...)
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (b *testBroker) handshakes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.auth)
}

func (b *testBroker) authHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth...)
}

func (b *testBroker) close() {
	b.dropAll()
	b.srv.Close()
}
