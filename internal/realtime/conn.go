package realtime

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"studygroup-chat/internal/stompwire"
)

// connection owns one WebSocket and its read/write pumps. The write pump is the only
// goroutine writing to the socket.
type connection struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	sendEvery    time.Duration
	expectEvery  time.Duration
	writeTimeout time.Duration
	onFrame      func(*frame.Frame)

	sendMu     sync.Mutex
	sendClosed bool

	closeOnce sync.Once
	err       error
}

func newConnection(ws *websocket.Conn, cfg Config, sendEvery, expectEvery time.Duration) *connection {
	return &connection{
		ws:           ws,
		send:         make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
		sendEvery:    sendEvery,
		expectEvery:  expectEvery,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *connection) start(onFrame func(*frame.Frame)) {
	c.onFrame = onFrame
	go c.readPump()
	go c.writePump()
}

// enqueue hands an encoded frame to the write pump. It returns false once the
// connection is closing.
func (c *connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

// shutdown queues a DISCONNECT and lets the write pump close the socket after flushing.
func (c *connection) shutdown() {
	c.sendMu.Lock()
	if !c.sendClosed {
		select {
		case c.send <- stompwire.MustEncode(frame.New(frame.DISCONNECT)):
		case <-c.done:
		}
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(c.writeTimeout):
		c.close(nil)
	}
}

// wait blocks until the connection is closed and returns the reason.
func (c *connection) wait() error {
	<-c.done
	return c.err
}

func (c *connection) close(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *connection) readPump() {
	for {
		if c.expectEvery > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.expectEvery))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = ErrConnectionLost
			}
			c.close(err)
			return
		}
		if stompwire.IsHeartbeat(data) {
			continue
		}
		f, err := stompwire.Decode(data)
		if err != nil {
			log.Printf("realtime: dropping undecodable frame err=%v", err)
			continue
		}
		c.onFrame(f)
	}
}

func (c *connection) writePump() {
	var tick <-chan time.Time
	if c.sendEvery > 0 {
		ticker := time.NewTicker(c.sendEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(c.writeTimeout))
				c.close(nil)
				return
			}
			if err := c.write(data); err != nil {
				c.close(err)
				return
			}
		case <-tick:
			if err := c.write(stompwire.Heartbeat()); err != nil {
				c.close(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	err := c.ws.WriteMessage(websocket.TextMessage, data)
	if errors.Is(err, websocket.ErrCloseSent) {
		return ErrConnectionLost
	}
	return err
}
