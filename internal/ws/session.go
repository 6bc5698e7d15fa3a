package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
	"studygroup-chat/internal/stompwire"
)

// ChatStore is the part of the chat service the broker relies on.
type ChatStore interface {
	CheckMember(ctx context.Context, groupID, userID int64) error
	SaveMessage(ctx context.Context, groupID, senderID int64, req models.SendRequest) (models.ChatMessage, error)
}

// Publisher hands a persisted message to every subscriber of its group.
type Publisher interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
}

// SessionConfig tunes the broker side of a STOMP connection.
type SessionConfig struct {
	ServerName       string
	Heartbeat        time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
}

// DefaultSessionConfig returns the settings used when none are configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ServerName:       "studygroup-chat/1.0",
		Heartbeat:        10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		SendBuffer:       256,
	}
}

var errHandshake = errors.New("stomp handshake failed")

// Session is one client connection speaking STOMP over a WebSocket.
type Session struct {
	ws   *websocket.Conn
	info ConnInfo
	hub  *Hub
	chat ChatStore
	out  Publisher
	cfg  SessionConfig

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error

	mu     sync.Mutex
	subs   map[string]int64
	msgSeq atomic.Uint64
}

func newSession(conn *websocket.Conn, info ConnInfo, hub *Hub, chat ChatStore, out Publisher, cfg SessionConfig) *Session {
	return &Session{
		ws:   conn,
		info: info,
		hub:  hub,
		chat: chat,
		out:  out,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]int64),
	}
}

// serve runs the handshake and then processes client frames until the connection ends.
func (s *Session) serve(ctx context.Context) error {
	defer s.close(nil)

	sendEvery, expectEvery, err := s.handshake()
	if err != nil {
		return err
	}
	s.hub.AddSession(s)
	defer s.hub.RemoveSession(s)

	go s.writePump(sendEvery)
	err = s.readLoop(ctx, expectEvery)
	select {
	case <-s.done:
		if s.err != nil {
			return s.err
		}
	default:
	}
	return err
}

func (s *Session) handshake() (time.Duration, time.Duration, error) {
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	_ = s.ws.SetReadDeadline(deadline)

	var connect *frame.Frame
	for connect == nil {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return 0, 0, err
		}
		if stompwire.IsHeartbeat(data) {
			continue
		}
		f, err := stompwire.Decode(data)
		if err != nil {
			s.reject("malformed frame", err.Error())
			return 0, 0, fmt.Errorf("%w: %v", errHandshake, err)
		}
		connect = f
	}
	observability.IncSTOMPFrame("in", connect.Command)

	if connect.Command != frame.CONNECT && connect.Command != frame.STOMP {
		s.reject("expected CONNECT", "received "+connect.Command)
		return 0, 0, fmt.Errorf("%w: unexpected %s", errHandshake, connect.Command)
	}
	if !acceptsVersion(connect.Header.Get(frame.AcceptVersion)) {
		s.reject("unsupported protocol version", "supported versions are "+stompwire.Version)
		return 0, 0, fmt.Errorf("%w: unsupported version", errHandshake)
	}
	heartbeat := connect.Header.Get(frame.HeartBeat)
	if _, _, err := stompwire.ParseHeartbeat(heartbeat); err != nil {
		s.reject("invalid heart-beat", err.Error())
		return 0, 0, fmt.Errorf("%w: %v", errHandshake, err)
	}

	sendEvery, expectEvery := stompwire.NegotiateHeartbeat(s.cfg.Heartbeat, s.cfg.Heartbeat, heartbeat)
	connected := frame.New(frame.CONNECTED,
		frame.Version, stompwire.Version,
		frame.HeartBeat, stompwire.FormatHeartbeat(s.cfg.Heartbeat, s.cfg.Heartbeat),
		frame.Server, s.cfg.ServerName,
		frame.Session, s.info.ConnID,
	)
	if err := s.writeDirect(connected); err != nil {
		return 0, 0, err
	}
	_ = s.ws.SetReadDeadline(time.Time{})
	return sendEvery, expectEvery, nil
}

func acceptsVersion(header string) bool {
	// STOMP 1.0 clients omit the header; they are served the 1.2 dialect.
	if strings.TrimSpace(header) == "" {
		return true
	}
	for _, v := range strings.Split(header, ",") {
		if strings.TrimSpace(v) == stompwire.Version {
			return true
		}
	}
	return false
}

func (s *Session) readLoop(ctx context.Context, expectEvery time.Duration) error {
	for {
		if expectEvery > 0 {
			_ = s.ws.SetReadDeadline(time.Now().Add(2 * expectEvery))
		}
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return err
		}
		if stompwire.IsHeartbeat(data) {
			continue
		}
		f, err := stompwire.Decode(data)
		if err != nil {
			s.fail("malformed frame", err.Error(), "")
			return err
		}
		observability.IncSTOMPFrame("in", f.Command)
		if done, err := s.handle(ctx, f); done {
			return err
		}
	}
}

// handle processes one client frame. It reports true when the session must end.
func (s *Session) handle(ctx context.Context, f *frame.Frame) (bool, error) {
	receipt := f.Header.Get(frame.Receipt)
	switch f.Command {
	case frame.SUBSCRIBE:
		if err := s.subscribe(ctx, f); err != nil {
			s.fail(err.Error(), "", receipt, frame.Destination, f.Header.Get(frame.Destination))
			return true, err
		}
	case frame.UNSUBSCRIBE:
		id := f.Header.Get(frame.Id)
		if id == "" {
			s.fail("missing subscription id", "", receipt)
			return true, fmt.Errorf("unsubscribe without id")
		}
		s.unsubscribe(id)
	case frame.SEND:
		if err := s.publish(ctx, f); err != nil {
			s.fail(err.Error(), "", receipt)
			return true, err
		}
	case frame.ACK, frame.NACK:
		// Subscriptions are ack:auto.
	case frame.DISCONNECT:
		if receipt != "" {
			s.enqueue(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
		}
		s.shutdown()
		return true, nil
	default:
		s.fail("unsupported command "+f.Command, "", receipt)
		return true, fmt.Errorf("unsupported command %s", f.Command)
	}
	if receipt != "" {
		s.enqueue(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
	}
	return false, nil
}

func (s *Session) subscribe(ctx context.Context, f *frame.Frame) error {
	id := f.Header.Get(frame.Id)
	if id == "" {
		return errors.New("missing subscription id")
	}
	dest := f.Header.Get(frame.Destination)
	groupID, ok := stompwire.ParseGroupTopic(dest)
	if !ok {
		return fmt.Errorf("unknown destination %s", dest)
	}
	if err := s.chat.CheckMember(ctx, groupID, s.info.UserID); err != nil {
		log.Printf("ws: subscribe refused conn_id=%s user_id=%d group_id=%d err=%v", s.info.ConnID, s.info.UserID, groupID, err)
		return fmt.Errorf("not authorized for group %d", groupID)
	}

	s.mu.Lock()
	for subID, g := range s.subs {
		if g == groupID {
			delete(s.subs, subID)
		}
	}
	s.subs[id] = groupID
	s.mu.Unlock()

	s.hub.Subscribe(groupID, s, id)
	return nil
}

func (s *Session) unsubscribe(id string) {
	s.mu.Lock()
	groupID, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		s.hub.Unsubscribe(groupID, s)
	}
}

// publish persists a client message and fans it out. Rejected messages are logged and
// dropped; the sender gets no reply on the broker.
func (s *Session) publish(ctx context.Context, f *frame.Frame) error {
	dest := f.Header.Get(frame.Destination)
	groupID, ok := stompwire.ParseGroupSendDestination(dest)
	if !ok {
		return fmt.Errorf("unknown destination %s", dest)
	}

	var req models.SendRequest
	if err := json.Unmarshal(f.Body, &req); err != nil {
		log.Printf("ws: dropping undecodable send conn_id=%s group_id=%d err=%v", s.info.ConnID, groupID, err)
		observability.IncWSEvent(wsKind, "send_rejected")
		return nil
	}
	// The sender is the authenticated user, whatever the payload claims.
	msg, err := s.chat.SaveMessage(ctx, groupID, s.info.UserID, req)
	if err != nil {
		log.Printf("ws: send rejected conn_id=%s user_id=%d group_id=%d err=%v", s.info.ConnID, s.info.UserID, groupID, err)
		observability.IncWSEvent(wsKind, "send_rejected")
		return nil
	}
	observability.IncChatMessage(string(msg.Type))
	if err := s.out.Publish(ctx, msg); err != nil {
		log.Printf("ws: fanout failed group_id=%d message_id=%d err=%v", groupID, msg.ID, err)
	}
	return nil
}

// deliver queues a MESSAGE frame for a subscription. It returns false when the
// session's buffer is full or the session is closed.
func (s *Session) deliver(groupID int64, subID string, body []byte) bool {
	f := frame.New(frame.MESSAGE,
		frame.Destination, stompwire.GroupTopic(groupID),
		frame.Subscription, subID,
		frame.MessageId, s.info.ConnID+"-"+strconv.FormatUint(s.msgSeq.Add(1), 10),
		frame.ContentType, "application/json",
	)
	f.Body = body
	data, err := stompwire.Encode(f)
	if err != nil {
		log.Printf("ws: encode message failed err=%v", err)
		return true
	}
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- data:
		observability.IncSTOMPFrame("out", frame.MESSAGE)
		return true
	default:
		return false
	}
}

func (s *Session) enqueue(f *frame.Frame) {
	data, err := stompwire.Encode(f)
	if err != nil {
		log.Printf("ws: encode %s failed err=%v", f.Command, err)
		return
	}
	select {
	case s.send <- data:
		observability.IncSTOMPFrame("out", f.Command)
	case <-s.done:
	}
}

// fail sends an ERROR frame and closes the session once it is flushed. extra holds
// header key/value pairs.
func (s *Session) fail(message, detail, receipt string, extra ...string) {
	f := frame.New(frame.ERROR, frame.Message, message, frame.ContentType, "text/plain")
	if receipt != "" {
		f.Header.Add(frame.ReceiptId, receipt)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] != "" {
			f.Header.Add(extra[i], extra[i+1])
		}
	}
	f.Body = []byte(detail)
	s.enqueue(f)
	s.shutdown()
}

// reject answers a failed handshake; the write pump is not running yet.
func (s *Session) reject(message, detail string) {
	f := frame.New(frame.ERROR, frame.Message, message, frame.ContentType, "text/plain")
	f.Body = []byte(detail)
	_ = s.writeDirect(f)
}

func (s *Session) writeDirect(f *frame.Frame) error {
	data, err := stompwire.Encode(f)
	if err != nil {
		return err
	}
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	observability.IncSTOMPFrame("out", f.Command)
	return nil
}

// shutdown waits for queued frames to be written before closing the socket.
func (s *Session) shutdown() {
	select {
	case s.send <- nil:
	case <-s.done:
		return
	}
	select {
	case <-s.done:
	case <-time.After(s.cfg.WriteTimeout):
		s.close(nil)
	}
}

func (s *Session) close(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.done)
		if errors.Is(err, errServerShutdown) {
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
				time.Now().Add(time.Second))
		}
		_ = s.ws.Close()
	})
}

func (s *Session) writePump(sendEvery time.Duration) {
	var tick <-chan time.Time
	if sendEvery > 0 {
		ticker := time.NewTicker(sendEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-s.send:
			// A nil entry marks the end of the stream queued by shutdown.
			if data == nil {
				_ = s.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(s.cfg.WriteTimeout))
				s.close(nil)
				return
			}
			if err := s.write(data); err != nil {
				s.close(err)
				return
			}
		case <-tick:
			if err := s.write(stompwire.Heartbeat()); err != nil {
				s.close(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) write(data []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, data)
}
