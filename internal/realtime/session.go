// Package realtime maintains the single broker session shared by every chat surface and
// multiplexes per-group message streams over it.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"studygroup-chat/internal/apiclient"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/stompwire"
)

// MessageHandler receives every message delivered on a group subscription.
type MessageHandler func(models.ChatMessage)

// Dialer opens the WebSocket to the broker. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Option customises a SessionManager.
type Option func(*SessionManager)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *SessionManager) {
		m.dialer = d
	}
}

// WithTokenSource attaches a bearer credential to the broker handshake.
func WithTokenSource(ts apiclient.TokenSource) Option {
	return func(m *SessionManager) {
		m.tokens = ts
	}
}

type subscription struct {
	id      string
	groupID int64
	handler MessageHandler
}

// SessionManager owns one broker connection and at most one subscription per group.
// All methods are safe for concurrent use. Handlers run on the connection's reader
// goroutine, one at a time, in broker delivery order.
type SessionManager struct {
	cfg    Config
	dialer Dialer
	tokens apiclient.TokenSource

	mu          sync.Mutex
	state       State
	conn        *connection
	byGroup     map[int64]*subscription
	byID        map[string]*subscription
	nextSubID   uint64
	onConnected func()
	onError     func(error)
	cancel      context.CancelFunc
	retry       chan struct{}
	loopDone    chan struct{}
}

// New constructs a disconnected SessionManager.
func New(cfg Config, opts ...Option) *SessionManager {
	cfg = cfg.withDefaults()
	m := &SessionManager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		byGroup: make(map[int64]*subscription),
		byID:    make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect establishes the broker session. When already connected onConnected runs
// immediately on the caller's goroutine. Otherwise onConnected runs once per successful
// handshake and onError once per failed attempt or lost connection; lost connections are
// retried according to Config. Calling Connect while an attempt is pending replaces the
// callbacks and retries without waiting for the reconnect delay.
func (m *SessionManager) Connect(onConnected func(), onError func(error)) {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		if onConnected != nil {
			onConnected()
		}
		return
	}

	m.onConnected = onConnected
	m.onError = onError
	if m.cancel != nil {
		select {
		case m.retry <- struct{}{}:
		default:
		}
		m.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.retry = make(chan struct{}, 1)
	m.loopDone = make(chan struct{})
	m.state = StateConnecting
	go m.run(ctx, m.retry, m.loopDone)
	m.mu.Unlock()
}

// SubscribeToGroup installs onMessage as the only handler for groupID's topic. It returns
// false when the session is not connected.
func (m *SessionManager) SubscribeToGroup(groupID int64, onMessage MessageHandler) bool {
	if onMessage == nil {
		onMessage = func(models.ChatMessage) {}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		log.Printf("realtime: subscribe refused, not connected group_id=%d", groupID)
		return false
	}

	m.releaseLocked(groupID)

	m.nextSubID++
	sub := &subscription{
		id:      "sub-" + strconv.FormatUint(m.nextSubID, 10),
		groupID: groupID,
		handler: onMessage,
	}
	// The receipt lets a refusal be traced back to the group.
	f := frame.New(frame.SUBSCRIBE,
		frame.Id, sub.id,
		frame.Destination, stompwire.GroupTopic(groupID),
		frame.Ack, "auto",
		frame.Receipt, sub.id,
	)
	if !m.conn.enqueue(stompwire.MustEncode(f)) {
		return false
	}
	m.byGroup[groupID] = sub
	m.byID[sub.id] = sub
	return true
}

// UnsubscribeFromGroup releases the group's subscription if there is one.
func (m *SessionManager) UnsubscribeFromGroup(groupID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(groupID)
}

// SendMessage publishes payload as JSON to the group's send destination. It returns false
// without touching the network when the session is not connected. Delivery is not
// confirmed; the broker echoes the stored message on the group topic.
func (m *SessionManager) SendMessage(groupID int64, payload any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		log.Printf("realtime: send refused, not connected group_id=%d", groupID)
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("realtime: send refused, unencodable payload group_id=%d err=%v", groupID, err)
		return false
	}
	f := frame.New(frame.SEND,
		frame.Destination, stompwire.GroupSendDestination(groupID),
		frame.ContentType, "application/json",
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = body
	return m.conn.enqueue(stompwire.MustEncode(f))
}

// Disconnect releases every subscription, closes the connection and stops reconnecting.
// A later Connect starts from a clean state.
func (m *SessionManager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel, m.retry, m.loopDone = nil, nil, nil
	if conn != nil {
		m.state = StateDisconnecting
		for _, sub := range m.byGroup {
			conn.enqueue(unsubscribeFrame(sub.id))
		}
	} else {
		m.state = StateDisconnected
	}
	m.byGroup = make(map[int64]*subscription)
	m.byID = make(map[string]*subscription)
	m.conn = nil
	m.onConnected, m.onError = nil, nil
	m.mu.Unlock()

	if conn == nil {
		return
	}
	conn.shutdown()
	log.Printf("realtime: disconnected broker=%s", m.cfg.BrokerURL)

	m.mu.Lock()
	if m.state == StateDisconnecting {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
}

// State reports the current connection state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the broker session is established.
func (m *SessionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// ActiveSubscriptions returns the subscribed group ids in ascending order.
func (m *SessionManager) ActiveSubscriptions() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.byGroup))
	for id := range m.byGroup {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *SessionManager) releaseLocked(groupID int64) {
	sub, ok := m.byGroup[groupID]
	if !ok {
		return
	}
	delete(m.byGroup, groupID)
	delete(m.byID, sub.id)
	if m.conn != nil {
		m.conn.enqueue(unsubscribeFrame(sub.id))
	}
}

func (m *SessionManager) run(ctx context.Context, retry <-chan struct{}, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		if !m.transition(ctx, StateConnecting) {
			return
		}

		conn, err := m.open(ctx)
		if err == nil {
			failures = 0
			onConnected, ok := m.attach(ctx, conn)
			if !ok {
				conn.shutdown()
				return
			}
			log.Printf("realtime: connected broker=%s", m.cfg.BrokerURL)
			if onConnected != nil {
				onConnected()
			}
			if err = conn.wait(); err == nil {
				err = ErrConnectionLost
			}
			m.detach(conn)
		} else {
			failures++
		}

		if ctx.Err() != nil {
			return
		}
		m.fail(ctx, err)

		if m.cfg.ReconnectDelay <= 0 || (m.cfg.MaxReconnectAttempts > 0 && failures > m.cfg.MaxReconnectAttempts) {
			m.stopLoop(done)
			return
		}
		timer := time.NewTimer(m.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-retry:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *SessionManager) transition(ctx context.Context, s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	m.state = s
	return true
}

func (m *SessionManager) attach(ctx context.Context, conn *connection) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return nil, false
	}
	m.conn = conn
	m.state = StateConnected
	conn.start(func(f *frame.Frame) { m.handleFrame(conn, f) })
	return m.onConnected, true
}

// detach discards every subscription bound to conn; the broker notices on its side.
func (m *SessionManager) detach(conn *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		return
	}
	m.conn = nil
	m.byGroup = make(map[int64]*subscription)
	m.byID = make(map[string]*subscription)
	if m.state == StateConnected {
		m.state = StateDisconnected
	}
}

func (m *SessionManager) fail(ctx context.Context, err error) {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	onError := m.onError
	m.mu.Unlock()

	log.Printf("realtime: connection failed broker=%s err=%v", m.cfg.BrokerURL, err)
	if onError != nil {
		onError(err)
	}
}

func (m *SessionManager) stopLoop(done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loopDone != done {
		return
	}
	m.cancel()
	m.cancel, m.retry, m.loopDone = nil, nil, nil
}

func (m *SessionManager) open(ctx context.Context) (*connection, error) {
	header := http.Header{}
	if m.tokens != nil {
		token, err := m.tokens.Token()
		switch {
		case errors.Is(err, apiclient.ErrNoCredential):
		case err != nil:
			return nil, fmt.Errorf("load credential: %w", err)
		default:
			header.Set("Authorization", "Bearer "+token)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()
	ws, resp, err := m.dialer.DialContext(dialCtx, m.cfg.BrokerURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial broker: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	connected, err := m.handshake(ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	send, expect := stompwire.NegotiateHeartbeat(m.cfg.HeartbeatOutgoing, m.cfg.HeartbeatIncoming, connected.Header.Get(frame.HeartBeat))
	return newConnection(ws, m.cfg, send, expect), nil
}

func (m *SessionManager) handshake(ws *websocket.Conn) (*frame.Frame, error) {
	deadline := time.Now().Add(m.cfg.HandshakeTimeout)
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, stompwire.Version,
		frame.Host, m.host(),
		frame.HeartBeat, stompwire.FormatHeartbeat(m.cfg.HeartbeatOutgoing, m.cfg.HeartbeatIncoming),
	)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, stompwire.MustEncode(connect)); err != nil {
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	_ = ws.SetReadDeadline(deadline)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("await CONNECTED: %w", err)
		}
		if stompwire.IsHeartbeat(data) {
			continue
		}
		f, err := stompwire.Decode(data)
		if err != nil {
			return nil, err
		}
		switch f.Command {
		case frame.CONNECTED:
			_ = ws.SetReadDeadline(time.Time{})
			_ = ws.SetWriteDeadline(time.Time{})
			return f, nil
		case frame.ERROR:
			return nil, protocolError(f)
		default:
			return nil, fmt.Errorf("unexpected %s frame during handshake", f.Command)
		}
	}
}

func (m *SessionManager) host() string {
	if m.cfg.Host != "" {
		return m.cfg.Host
	}
	if u, err := url.Parse(m.cfg.BrokerURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "/"
}

func (m *SessionManager) handleFrame(conn *connection, f *frame.Frame) {
	switch f.Command {
	case frame.MESSAGE:
		m.dispatch(f)
	case frame.ERROR:
		err := protocolError(f)
		err.GroupID = m.refusedGroup(f)
		log.Printf("realtime: broker error group_id=%d err=%v", err.GroupID, err)
		conn.close(err)
	case frame.RECEIPT:
	default:
		log.Printf("realtime: ignoring %s frame", f.Command)
	}
}

func (m *SessionManager) dispatch(f *frame.Frame) {
	id := f.Header.Get(frame.Subscription)
	m.mu.Lock()
	sub := m.byID[id]
	m.mu.Unlock()
	if sub == nil {
		log.Printf("realtime: dropping message for inactive subscription=%s", id)
		return
	}

	var msg models.ChatMessage
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		log.Printf("realtime: failed to parse message group_id=%d err=%v", sub.groupID, err)
		return
	}
	sub.handler(msg)
}

// refusedGroup resolves the group an ERROR frame refers to, from the receipt of the
// SUBSCRIBE it answers or from its destination header.
func (m *SessionManager) refusedGroup(f *frame.Frame) int64 {
	if id := f.Header.Get(frame.ReceiptId); id != "" {
		m.mu.Lock()
		sub := m.byID[id]
		m.mu.Unlock()
		if sub != nil {
			return sub.groupID
		}
	}
	if groupID, ok := stompwire.ParseGroupTopic(f.Header.Get(frame.Destination)); ok {
		return groupID
	}
	return 0
}

func unsubscribeFrame(id string) []byte {
	return stompwire.MustEncode(frame.New(frame.UNSUBSCRIBE, frame.Id, id))
}

func protocolError(f *frame.Frame) *ProtocolError {
	return &ProtocolError{Message: f.Header.Get(frame.Message), Detail: string(f.Body)}
}
