package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygroup-chat/internal/apiclient"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/stompwire"
)

const waitFor = 2 * time.Second

type countingDialer struct {
	dials atomic.Int32
}

func (d *countingDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	d.dials.Add(1)
	return websocket.DefaultDialer.DialContext(ctx, urlStr, header)
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *SessionManager {
	t.Helper()
	m := New(cfg, opts...)
	t.Cleanup(m.Disconnect)
	return m
}

func connectAndWait(t *testing.T, m *SessionManager) {
	t.Helper()
	connected := make(chan struct{}, 1)
	m.Connect(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	}, nil)
	select {
	case <-connected:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connection")
	}
	require.True(t, m.IsConnected())
}

func messageJSON(t *testing.T, id int64, groupID int64, content string) string {
	t.Helper()
	data, err := json.Marshal(models.ChatMessage{
		ID:        id,
		Group:     models.GroupRef{ID: groupID, Name: "Algorithms"},
		Sender:    models.Sender{ID: 3, Name: "Ann", Email: "ann@example.com"},
		Content:   content,
		Type:      models.MessageTypeText,
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return string(data)
}

func receive(t *testing.T, ch <-chan models.ChatMessage) models.ChatMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for message")
	}
	return models.ChatMessage{}
}

func assertSilent(t *testing.T, ch <-chan models.ChatMessage) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOperationsRefusedWhenNotConnected(t *testing.T) {
	dialer := &countingDialer{}
	m := newTestManager(t, testConfig("ws://127.0.0.1:1/ws"), WithDialer(dialer))

	called := false
	require.False(t, m.SubscribeToGroup(42, func(models.ChatMessage) { called = true }))
	require.False(t, m.SendMessage(42, models.SendRequest{SenderID: 3, Content: "hi", Type: models.MessageTypeText}))

	assert.False(t, called)
	assert.Equal(t, int32(0), dialer.dials.Load())
	assert.Equal(t, StateDisconnected, m.State())
	assert.Empty(t, m.ActiveSubscriptions())
}

func TestSubscribeDeliversGroupMessages(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	got := make(chan models.ChatMessage, 4)
	require.True(t, m.SubscribeToGroup(42, func(msg models.ChatMessage) { got <- msg }))
	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/42")) == 1
	}, waitFor, 10*time.Millisecond)

	broker.publish("/topic/group/42", messageJSON(t, 1, 42, "hi"))

	msg := receive(t, got)
	assert.Equal(t, int64(1), msg.ID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Equal(t, int64(42), msg.Group.ID)
	assert.Equal(t, []int64{42}, m.ActiveSubscriptions())
}

func TestMessagesArriveInBrokerOrder(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	got := make(chan models.ChatMessage, 16)
	require.True(t, m.SubscribeToGroup(7, func(msg models.ChatMessage) { got <- msg }))
	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/7")) == 1
	}, waitFor, 10*time.Millisecond)

	for i := int64(1); i <= 10; i++ {
		broker.publish("/topic/group/7", messageJSON(t, i, 7, "m"))
	}
	for i := int64(1); i <= 10; i++ {
		require.Equal(t, i, receive(t, got).ID)
	}
}

func TestResubscribeReplacesHandler(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	first := make(chan models.ChatMessage, 4)
	second := make(chan models.ChatMessage, 4)

	require.True(t, m.SubscribeToGroup(42, func(msg models.ChatMessage) { first <- msg }))
	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/42")) == 1
	}, waitFor, 10*time.Millisecond)
	firstID := broker.subscriptions("/topic/group/42")[0]

	require.True(t, m.SubscribeToGroup(42, func(msg models.ChatMessage) { second <- msg }))
	require.Eventually(t, func() bool {
		ids := broker.subscriptions("/topic/group/42")
		return len(ids) == 1 && ids[0] != firstID
	}, waitFor, 10*time.Millisecond)

	broker.publish("/topic/group/42", messageJSON(t, 2, 42, "fresh"))
	assert.Equal(t, "fresh", receive(t, second).Content)
	assertSilent(t, first)

	broker.publishTo(firstID, "/topic/group/42", messageJSON(t, 3, 42, "stale"))
	assertSilent(t, first)
	assertSilent(t, second)

	assert.Equal(t, []int64{42}, m.ActiveSubscriptions())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	got := make(chan models.ChatMessage, 4)
	require.True(t, m.SubscribeToGroup(5, func(msg models.ChatMessage) { got <- msg }))
	require.True(t, m.SubscribeToGroup(6, func(models.ChatMessage) {}))
	assert.Equal(t, []int64{5, 6}, m.ActiveSubscriptions())

	m.UnsubscribeFromGroup(5)
	m.UnsubscribeFromGroup(99)

	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/5")) == 0 && len(broker.subscriptions("/topic/group/6")) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []int64{6}, m.ActiveSubscriptions())
	assertSilent(t, got)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	got := make(chan models.ChatMessage, 4)
	require.True(t, m.SubscribeToGroup(42, func(msg models.ChatMessage) { got <- msg }))
	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/42")) == 1
	}, waitFor, 10*time.Millisecond)

	broker.publish("/topic/group/42", "not json")
	broker.publishRaw([]byte("garbage without terminator"))
	broker.publish("/topic/group/42", messageJSON(t, 9, 42, "after"))

	assert.Equal(t, "after", receive(t, got).Content)
	assertSilent(t, got)
	assert.True(t, m.IsConnected())
}

func TestSendMessagePublishesJSON(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	require.True(t, m.SendMessage(42, models.SendRequest{SenderID: 3, Content: "hello", Type: models.MessageTypeText}))

	var sent *frame.Frame
	require.Eventually(t, func() bool {
		select {
		case f := <-broker.frames:
			if f.Command == frame.SEND {
				sent = f
				return true
			}
		default:
		}
		return false
	}, waitFor, 5*time.Millisecond)

	assert.Equal(t, "/app/chat/42/send", sent.Header.Get(frame.Destination))
	assert.Equal(t, "application/json", sent.Header.Get(frame.ContentType))

	var req models.SendRequest
	require.NoError(t, json.Unmarshal(sent.Body, &req))
	assert.Equal(t, "hello", req.Content)
	assert.Equal(t, int64(3), req.SenderID)
	assert.Equal(t, models.MessageTypeText, req.Type)
}

func TestConnectWhenConnectedInvokesCallbackImmediately(t *testing.T) {
	broker := newTestBroker(t)
	dialer := &countingDialer{}
	m := newTestManager(t, testConfig(broker.url()), WithDialer(dialer))
	connectAndWait(t, m)

	called := false
	m.Connect(func() { called = true }, nil)

	assert.True(t, called)
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, 1, broker.handshakes())
}

func TestHandshakeCarriesBearerCredential(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()), WithTokenSource(apiclient.StaticToken("secret-token")))
	connectAndWait(t, m)

	assert.Equal(t, []string{"Bearer secret-token"}, broker.authHeaders())
}

func TestBrokerRejectionReportsProtocolError(t *testing.T) {
	broker := newTestBroker(t)
	broker.rejectWith("bad credentials")

	cfg := testConfig(broker.url())
	cfg.ReconnectDelay = 0
	m := newTestManager(t, cfg)

	errs := make(chan error, 4)
	connected := false
	m.Connect(func() { connected = true }, func(err error) { errs <- err })

	var err error
	select {
	case err = <-errs:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for error")
	}

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad credentials", perr.Message)
	require.Eventually(t, func() bool { return m.State() == StateDisconnected }, waitFor, 10*time.Millisecond)
	assert.False(t, connected)
	assert.False(t, m.SendMessage(1, "x"))
	assert.Equal(t, 1, broker.handshakes())
}

func TestRefusedSubscriptionNamesGroup(t *testing.T) {
	broker := newTestBroker(t)
	cfg := testConfig(broker.url())
	cfg.ReconnectDelay = 0
	m := newTestManager(t, cfg)

	connected := make(chan struct{}, 1)
	errs := make(chan error, 4)
	m.Connect(func() { connected <- struct{}{} }, func(err error) { errs <- err })
	select {
	case <-connected:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connection")
	}

	require.True(t, m.SubscribeToGroup(9, func(models.ChatMessage) {}))
	var ids []string
	require.Eventually(t, func() bool {
		ids = broker.subscriptions("/topic/group/9")
		return len(ids) == 1
	}, waitFor, 10*time.Millisecond)

	broker.publishRaw(stompwire.MustEncode(frame.New(frame.ERROR,
		frame.Message, "not authorized for group 9",
		frame.ReceiptId, ids[0],
	)))

	select {
	case err := <-errs:
		var perr *ProtocolError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, int64(9), perr.GroupID)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for error")
	}
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &countingDialer{}
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.MaxReconnectAttempts = 2
	m := newTestManager(t, cfg, WithDialer(dialer))

	var failures atomic.Int32
	m.Connect(nil, func(error) { failures.Add(1) })

	require.Eventually(t, func() bool { return failures.Load() == 3 }, waitFor, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), failures.Load())
	assert.Equal(t, int32(3), dialer.dials.Load())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDroppedConnectionReconnects(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))

	var connects atomic.Int32
	errs := make(chan error, 4)
	m.Connect(func() { connects.Add(1) }, func(err error) { errs <- err })
	require.Eventually(t, func() bool { return connects.Load() == 1 }, waitFor, 10*time.Millisecond)

	require.True(t, m.SubscribeToGroup(42, func(models.ChatMessage) {}))
	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/42")) == 1
	}, waitFor, 10*time.Millisecond)

	broker.dropAll()

	select {
	case <-errs:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for connection error")
	}
	require.Eventually(t, func() bool { return connects.Load() == 2 }, waitFor, 10*time.Millisecond)
	assert.True(t, m.IsConnected())
	assert.Empty(t, m.ActiveSubscriptions())
	assert.Equal(t, 2, broker.handshakes())
}

func TestDisconnectReleasesSubscriptionsAndAllowsReconnect(t *testing.T) {
	broker := newTestBroker(t)
	m := newTestManager(t, testConfig(broker.url()))
	connectAndWait(t, m)

	require.True(t, m.SubscribeToGroup(1, func(models.ChatMessage) {}))
	require.True(t, m.SubscribeToGroup(2, func(models.ChatMessage) {}))
	assert.Equal(t, []int64{1, 2}, m.ActiveSubscriptions())

	m.Disconnect()

	assert.Equal(t, StateDisconnected, m.State())
	assert.Empty(t, m.ActiveSubscriptions())
	assert.False(t, m.SendMessage(1, "after disconnect"))
	assert.False(t, m.SubscribeToGroup(1, func(models.ChatMessage) {}))

	connectAndWait(t, m)
	got := make(chan models.ChatMessage, 1)
	require.True(t, m.SubscribeToGroup(2, func(msg models.ChatMessage) { got <- msg }))
	require.Eventually(t, func() bool {
		return len(broker.subscriptions("/topic/group/2")) == 1
	}, waitFor, 10*time.Millisecond)

	broker.publish("/topic/group/2", messageJSON(t, 11, 2, "back"))
	assert.Equal(t, "back", receive(t, got).Content)
}
