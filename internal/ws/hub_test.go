package ws

import (
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/stompwire"
)

func detachedSession(buffer int) *Session {
	cfg := DefaultSessionConfig()
	cfg.SendBuffer = buffer
	return newSession(nil, ConnInfo{ConnID: "c1", UserID: 1, ConnectedAt: time.Now()}, nil, nil, nil, cfg)
}

func TestHubSubscribeAndRemoveSession(t *testing.T) {
	hub := NewHub()
	s := detachedSession(1)

	hub.AddSession(s)
	hub.Subscribe(1, s, "sub-0")
	hub.Subscribe(2, s, "sub-1")
	assert.Equal(t, []int64{1, 2}, hub.Groups())
	assert.Equal(t, 1, hub.Subscribers(1))

	hub.Unsubscribe(1, s)
	assert.Equal(t, []int64{2}, hub.Groups())

	hub.RemoveSession(s)
	assert.Empty(t, hub.Groups())
	assert.Equal(t, 0, hub.Subscribers(2))
}

func TestHubBroadcastAddressesSubscription(t *testing.T) {
	hub := NewHub()
	s := detachedSession(4)
	hub.Subscribe(5, s, "sub-3")
	hub.Subscribe(5, s, "sub-4")

	hub.Broadcast(5, models.ChatMessage{ID: 11, Group: models.GroupRef{ID: 5}, Content: "hi"})

	require.Len(t, s.send, 1)
	f, err := stompwire.Decode(<-s.send)
	require.NoError(t, err)
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "sub-4", f.Header.Get(frame.Subscription))
	assert.Equal(t, "/topic/group/5", f.Header.Get(frame.Destination))
	assert.Equal(t, "application/json", f.Header.Get(frame.ContentType))
	assert.JSONEq(t, `{"id":11,"group":{"id":5,"name":""},"sender":{"id":0,"name":"","email":""},"content":"hi","type":"","timestamp":"0001-01-01T00:00:00Z"}`, string(f.Body))
}

func TestHubBroadcastSkipsOtherGroups(t *testing.T) {
	hub := NewHub()
	s := detachedSession(4)
	hub.Subscribe(5, s, "sub-0")

	hub.Broadcast(6, models.ChatMessage{ID: 1, Group: models.GroupRef{ID: 6}})
	assert.Empty(t, s.send)
}

func TestDecodeRedisMessage(t *testing.T) {
	groupID, msg, err := decodeRedisMessage(redisChannel(12), `{"id":3,"group":{"id":12,"name":"Physics"},"content":"x","type":"TEXT"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(12), groupID)
	assert.Equal(t, int64(3), msg.ID)
	assert.Equal(t, "Physics", msg.Group.Name)

	_, _, err = decodeRedisMessage("other:12", `{}`)
	assert.Error(t, err)
	_, _, err = decodeRedisMessage(redisChannel(12), `not json`)
	assert.Error(t, err)
}

func TestAcceptsVersion(t *testing.T) {
	assert.True(t, acceptsVersion(""))
	assert.True(t, acceptsVersion("1.1,1.2"))
	assert.False(t, acceptsVersion("1.0,1.1"))
}
