package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"studygroup-chat/internal/models"
)

// LocalFanout delivers messages to the subscribers connected to this process.
type LocalFanout struct {
	hub *Hub
}

// NewLocalFanout constructs a LocalFanout.
func NewLocalFanout(hub *Hub) *LocalFanout {
	return &LocalFanout{hub: hub}
}

// Publish broadcasts msg on the local hub.
func (f *LocalFanout) Publish(_ context.Context, msg models.ChatMessage) error {
	f.hub.Broadcast(msg.Group.ID, msg)
	return nil
}

// Close is a no-op.
func (f *LocalFanout) Close() error { return nil }

const redisChannelPrefix = "studygroup-chat:group:"

// RedisFanout relays messages through Redis pub/sub so that every replica delivers
// them to its own subscribers.
type RedisFanout struct {
	rdb    *redis.Client
	hub    *Hub
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisFanout subscribes to the group channels and starts relaying to hub.
func NewRedisFanout(ctx context.Context, rdb *redis.Client, hub *Hub) (*RedisFanout, error) {
	pubsub := rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	f := &RedisFanout{rdb: rdb, hub: hub, pubsub: pubsub, done: make(chan struct{})}
	go f.relay()
	return f, nil
}

// Publish sends msg to every replica, this one included.
func (f *RedisFanout) Publish(ctx context.Context, msg models.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, redisChannel(msg.Group.ID), payload).Err()
}

// Close stops relaying and closes the Redis client.
func (f *RedisFanout) Close() error {
	err := f.pubsub.Close()
	<-f.done
	if cerr := f.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}

func (f *RedisFanout) relay() {
	defer close(f.done)
	for m := range f.pubsub.Channel() {
		groupID, msg, err := decodeRedisMessage(m.Channel, m.Payload)
		if err != nil {
			log.Printf("ws: dropping redis message channel=%s err=%v", m.Channel, err)
			continue
		}
		f.hub.Broadcast(groupID, msg)
	}
}

func redisChannel(groupID int64) string {
	return redisChannelPrefix + strconv.FormatInt(groupID, 10)
}

func decodeRedisMessage(channel, payload string) (int64, models.ChatMessage, error) {
	raw, ok := strings.CutPrefix(channel, redisChannelPrefix)
	if !ok {
		return 0, models.ChatMessage{}, fmt.Errorf("unexpected channel")
	}
	groupID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, models.ChatMessage{}, fmt.Errorf("parse group id: %w", err)
	}
	var msg models.ChatMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return 0, models.ChatMessage{}, fmt.Errorf("decode message: %w", err)
	}
	return groupID, msg, nil
}
