package ws

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
)

// Hub tracks broker sessions and their group subscriptions.
type Hub struct {
	groups   map[int64]map[*Session]string
	sessions map[*Session]struct{}
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		groups:   make(map[int64]map[*Session]string),
		sessions: make(map[*Session]struct{}),
	}
}

// AddSession registers a session that completed the STOMP handshake.
func (h *Hub) AddSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

// RemoveSession drops a session and every subscription it holds.
func (h *Hub) RemoveSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
	for groupID, subs := range h.groups {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.groups, groupID)
		}
	}
	observability.SetSubscribedGroups(len(h.groups))
}

// Subscribe routes the group's messages to s under subscription id subID. A session
// holds at most one subscription per group; a newer one replaces the older.
func (h *Hub) Subscribe(groupID int64, s *Session, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groups[groupID]; !ok {
		h.groups[groupID] = make(map[*Session]string)
	}
	h.groups[groupID][s] = subID
	observability.SetSubscribedGroups(len(h.groups))
}

// Unsubscribe removes the session's subscription to a group.
func (h *Hub) Unsubscribe(groupID int64, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.groups[groupID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.groups, groupID)
		}
	}
	observability.SetSubscribedGroups(len(h.groups))
}

// Subscribers returns the number of sessions subscribed to a group.
func (h *Hub) Subscribers(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// Groups lists the groups with at least one subscriber.
func (h *Hub) Groups() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int64, 0, len(h.groups))
	for id := range h.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Broadcast delivers msg to every local subscriber of its group. Sessions that cannot
// keep up are closed.
func (h *Hub) Broadcast(groupID int64, msg models.ChatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws: marshal message failed group_id=%d err=%v", groupID, err)
		return
	}

	type target struct {
		session *Session
		subID   string
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.groups[groupID]))
	for s, subID := range h.groups[groupID] {
		targets = append(targets, target{session: s, subID: subID})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		if !t.session.deliver(groupID, t.subID, payload) {
			log.Printf("ws: dropping slow session conn_id=%s group_id=%d", t.session.info.ConnID, groupID)
			h.RemoveSession(t.session)
			h.publishWSError(t.session, errSlowConsumer)
			t.session.close(errSlowConsumer)
		}
	}
}

// Shutdown closes every session. Hijacked connections are not closed by the HTTP server.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.close(errServerShutdown)
	}
}

func (h *Hub) publishWSError(s *Session, err error) {
	observability.IncWSEvent(wsKind, "ws_error")
	publishWSEvent(context.Background(), s.info, "ws_error", err.Error())
}
