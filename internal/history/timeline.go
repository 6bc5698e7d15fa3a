package history

import (
	"sync"

	"studygroup-chat/internal/models"
)

// Timeline is the ordered message log of one chat surface. Live messages may arrive before
// the backlog has loaded; Load merges the two without duplicates.
type Timeline struct {
	mu       sync.RWMutex
	messages []models.ChatMessage
	seen     map[int64]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[int64]struct{})}
}

// Append adds a live message. Messages already present are ignored and the method reports
// whether msg was added.
func (t *Timeline) Append(msg models.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.known(msg.ID) {
		return false
	}
	t.remember(msg.ID)
	t.messages = append(t.messages, msg)
	return true
}

// Load places history ahead of any live messages received so far. Live messages that are
// also part of history keep their history position.
func (t *Timeline) Load(history []models.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make([]models.ChatMessage, 0, len(history)+len(t.messages))
	inHistory := make(map[int64]struct{}, len(history))
	for _, msg := range history {
		if msg.ID != 0 {
			if _, dup := inHistory[msg.ID]; dup {
				continue
			}
			inHistory[msg.ID] = struct{}{}
		}
		merged = append(merged, msg)
	}
	for _, msg := range t.messages {
		if _, dup := inHistory[msg.ID]; dup && msg.ID != 0 {
			continue
		}
		merged = append(merged, msg)
	}

	t.messages = merged
	for id := range inHistory {
		t.remember(id)
	}
}

// Messages returns a copy of the timeline in display order.
func (t *Timeline) Messages() []models.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages in the timeline.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Reset empties the timeline.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.seen = make(map[int64]struct{})
}

// known reports whether id was already added. Messages without an id are never deduplicated.
func (t *Timeline) known(id int64) bool {
	if id == 0 {
		return false
	}
	_, ok := t.seen[id]
	return ok
}

func (t *Timeline) remember(id int64) {
	if id != 0 {
		t.seen[id] = struct{}{}
	}
}
