// Package chatview drives chat surfaces: activating a group, merging its history with the
// live stream, and publishing messages and files.
package chatview

import (
	"errors"
	"log"
	"sync"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/realtime"
)

// Session is the shared broker session. *realtime.SessionManager satisfies it.
type Session interface {
	Connect(onConnected func(), onError func(error))
	SubscribeToGroup(groupID int64, onMessage realtime.MessageHandler) bool
	UnsubscribeFromGroup(groupID int64)
	SendMessage(groupID int64, payload any) bool
	IsConnected() bool
}

// Surfaces lets several views share one session. The session holds a single subscription
// per group, so Surfaces owns it and fans each message out to every view on that group.
// A group whose subscription the broker refused is dropped and not resubscribed on
// reconnect until a view activates it again.
type Surfaces struct {
	session Session

	mu      sync.Mutex
	viewers map[int64]map[*View]struct{}
	refused map[int64]error
}

func NewSurfaces(session Session) *Surfaces {
	return &Surfaces{
		session: session,
		viewers: make(map[int64]map[*View]struct{}),
		refused: make(map[int64]error),
	}
}

// Refused reports the broker error that dropped groupID, if any.
func (s *Surfaces) Refused(groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refused[groupID]
}

func (s *Surfaces) join(v *View, groupID int64) {
	s.mu.Lock()
	delete(s.refused, groupID)
	views, ok := s.viewers[groupID]
	if !ok {
		views = make(map[*View]struct{})
		s.viewers[groupID] = views
	}
	views[v] = struct{}{}
	first := len(views) == 1
	s.mu.Unlock()

	if !s.session.IsConnected() {
		s.session.Connect(s.connected, s.failed)
		return
	}
	if first && !s.subscribe(groupID) {
		v.notify(Notice{Kind: NoticeConnectionError, GroupID: groupID})
	}
}

func (s *Surfaces) leave(v *View, groupID int64) {
	s.mu.Lock()
	views := s.viewers[groupID]
	delete(views, v)
	last := len(views) == 0
	if last {
		delete(s.viewers, groupID)
	}
	s.mu.Unlock()

	if last {
		s.session.UnsubscribeFromGroup(groupID)
	}
}

// subscribe installs the group's subscription while some view still watches it. A view
// may leave while the subscription is being installed; it is released again then.
func (s *Surfaces) subscribe(groupID int64) bool {
	if !s.watching(groupID) {
		return true
	}
	ok := s.session.SubscribeToGroup(groupID, func(msg models.ChatMessage) {
		s.deliver(groupID, msg)
	})
	if ok && !s.watching(groupID) {
		s.session.UnsubscribeFromGroup(groupID)
	}
	return ok
}

func (s *Surfaces) watching(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, refused := s.refused[groupID]
	return len(s.viewers[groupID]) > 0 && !refused
}

func (s *Surfaces) deliver(groupID int64, msg models.ChatMessage) {
	for _, v := range s.views(groupID) {
		v.receive(groupID, msg)
	}
}

// connected runs after every handshake; earlier subscriptions died with the old connection.
func (s *Surfaces) connected() {
	s.mu.Lock()
	groups := make([]int64, 0, len(s.viewers))
	for id := range s.viewers {
		groups = append(groups, id)
	}
	s.mu.Unlock()

	for _, id := range groups {
		if !s.subscribe(id) {
			log.Printf("chatview: resubscribe failed group_id=%d", id)
			for _, v := range s.views(id) {
				v.notify(Notice{Kind: NoticeConnectionError, GroupID: id})
			}
		}
	}
}

func (s *Surfaces) failed(err error) {
	var perr *realtime.ProtocolError
	if errors.As(err, &perr) && perr.GroupID != 0 {
		s.refuse(perr.GroupID, err)
		return
	}

	s.mu.Lock()
	var all []*View
	for _, views := range s.viewers {
		for v := range views {
			all = append(all, v)
		}
	}
	s.mu.Unlock()

	for _, v := range all {
		v.notify(Notice{Kind: NoticeConnectionError, GroupID: v.GroupID(), Err: err})
	}
}

// refuse drops every view of a group the broker will not let this user subscribe to.
func (s *Surfaces) refuse(groupID int64, err error) {
	s.mu.Lock()
	s.refused[groupID] = err
	views := s.viewers[groupID]
	delete(s.viewers, groupID)
	s.mu.Unlock()

	log.Printf("chatview: subscription refused group_id=%d err=%v", groupID, err)
	for v := range views {
		v.drop(groupID)
		v.notify(Notice{Kind: NoticeConnectionError, GroupID: groupID, Err: err})
	}
}

func (s *Surfaces) views(groupID int64) []*View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*View, 0, len(s.viewers[groupID]))
	for v := range s.viewers[groupID] {
		out = append(out, v)
	}
	return out
}
