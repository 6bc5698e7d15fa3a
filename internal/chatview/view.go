package chatview

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"studygroup-chat/internal/apiclient"
	"studygroup-chat/internal/attachments"
	"studygroup-chat/internal/history"
	"studygroup-chat/internal/models"
)

// HistorySource loads a group's backlog. *history.Loader satisfies it.
type HistorySource interface {
	FetchHistory(ctx context.Context, groupID int64, page, size int) ([]models.ChatMessage, error)
}

// Files moves attachments. *attachments.Transfer satisfies it.
type Files interface {
	Upload(ctx context.Context, groupID int64, fileName string, content io.Reader, meta attachments.Metadata) (models.FileDescriptor, error)
	Download(ctx context.Context, fileURL, fileName string) ([]byte, string, error)
	ShareLink(ctx context.Context, groupID int64, link, title string) (models.ChatMessage, error)
}

type Option func(*View)

// WithNotices receives user-facing failure notices.
func WithNotices(fn func(Notice)) Option {
	return func(v *View) {
		v.onNotice = fn
	}
}

// WithLiveMessages is called for each live message added to the timeline.
func WithLiveMessages(fn func(models.ChatMessage)) Option {
	return func(v *View) {
		v.onMessage = fn
	}
}

// View is one chat surface showing a single active group.
type View struct {
	surfaces *Surfaces
	history  HistorySource
	files    Files
	userID   int64
	timeline *history.Timeline

	onNotice  func(Notice)
	onMessage func(models.ChatMessage)

	mu      sync.Mutex
	groupID int64
	gen     uint64
}

// NewView creates a view for the signed-in user.
func (s *Surfaces) NewView(userID int64, hist HistorySource, files Files, opts ...Option) *View {
	v := &View{
		surfaces: s,
		history:  hist,
		files:    files,
		userID:   userID,
		timeline: history.NewTimeline(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Activate makes groupID the view's only group: the previous group is released, the
// first history page is fetched, and the shared session is connected and subscribed.
// A group the API refuses with 403 is never subscribed. Live messages received before
// the history is merged are kept after it.
func (v *View) Activate(ctx context.Context, groupID int64) error {
	v.mu.Lock()
	prev := v.groupID
	v.groupID = groupID
	v.gen++
	gen := v.gen
	v.timeline.Reset()
	v.mu.Unlock()

	if prev != 0 {
		v.surfaces.leave(v, prev)
	}

	msgs, err := v.history.FetchHistory(ctx, groupID, history.DefaultPage, history.DefaultPageSize)
	if apiclient.IsStatus(err, http.StatusForbidden) {
		v.drop(groupID)
		v.notify(Notice{Kind: NoticeHistoryFailed, GroupID: groupID, Err: err})
		return fmt.Errorf("%w: %w", ErrNotMember, err)
	}

	v.mu.Lock()
	current := v.gen == gen
	v.mu.Unlock()
	if !current {
		return nil
	}
	v.surfaces.join(v, groupID)

	if err != nil {
		v.notify(Notice{Kind: NoticeHistoryFailed, GroupID: groupID, Err: err})
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen == gen {
		v.timeline.Load(msgs)
	}
	return nil
}

// GroupID returns the active group, or zero.
func (v *View) GroupID() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.groupID
}

// Messages returns the active group's timeline.
func (v *View) Messages() []models.ChatMessage {
	return v.timeline.Messages()
}

// SendText publishes a text message. The message shows up in the timeline once the
// broker echoes it back.
func (v *View) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return v.publish(models.SendRequest{
		SenderID: v.userID,
		Content:  text,
		Type:     models.MessageTypeText,
	})
}

// SendFile uploads a file and announces it to the active group.
func (v *View) SendFile(ctx context.Context, fileName string, content io.Reader, meta attachments.Metadata) (models.FileDescriptor, error) {
	groupID := v.GroupID()
	if groupID == 0 {
		return models.FileDescriptor{}, ErrNoActiveGroup
	}

	desc, err := v.files.Upload(ctx, groupID, fileName, content, meta)
	if err != nil {
		v.notify(Notice{Kind: NoticeUploadFailed, GroupID: groupID, Err: err})
		return models.FileDescriptor{}, err
	}
	if err := v.publish(attachments.Announcement(desc, v.userID)); err != nil {
		return desc, err
	}
	return desc, nil
}

// ShareLink shares a URL with the active group through the REST API.
func (v *View) ShareLink(ctx context.Context, link, title string) (models.ChatMessage, error) {
	groupID := v.GroupID()
	if groupID == 0 {
		return models.ChatMessage{}, ErrNoActiveGroup
	}
	msg, err := v.files.ShareLink(ctx, groupID, strings.TrimSpace(link), strings.TrimSpace(title))
	if err != nil {
		v.notify(Notice{Kind: NoticeSendFailed, GroupID: groupID, Err: err})
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// Download saves a message's attachment and returns the saved path.
func (v *View) Download(ctx context.Context, msg models.ChatMessage) (string, error) {
	if !msg.Type.IsFile() || msg.FileURL == "" {
		return "", ErrNotAFile
	}
	_, path, err := v.files.Download(ctx, msg.FileURL, msg.FileName)
	if err != nil {
		v.notify(Notice{Kind: NoticeDownloadFailed, GroupID: msg.Group.ID, Err: err})
		return "", err
	}
	return path, nil
}

// Close releases the view's group. The shared session stays connected.
func (v *View) Close() {
	v.mu.Lock()
	prev := v.groupID
	v.groupID = 0
	v.gen++
	v.timeline.Reset()
	v.mu.Unlock()

	if prev != 0 {
		v.surfaces.leave(v, prev)
	}
}

func (v *View) publish(req models.SendRequest) error {
	groupID := v.GroupID()
	if groupID == 0 {
		return ErrNoActiveGroup
	}
	if !v.surfaces.session.SendMessage(groupID, req) {
		v.notify(Notice{Kind: NoticeSendFailed, GroupID: groupID, Err: ErrNotConnected})
		return fmt.Errorf("send to group %d: %w", groupID, ErrNotConnected)
	}
	return nil
}

// drop clears groupID as the active group without touching the session.
func (v *View) drop(groupID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.groupID == groupID {
		v.groupID = 0
		v.gen++
	}
}

func (v *View) receive(groupID int64, msg models.ChatMessage) {
	v.mu.Lock()
	added := v.groupID == groupID && v.timeline.Append(msg)
	v.mu.Unlock()

	if added && v.onMessage != nil {
		v.onMessage(msg)
	}
}

func (v *View) notify(n Notice) {
	log.Printf("chatview: %s group_id=%d err=%v", n.Text(), n.GroupID, n.Err)
	if v.onNotice != nil {
		v.onNotice(n)
	}
}
