package chatview

import "errors"

var (
	ErrNotConnected  = errors.New("chat is not connected")
	ErrNoActiveGroup = errors.New("no active group")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotAFile      = errors.New("message has no attachment")
	ErrNotMember     = errors.New("not a member of this group")
)

type NoticeKind int

const (
	NoticeConnectionError NoticeKind = iota + 1
	NoticeHistoryFailed
	NoticeSendFailed
	NoticeUploadFailed
	NoticeDownloadFailed
)

// Notice is a user-facing failure report. The surface decides how to show it.
type Notice struct {
	Kind    NoticeKind
	GroupID int64
	Err     error
}

// Text is the short message shown to the user.
func (n Notice) Text() string {
	switch n.Kind {
	case NoticeConnectionError:
		return "connection error"
	case NoticeHistoryFailed:
		return "failed to load messages"
	case NoticeSendFailed:
		return "failed to send"
	case NoticeUploadFailed:
		return "failed to upload"
	case NoticeDownloadFailed:
		return "failed to download"
	}
	return "error"
}
