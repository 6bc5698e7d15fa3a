package models

import "time"

// MessageType classifies the content of a chat message.
type MessageType string

const (
	MessageTypeText       MessageType = "TEXT"
	MessageTypeImage      MessageType = "IMAGE"
	MessageTypePDF        MessageType = "PDF"
	MessageTypeDocument   MessageType = "DOCUMENT"
	MessageTypeExcel      MessageType = "EXCEL"
	MessageTypePowerPoint MessageType = "POWERPOINT"
	MessageTypeLink       MessageType = "LINK"
)

// IsFile reports whether messages of this type carry file fields.
func (t MessageType) IsFile() bool {
	switch t {
	case MessageTypeImage, MessageTypePDF, MessageTypeDocument, MessageTypeExcel, MessageTypePowerPoint:
		return true
	}
	return false
}

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeLink || t.IsFile()
}

// ChatMessage is a persisted group chat message as delivered to clients.
type ChatMessage struct {
	ID        int64       `json:"id"`
	Group     GroupRef    `json:"group"`
	Sender    Sender      `json:"sender"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	FileURL   string      `json:"fileUrl,omitempty"`
	FileName  string      `json:"fileName,omitempty"`
	FileType  string      `json:"fileType,omitempty"`
	FileSize  int64       `json:"fileSize,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SendRequest is the payload a client publishes to a group's send destination.
type SendRequest struct {
	SenderID int64       `json:"senderId"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type,omitempty"`
	FileURL  string      `json:"fileUrl,omitempty"`
	FileName string      `json:"fileName,omitempty"`
	FileType string      `json:"fileType,omitempty"`
	FileSize int64       `json:"fileSize,omitempty"`
}

// FileDescriptor is returned by the upload endpoint.
type FileDescriptor struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	Caption  string `json:"caption,omitempty"`
}

// FileUploadRequest announces an already uploaded file to a group.
type FileUploadRequest struct {
	FileURL  string `json:"fileUrl" binding:"required"`
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	Caption  string `json:"caption"`
}

// ShareLinkRequest shares a URL with a group.
type ShareLinkRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}
