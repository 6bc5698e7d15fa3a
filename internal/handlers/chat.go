package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/repositories"
	"studygroup-chat/internal/services"
	"studygroup-chat/internal/storage"
	"studygroup-chat/internal/telemetry"
)

// MaxUploadSize is the largest attachment accepted by the upload endpoint.
const MaxUploadSize = 10 << 20

// ChatService is the business layer behind the group chat endpoints.
type ChatService interface {
	CheckMember(ctx context.Context, groupID, userID int64) error
	GroupMessages(ctx context.Context, groupID, userID int64, page, size int) ([]models.ChatMessage, error)
	SaveFileMessage(ctx context.Context, groupID, userID int64, req models.FileUploadRequest) (models.ChatMessage, error)
	SaveLinkMessage(ctx context.Context, groupID, userID int64, link, title string) (models.ChatMessage, error)
}

// FileStore holds attachment bytes.
type FileStore interface {
	Save(r io.Reader) (string, int64, error)
	Open(id string) (io.ReadSeekCloser, error)
	Remove(id string) error
}

// Broadcaster delivers a stored message to the group's live subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
}

// ChatHandler manages group chat endpoints.
type ChatHandler struct {
	chat  ChatService
	files repositories.FileRepository
	store FileStore
	out   Broadcaster
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chat ChatService, files repositories.FileRepository, store FileStore, out Broadcaster, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chat:  chat,
		files: files,
		store: store,
		out:   out,
		audit: audit,
	}
}

type chatMessageResponse struct {
	Message     string             `json:"message"`
	ChatMessage models.ChatMessage `json:"chatMessage"`
}

type uploadResponse struct {
	Message string `json:"message"`
	models.FileDescriptor
}

// GetGroupMessages returns one page of a group's messages, newest first.
func (h *ChatHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	page, err := queryInt(c, "page", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := queryInt(c, "size", services.DefaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	msgs, err := h.chat.GroupMessages(c.Request.Context(), groupID, c.GetInt64("userID"), page, size)
	if err != nil {
		h.fail(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages retrieved successfully", "messages": msgs})
}

// UploadFile stores an attachment and returns its descriptor. The file is not
// announced to the group; clients do that through the broker or upload-file.
func (h *ChatHandler) UploadFile(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	userID := c.GetInt64("userID")
	if err := h.chat.CheckMember(c.Request.Context(), groupID, userID); err != nil {
		h.fail(c, err, "failed to verify membership")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10MB limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}
	if header.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10MB limit"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		detected, err := mimetype.DetectReader(file)
		if err == nil {
			contentType = detected.String()
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}
	}

	fileID, size, err := h.store.Save(file)
	if err != nil {
		log.Printf("upload: store failed group_id=%d user_id=%d err=%v", groupID, userID, err)
		h.emitAudit(c, telemetry.AuditRecord{Level: "ERROR", Action: "file_upload", Text: "store failed", GroupID: groupID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}
	err = h.files.CreateFile(c.Request.Context(), repositories.StoredFile{
		ID:          fileID,
		GroupID:     groupID,
		UploaderID:  userID,
		Name:        header.Filename,
		ContentType: contentType,
		Size:        size,
	})
	if err != nil {
		_ = h.store.Remove(fileID)
		log.Printf("upload: record failed group_id=%d user_id=%d err=%v", groupID, userID, err)
		h.emitAudit(c, telemetry.AuditRecord{Level: "ERROR", Action: "file_upload", Text: "record failed", GroupID: groupID, FileID: fileID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	h.emitAudit(c, telemetry.AuditRecord{Level: "INFO", Action: "file_upload", Text: header.Filename, GroupID: groupID, FileID: fileID})
	c.JSON(http.StatusOK, uploadResponse{
		Message: "File uploaded successfully",
		FileDescriptor: models.FileDescriptor{
			FileURL:  "/api/files/" + fileID,
			FileName: header.Filename,
			FileType: contentType,
			FileSize: size,
			Caption:  c.PostForm("caption"),
		},
	})
}

// PublishFile stores a message announcing an uploaded file and broadcasts it.
func (h *ChatHandler) PublishFile(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	var req models.FileUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.SaveFileMessage(c.Request.Context(), groupID, c.GetInt64("userID"), req)
	if err != nil {
		h.fail(c, err, "failed to send file message")
		return
	}
	h.broadcast(c, msg)
	c.JSON(http.StatusOK, chatMessageResponse{Message: "File message sent successfully", ChatMessage: msg})
}

// ShareLink stores a link message and broadcasts it.
func (h *ChatHandler) ShareLink(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	var req models.ShareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.SaveLinkMessage(c.Request.Context(), groupID, c.GetInt64("userID"), req.URL, req.Title)
	if err != nil {
		h.fail(c, err, "failed to share link")
		return
	}
	h.broadcast(c, msg)
	h.emitAudit(c, telemetry.AuditRecord{Level: "INFO", Action: "link_share", Text: msg.Content, GroupID: groupID})
	c.JSON(http.StatusOK, chatMessageResponse{Message: "Link shared successfully", ChatMessage: msg})
}

// DownloadFile streams an attachment to a member of the group it was shared in.
func (h *ChatHandler) DownloadFile(c *gin.Context) {
	file, err := h.files.GetFile(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		if errors.Is(err, repositories.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load file"})
		return
	}
	if err := h.chat.CheckMember(c.Request.Context(), file.GroupID, c.GetInt64("userID")); err != nil {
		h.fail(c, err, "failed to verify membership")
		return
	}

	content, err := h.store.Open(file.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load file"})
		return
	}
	defer content.Close()

	h.emitAudit(c, telemetry.AuditRecord{Level: "INFO", Action: "file_download", Text: file.Name, GroupID: file.GroupID, FileID: file.ID})

	c.Header("Content-Type", file.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	http.ServeContent(c.Writer, c.Request, file.Name, file.CreatedAt, content)
}

func (h *ChatHandler) broadcast(c *gin.Context, msg models.ChatMessage) {
	if h.out == nil {
		return
	}
	if err := h.out.Publish(c.Request.Context(), msg); err != nil {
		log.Printf("broadcast failed group_id=%d message_id=%d err=%v", msg.Group.ID, msg.ID, err)
	}
}

func (h *ChatHandler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, services.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("%s: %v", fallback, err)
		h.emitAudit(c, telemetry.AuditRecord{Level: "ERROR", Action: "internal_error", Text: fallback})
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *ChatHandler) emitAudit(c *gin.Context, rec telemetry.AuditRecord) {
	if h.audit == nil {
		return
	}
	rec.RequestID = requestMeta(c).RequestID
	rec.UserID = auditUserID(c)
	h.audit.Emit(c.Request.Context(), rec)
}

func parseGroupID(c *gin.Context) (int64, bool) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil || groupID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}
	return groupID, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
