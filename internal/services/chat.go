// Package services holds the chat business rules shared by the broker and REST handlers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/repositories"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

var (
	ErrNotMember      = errors.New("you are not a member of this group")
	ErrInvalidMessage = errors.New("invalid message")
)

// ChatService validates, stores and pages group chat messages.
type ChatService struct {
	groups   repositories.GroupRepository
	users    repositories.UserRepository
	messages repositories.ChatMessageRepository
	tracer   trace.Tracer
}

// NewChatService constructs a ChatService.
func NewChatService(groups repositories.GroupRepository, users repositories.UserRepository, messages repositories.ChatMessageRepository) *ChatService {
	return &ChatService{
		groups:   groups,
		users:    users,
		messages: messages,
		tracer:   otel.Tracer("studygroup-chat/services"),
	}
}

// CheckMember returns nil when the user is an active member of an existing group.
func (s *ChatService) CheckMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return err
	}
	ok, err := s.groups.IsActiveMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

// SaveMessage stores a message published by senderID. A TEXT message that is a single
// URL is stored as LINK, and file fields are kept only for file types.
func (s *ChatService) SaveMessage(ctx context.Context, groupID, senderID int64, req models.SendRequest) (models.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "chat.save_message", trace.WithAttributes(
		attribute.Int64("group.id", groupID),
		attribute.Int64("user.id", senderID),
	))
	defer span.End()

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return s.fail(span, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msgType))
	}
	if strings.TrimSpace(req.Content) == "" && !msgType.IsFile() {
		return s.fail(span, fmt.Errorf("%w: content is empty", ErrInvalidMessage))
	}
	if msgType.IsFile() && req.FileURL == "" {
		return s.fail(span, fmt.Errorf("%w: file message without fileUrl", ErrInvalidMessage))
	}
	if err := s.checkSender(ctx, groupID, senderID); err != nil {
		return s.fail(span, err)
	}

	stored := repositories.NewChatMessage{
		GroupID:  groupID,
		SenderID: senderID,
		Content:  req.Content,
		Type:     msgType,
	}
	if msgType == models.MessageTypeText && models.LooksLikeLink(req.Content) {
		stored.Type = models.MessageTypeLink
	}
	if msgType.IsFile() {
		stored.FileURL = req.FileURL
		stored.FileName = req.FileName
		stored.FileType = req.FileType
		stored.FileSize = req.FileSize
	}

	msg, err := s.messages.CreateMessage(ctx, stored)
	if err != nil {
		return s.fail(span, fmt.Errorf("store message: %w", err))
	}
	span.SetAttributes(attribute.Int64("message.id", msg.ID))
	return msg, nil
}

// SaveFileMessage stores the announcement of an uploaded file. The type follows the
// file's MIME type.
func (s *ChatService) SaveFileMessage(ctx context.Context, groupID, userID int64, req models.FileUploadRequest) (models.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "chat.save_file_message", trace.WithAttributes(
		attribute.Int64("group.id", groupID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	if err := s.checkSender(ctx, groupID, userID); err != nil {
		return s.fail(span, err)
	}
	content := req.Caption
	if strings.TrimSpace(content) == "" {
		content = models.DefaultFileCaption
	}
	msg, err := s.messages.CreateMessage(ctx, repositories.NewChatMessage{
		GroupID:  groupID,
		SenderID: userID,
		Content:  content,
		Type:     models.MessageTypeForMIME(req.FileType),
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileType: req.FileType,
		FileSize: req.FileSize,
	})
	if err != nil {
		return s.fail(span, fmt.Errorf("store file message: %w", err))
	}
	return msg, nil
}

// SaveLinkMessage stores a shared link. The optional title is kept in the file name field.
func (s *ChatService) SaveLinkMessage(ctx context.Context, groupID, userID int64, link, title string) (models.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "chat.save_link_message", trace.WithAttributes(
		attribute.Int64("group.id", groupID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	link = strings.TrimSpace(link)
	if link == "" {
		return s.fail(span, fmt.Errorf("%w: url is empty", ErrInvalidMessage))
	}
	if err := s.checkSender(ctx, groupID, userID); err != nil {
		return s.fail(span, err)
	}
	msg, err := s.messages.CreateMessage(ctx, repositories.NewChatMessage{
		GroupID:  groupID,
		SenderID: userID,
		Content:  link,
		Type:     models.MessageTypeLink,
		FileName: strings.TrimSpace(title),
	})
	if err != nil {
		return s.fail(span, fmt.Errorf("store link message: %w", err))
	}
	return msg, nil
}

// GroupMessages returns one page of the group's history, newest first.
func (s *ChatService) GroupMessages(ctx context.Context, groupID, userID int64, page, size int) ([]models.ChatMessage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if err := s.CheckMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListGroupMessages(ctx, groupID, page, size)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (s *ChatService) checkSender(ctx context.Context, groupID, userID int64) error {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.CheckMember(ctx, groupID, userID)
}

func (s *ChatService) fail(span trace.Span, err error) (models.ChatMessage, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return models.ChatMessage{}, err
}
