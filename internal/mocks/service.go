package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"studygroup-chat/internal/models"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CheckMember(ctx context.Context, groupID, userID int64) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *ChatServiceMock) GroupMessages(ctx context.Context, groupID, userID int64, page, size int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, groupID, userID, page, size)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) SaveMessage(ctx context.Context, groupID, senderID int64, req models.SendRequest) (models.ChatMessage, error) {
	args := m.Called(ctx, groupID, senderID, req)
	return chatMessage(args.Get(0)), args.Error(1)
}

func (m *ChatServiceMock) SaveFileMessage(ctx context.Context, groupID, userID int64, req models.FileUploadRequest) (models.ChatMessage, error) {
	args := m.Called(ctx, groupID, userID, req)
	return chatMessage(args.Get(0)), args.Error(1)
}

func (m *ChatServiceMock) SaveLinkMessage(ctx context.Context, groupID, userID int64, link, title string) (models.ChatMessage, error) {
	args := m.Called(ctx, groupID, userID, link, title)
	return chatMessage(args.Get(0)), args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Publish(ctx context.Context, msg models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func chatMessage(val any) models.ChatMessage {
	if val == nil {
		return models.ChatMessage{}
	}
	return val.(models.ChatMessage)
}
