package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"studygroup-chat/internal/attachments"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/realtime"
)

type SessionMock struct {
	mock.Mock
}

func (m *SessionMock) Connect(onConnected func(), onError func(error)) {
	m.Called(onConnected, onError)
}

func (m *SessionMock) SubscribeToGroup(groupID int64, onMessage realtime.MessageHandler) bool {
	args := m.Called(groupID, onMessage)
	return args.Bool(0)
}

func (m *SessionMock) UnsubscribeFromGroup(groupID int64) {
	m.Called(groupID)
}

func (m *SessionMock) SendMessage(groupID int64, payload any) bool {
	args := m.Called(groupID, payload)
	return args.Bool(0)
}

func (m *SessionMock) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

type HistorySourceMock struct {
	mock.Mock
}

func (m *HistorySourceMock) FetchHistory(ctx context.Context, groupID int64, page, size int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, groupID, page, size)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

type FilesMock struct {
	mock.Mock
}

func (m *FilesMock) Upload(ctx context.Context, groupID int64, fileName string, content io.Reader, meta attachments.Metadata) (models.FileDescriptor, error) {
	args := m.Called(ctx, groupID, fileName, content, meta)
	var desc models.FileDescriptor
	if val := args.Get(0); val != nil {
		desc = val.(models.FileDescriptor)
	}
	return desc, args.Error(1)
}

func (m *FilesMock) Download(ctx context.Context, fileURL, fileName string) ([]byte, string, error) {
	args := m.Called(ctx, fileURL, fileName)
	var data []byte
	if val := args.Get(0); val != nil {
		data = val.([]byte)
	}
	return data, args.String(1), args.Error(2)
}

func (m *FilesMock) ShareLink(ctx context.Context, groupID int64, link, title string) (models.ChatMessage, error) {
	args := m.Called(ctx, groupID, link, title)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}
