package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/repositories"
)

type ChatMessageRepositoryMock struct {
	mock.Mock
}

func (m *ChatMessageRepositoryMock) CreateMessage(ctx context.Context, msg repositories.NewChatMessage) (models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	var out models.ChatMessage
	if val := args.Get(0); val != nil {
		out = val.(models.ChatMessage)
	}
	return out, args.Error(1)
}

func (m *ChatMessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID int64, page, size int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, groupID, page, size)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) IsActiveMember(ctx context.Context, groupID int64, userID int64) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type FileRepositoryMock struct {
	mock.Mock
}

func (m *FileRepositoryMock) CreateFile(ctx context.Context, file repositories.StoredFile) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *FileRepositoryMock) GetFile(ctx context.Context, fileID string) (repositories.StoredFile, error) {
	args := m.Called(ctx, fileID)
	var file repositories.StoredFile
	if val := args.Get(0); val != nil {
		file = val.(repositories.StoredFile)
	}
	return file, args.Error(1)
}

var _ repositories.ChatMessageRepository = (*ChatMessageRepositoryMock)(nil)
var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.FileRepository = (*FileRepositoryMock)(nil)
