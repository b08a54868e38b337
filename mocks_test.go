package chatpilot

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatpilot/api"
	"chatpilot/model"
)

// Hand-rolled testify mocks for the consumer interfaces.

type mockChats struct {
	mock.Mock
}

func (m *mockChats) Search(ctx context.Context, title string) ([]model.ChatSummary, error) {
	args := m.Called(ctx, title)
	var out []model.ChatSummary
	if v := args.Get(0); v != nil {
		out = v.([]model.ChatSummary)
	}
	return out, args.Error(1)
}

func (m *mockChats) Create(ctx context.Context, title string) (string, error) {
	args := m.Called(ctx, title)
	return args.String(0), args.Error(1)
}

func (m *mockChats) Get(ctx context.Context, id string) (*model.Chat, error) {
	args := m.Called(ctx, id)
	var out *model.Chat
	if v := args.Get(0); v != nil {
		out = v.(*model.Chat)
	}
	return out, args.Error(1)
}

func (m *mockChats) Update(ctx context.Context, id string, chat *model.Chat) error {
	args := m.Called(ctx, id, chat)
	return args.Error(0)
}

func (m *mockChats) ListTags(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	var out []string
	if v := args.Get(0); v != nil {
		out = v.([]string)
	}
	return out, args.Error(1)
}

func (m *mockChats) AddTag(ctx context.Context, id, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

func (m *mockChats) AssignFolder(ctx context.Context, id, folderID string) error {
	args := m.Called(ctx, id, folderID)
	return args.Error(0)
}

func (m *mockChats) PushDelta(ctx context.Context, chatID, messageID, content string) error {
	args := m.Called(ctx, chatID, messageID, content)
	return args.Error(0)
}

type mockCompletions struct {
	mock.Mock
}

func (m *mockCompletions) Complete(ctx context.Context, req api.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockCompletions) Stream(ctx context.Context, req api.CompletionRequest, ch chan<- model.StreamDelta) error {
	args := m.Called(ctx, req, ch)
	return args.Error(0)
}

type mockFiles struct {
	mock.Mock
}

func (m *mockFiles) Upload(ctx context.Context, path string) (*model.UploadedFile, error) {
	args := m.Called(ctx, path)
	var out *model.UploadedFile
	if v := args.Get(0); v != nil {
		out = v.(*model.UploadedFile)
	}
	return out, args.Error(1)
}

type mockKnowledge struct {
	mock.Mock
}

func (m *mockKnowledge) List(ctx context.Context) ([]model.KnowledgeBase, error) {
	args := m.Called(ctx)
	var out []model.KnowledgeBase
	if v := args.Get(0); v != nil {
		out = v.([]model.KnowledgeBase)
	}
	return out, args.Error(1)
}

func (m *mockKnowledge) Get(ctx context.Context, id string) (*model.KnowledgeDetail, error) {
	args := m.Called(ctx, id)
	var out *model.KnowledgeDetail
	if v := args.Get(0); v != nil {
		out = v.(*model.KnowledgeDetail)
	}
	return out, args.Error(1)
}

type mockTaskConfig struct {
	mock.Mock
}

func (m *mockTaskConfig) TaskModel(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
