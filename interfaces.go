package chatpilot

import (
	"context"

	"chatpilot/api"
	"chatpilot/model"
)

// Consumer-side contracts over the api package. The session engine depends
// on these instead of the concrete clients so tests can substitute mocks for
// any single collaborator.

// ChatAPI covers the chat CRUD, tag/folder, and delta-event endpoints.
type ChatAPI interface {
	Search(ctx context.Context, title string) ([]model.ChatSummary, error)
	Create(ctx context.Context, title string) (string, error)
	Get(ctx context.Context, id string) (*model.Chat, error)
	Update(ctx context.Context, id string, chat *model.Chat) error
	ListTags(ctx context.Context, id string) ([]string, error)
	AddTag(ctx context.Context, id, name string) error
	AssignFolder(ctx context.Context, id, folderID string) error
	PushDelta(ctx context.Context, chatID, messageID, content string) error
}

// CompletionAPI covers the completion endpoint in both modes.
type CompletionAPI interface {
	Complete(ctx context.Context, req api.CompletionRequest) (string, error)
	Stream(ctx context.Context, req api.CompletionRequest, ch chan<- model.StreamDelta) error
}

// FileAPI covers RAG file upload.
type FileAPI interface {
	Upload(ctx context.Context, path string) (*model.UploadedFile, error)
}

// KnowledgeAPI covers knowledge-base resolution.
type KnowledgeAPI interface {
	List(ctx context.Context) ([]model.KnowledgeBase, error)
	Get(ctx context.Context, id string) (*model.KnowledgeDetail, error)
}

// TaskConfigAPI exposes the server-designated task model.
type TaskConfigAPI interface {
	TaskModel(ctx context.Context) (string, error)
}
