package api

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"chatpilot/model"
)

// Chats exposes the chat CRUD and event endpoints.
type Chats struct {
	t *Transport
}

// NewChats wraps the transport with the chat endpoints.
func NewChats(t *Transport) *Chats {
	return &Chats{t: t}
}

// Search returns summaries of chats matching the given title search term.
func (c *Chats) Search(ctx context.Context, title string) ([]model.ChatSummary, error) {
	var out []model.ChatSummary
	path := "/chats?search=" + url.QueryEscape(title)
	if err := c.t.GetJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("chat search: %w", err)
	}
	return out, nil
}

type createChatRequest struct {
	Chat createChatBody `json:"chat"`
}

type createChatBody struct {
	Title string `json:"title"`
}

type createChatResponse struct {
	ID string `json:"id"`
}

// Create makes a new empty chat with the given title and returns its id.
func (c *Chats) Create(ctx context.Context, title string) (string, error) {
	var out createChatResponse
	req := createChatRequest{Chat: createChatBody{Title: title}}
	if err := c.t.PostJSON(ctx, "/chats/new", req, &out); err != nil {
		return "", fmt.Errorf("chat create: %w", err)
	}
	return out.ID, nil
}

// Get loads the full chat object, history tree included.
func (c *Chats) Get(ctx context.Context, id string) (*model.Chat, error) {
	var out model.Chat
	if err := c.t.GetJSON(ctx, "/chats/"+id, &out); err != nil {
		return nil, fmt.Errorf("chat get: %w", err)
	}
	if out.History.Messages == nil {
		out.History.Messages = make(map[string]*model.Message)
	}
	return &out, nil
}

type updateChatRequest struct {
	Chat *model.Chat `json:"chat"`
}

// Update pushes the mutated chat tree back to the server in one batch.
func (c *Chats) Update(ctx context.Context, id string, chat *model.Chat) error {
	if err := c.t.PostJSON(ctx, "/chats/"+id, updateChatRequest{Chat: chat}, nil); err != nil {
		return fmt.Errorf("chat update: %w", err)
	}
	return nil
}

type tagEntry struct {
	Name string `json:"name"`
}

// ListTags returns the tag names currently on the chat.
func (c *Chats) ListTags(ctx context.Context, id string) ([]string, error) {
	var out []tagEntry
	if err := c.t.GetJSON(ctx, "/chats/"+id+"/tags", &out); err != nil {
		return nil, fmt.Errorf("tag list: %w", err)
	}
	names := make([]string, len(out))
	for i, t := range out {
		names[i] = t.Name
	}
	return names, nil
}

// AddTag attaches one tag to the chat. The server treats duplicates as a
// conflict, so callers check ListTags first to stay idempotent.
func (c *Chats) AddTag(ctx context.Context, id, name string) error {
	if err := c.t.PostJSON(ctx, "/chats/"+id+"/tags", tagEntry{Name: name}, nil); err != nil {
		return fmt.Errorf("tag add: %w", err)
	}
	return nil
}

type assignFolderRequest struct {
	FolderID string `json:"folder_id"`
}

// AssignFolder moves the chat into the given folder.
func (c *Chats) AssignFolder(ctx context.Context, id, folderID string) error {
	if err := c.t.PostJSON(ctx, "/chats/"+id+"/folder", assignFolderRequest{FolderID: folderID}, nil); err != nil {
		return fmt.Errorf("folder assign: %w", err)
	}
	return nil
}

type messageEventRequest struct {
	Type string           `json:"type"`
	Data messageEventData `json:"data"`
}

type messageEventData struct {
	Content string `json:"content"`
}

// PushDelta posts partial streamed content for a message as a
// chat:message:delta event. It is best-effort by contract: callers ignore
// the returned error beyond logging it.
func (c *Chats) PushDelta(ctx context.Context, chatID, messageID, content string) error {
	path := "/chats/" + chatID + "/messages/" + messageID + "/event"
	req := messageEventRequest{Type: "chat:message:delta", Data: messageEventData{Content: content}}
	if err := c.t.PostJSON(ctx, path, req, nil); err != nil {
		c.t.log.Debug("delta push failed", zap.String("chat_id", chatID), zap.String("message_id", messageID), zap.Error(err))
		return err
	}
	return nil
}
