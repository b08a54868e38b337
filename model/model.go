// Package model defines the client-side representation of the remote chat
// service's data: chats, their message trees, and the payload shapes exchanged
// with the completion and RAG endpoints.
package model

// Chat is the client's cached copy of a server-side chat object. The server
// owns it; the client mutates the copy during a session and pushes it back
// explicitly.
type Chat struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	FolderID  string   `json:"folder_id,omitempty"`
	Models    []string `json:"models,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	History   History  `json:"history"`
	CreatedAt int64    `json:"created_at,omitempty"`
	UpdatedAt int64    `json:"updated_at,omitempty"`
}

// ChatSummary is the shape returned by the chat search endpoint.
type ChatSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updated_at"`
}

// Message is a single node in a chat's message tree.
//
// Placeholder and Available are client-local bookkeeping for the placeholder
// pool and are never serialized to the server.
type Message struct {
	ID          string       `json:"id"`
	ParentID    *string      `json:"parentId"`
	ChildrenIDs []string     `json:"childrenIds"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Model       string       `json:"model,omitempty"`
	ModelName   string       `json:"modelName,omitempty"`
	Done        bool         `json:"done"`
	Timestamp   int64        `json:"timestamp"`
	Files       []StorageRef `json:"files,omitempty"`

	Placeholder bool `json:"-"`
	Available   bool `json:"-"`
}

// WireMessage is the minimal role/content shape the completion endpoint
// accepts. Nothing else from Message may leak into it.
type WireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// StreamDelta is one chunk of an incremental completion response.
type StreamDelta struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// APIFileRef is a RAG reference in the shape the completion endpoint expects:
// {type:"file", id} for uploaded files, {type:"collection", id, data:{file_ids}}
// for knowledge-base collections.
type APIFileRef struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data *CollectionData `json:"data,omitempty"`
}

// CollectionData carries the expanded member file ids of a collection.
type CollectionData struct {
	FileIDs []string `json:"file_ids"`
}

// StorageRef is the richer RAG reference recorded on persisted messages.
type StorageRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// UploadedFile is the file-upload endpoint's response.
type UploadedFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Mime     string `json:"mime,omitempty"`
}

// KnowledgeBase is one entry of the knowledge list endpoint.
type KnowledgeBase struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// KnowledgeFile is a member file of a knowledge base.
type KnowledgeFile struct {
	ID string `json:"id"`
}

// KnowledgeDetail is the knowledge detail endpoint's response, carrying the
// member file list needed to expand a collection reference.
type KnowledgeDetail struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Files []KnowledgeFile `json:"files,omitempty"`
}
