// Package apitest runs an in-process stand-in for the remote chat service so
// the client can be tested end to end without a network. Routing mirrors the
// real service's paths; state lives in memory behind one mutex.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chatpilot/model"
)

// DeltaEvent records one chat:message:delta push received by the server.
type DeltaEvent struct {
	ChatID    string
	MessageID string
	Content   string
}

// CompleteFunc decides how the fake answers a non-streaming completion.
type CompleteFunc func(req CompletionBody) (string, error)

// StreamFunc yields the content chunks for a streaming completion.
type StreamFunc func(req CompletionBody) ([]string, error)

// CompletionBody is the decoded completion request as the fake sees it.
type CompletionBody struct {
	Model    string              `json:"model"`
	Messages []model.WireMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Files    []model.APIFileRef  `json:"files,omitempty"`
}

// Server is the fake remote service. Fields configuring behavior must be set
// before issuing requests; recorded state may be inspected at any time via
// the accessor methods.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	chats     map[string]*model.Chat
	tags      map[string][]string
	folders   map[string]string
	deltas    []DeltaEvent
	uploads   map[string]model.UploadedFile // filename -> response
	knowledge []model.KnowledgeDetail
	updates   int

	// Behavior knobs.
	TaskModel   string
	Complete    CompleteFunc
	StreamChunk StreamFunc
	FailUploads map[string]bool // filename -> force 500
	FailSearch  bool
}

// New starts the fake service with empty state.
func New() *Server {
	s := &Server{
		chats:       make(map[string]*model.Chat),
		tags:        make(map[string][]string),
		folders:     make(map[string]string),
		uploads:     make(map[string]model.UploadedFile),
		FailUploads: make(map[string]bool),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/chats", s.handleSearch)
	r.Post("/chats/new", s.handleCreate)
	r.Get("/chats/{chatID}", s.handleGet)
	r.Post("/chats/{chatID}", s.handleUpdate)
	r.Get("/chats/{chatID}/tags", s.handleListTags)
	r.Post("/chats/{chatID}/tags", s.handleAddTag)
	r.Post("/chats/{chatID}/folder", s.handleFolder)
	r.Post("/chats/{chatID}/messages/{messageID}/event", s.handleEvent)
	r.Post("/chat/completions", s.handleCompletion)
	r.Post("/files/", s.handleUpload)
	r.Get("/knowledge/list", s.handleKnowledgeList)
	r.Get("/knowledge/{knowledgeID}", s.handleKnowledgeGet)
	r.Get("/tasks/config", s.handleTaskConfig)

	return r
}

// SeedChat registers an existing chat directly in the fake's store.
func (s *Server) SeedChat(chat *model.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.History.Messages == nil {
		chat.History.Messages = make(map[string]*model.Message)
	}
	s.chats[chat.ID] = chat
}

// SeedKnowledge registers a knowledge base with its member files.
func (s *Server) SeedKnowledge(kb model.KnowledgeDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge = append(s.knowledge, kb)
}

// SeedUpload sets the response for uploading the given filename.
func (s *Server) SeedUpload(filename string, resp model.UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[filename] = resp
}

// Chat returns the current server-side state of a chat.
func (s *Server) Chat(id string) *model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[id]
}

// Deltas returns every delta event received so far.
func (s *Server) Deltas() []DeltaEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeltaEvent, len(s.deltas))
	copy(out, s.deltas)
	return out
}

// Tags returns the tags currently attached to a chat.
func (s *Server) Tags(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags[chatID]...)
}

// Folder returns the folder a chat was assigned to.
func (s *Server) Folder(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders[chatID]
}

// Updates returns how many full-tree chat updates the server received.
func (s *Server) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.FailSearch {
		http.Error(w, "search unavailable", http.StatusInternalServerError)
		return
	}
	term := r.URL.Query().Get("search")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ChatSummary{}
	for _, c := range s.chats {
		if term == "" || c.Title == term {
			out = append(out, model.ChatSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Chat struct {
			Title string `json:"title"`
		} `json:"chat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	chat := &model.Chat{
		ID:      uuid.NewString(),
		Title:   body.Chat.Title,
		History: model.NewHistory(),
	}
	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": chat.ID})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	chat, ok := s.chats[chi.URLParam(r, "chatID")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Chat *model.Chat `json:"chat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Chat == nil {
		http.Error(w, "bad chat payload", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "chatID")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[id]; !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	body.Chat.ID = id
	s.chats[id] = body.Chat
	s.updates++
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]string{}
	for _, name := range s.tags[chi.URLParam(r, "chatID")] {
		out = append(out, map[string]string{"name": name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "chatID")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags[id] {
		if existing == body.Name {
			http.Error(w, "tag exists", http.StatusConflict)
			return
		}
	}
	s.tags[id] = append(s.tags[id], body.Name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderID string `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.folders[chi.URLParam(r, "chatID")] = body.FolderID
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Type != "chat:message:delta" {
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.deltas = append(s.deltas, DeltaEvent{
		ChatID:    chi.URLParam(r, "chatID"),
		MessageID: chi.URLParam(r, "messageID"),
		Content:   body.Data.Content,
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Stream {
		fn := s.StreamChunk
		if fn == nil {
			http.Error(w, "streaming not configured", http.StatusInternalServerError)
			return
		}
		chunks, err := fn(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, chunk := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": chunk}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	fn := s.Complete
	if fn == nil {
		http.Error(w, "completions not configured", http.StatusInternalServerError)
		return
	}
	content, err := fn(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUploads[header.Filename] {
		http.Error(w, "upload rejected", http.StatusInternalServerError)
		return
	}
	if resp, ok := s.uploads[header.Filename]; ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, model.UploadedFile{
		ID:       uuid.NewString(),
		Filename: header.Filename,
		Size:     header.Size,
	})
}

func (s *Server) handleKnowledgeList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.KnowledgeBase{}
	for _, kb := range s.knowledge {
		out = append(out, model.KnowledgeBase{ID: kb.ID, Name: kb.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleKnowledgeGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "knowledgeID")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kb := range s.knowledge {
		if kb.ID == id {
			writeJSON(w, http.StatusOK, kb)
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) handleTaskConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"task_model": s.TaskModel})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "marshal failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}
