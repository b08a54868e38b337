package chatpilot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatpilot/api"
	"chatpilot/model"
)

// TurnOptions describes one question posed to the chat.
type TurnOptions struct {
	// Prompt is the user's message. Required.
	Prompt string
	// Model answers the question. Required for Chat and StreamChat;
	// ParallelChat takes its model list separately.
	Model string

	// RAGFiles are local paths uploaded and attached as grounding.
	RAGFiles []string
	// RAGCollections are knowledge-base names resolved to collection refs.
	RAGCollections []string
	// Images are base64-encoded attachments for the user message.
	Images []string

	// Tags and FolderID organize the chat before the turn, best-effort.
	Tags     []string
	FolderID string

	// AutoTitle derives and applies a title after the turn.
	AutoTitle bool
	// AutoTags derives and applies topic tags after the turn.
	AutoTags bool
	// FollowUps attaches suggested next questions to the result.
	FollowUps bool
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Content   string
	Model     string
	FollowUps []string
}

// Chat runs one full-response turn: organize, resolve RAG references, build
// the request, dispatch, persist, post-process. A nil result with an error
// means the turn could not complete; everything best-effort inside it only
// logs.
func (s *Session) Chat(ctx context.Context, opts TurnOptions) (*TurnResult, error) {
	if opts.Prompt == "" || opts.Model == "" {
		return nil, fmt.Errorf("turn requires a prompt and a model")
	}

	s.organize(ctx, opts)
	apiRefs, storageRefs := s.resolveRAG(ctx, opts)

	messages := s.buildWireMessages(opts)
	content, err := s.client.completions.Complete(ctx, api.CompletionRequest{
		Model:    opts.Model,
		Messages: messages,
		Files:    apiRefs,
	})
	if err != nil {
		s.log.Error("completion failed", zap.String("model", opts.Model), zap.Error(err))
		return nil, err
	}

	s.persistTurn(ctx, opts, storageRefs, map[string]string{opts.Model: content}, opts.Model)

	result := &TurnResult{Content: content, Model: opts.Model}
	s.postProcess(ctx, opts, result)
	return result, nil
}

// organize applies requested tags and folder before the turn. Failures are
// logged and the turn proceeds.
func (s *Session) organize(ctx context.Context, opts TurnOptions) {
	if len(opts.Tags) > 0 {
		s.applyTags(ctx, opts.Tags)
	}
	if opts.FolderID != "" {
		if err := s.client.chats.AssignFolder(ctx, s.chat.ID, opts.FolderID); err != nil {
			s.log.Warn("folder assignment failed", zap.String("folder_id", opts.FolderID), zap.Error(err))
		} else {
			s.chat.FolderID = opts.FolderID
		}
	}
}

// applyTags adds tags not already on the chat, skipping those present.
func (s *Session) applyTags(ctx context.Context, tags []string) {
	existing, err := s.client.chats.ListTags(ctx, s.chat.ID)
	if err != nil {
		s.log.Warn("tag listing failed", zap.Error(err))
		existing = nil
	}
	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		present[t] = true
	}
	for _, tag := range tags {
		if tag == "" || present[tag] {
			continue
		}
		if err := s.client.chats.AddTag(ctx, s.chat.ID, tag); err != nil {
			s.log.Warn("tag application failed", zap.String("tag", tag), zap.Error(err))
			continue
		}
		present[tag] = true
		s.chat.Tags = append(s.chat.Tags, tag)
	}
}

func (s *Session) resolveRAG(ctx context.Context, opts TurnOptions) ([]model.APIFileRef, []model.StorageRef) {
	if len(opts.RAGFiles) == 0 && len(opts.RAGCollections) == 0 {
		return nil, nil
	}
	resolver := NewRAGResolver(s.client.files, s.client.knowledge, s.log)
	return resolver.Resolve(ctx, opts.RAGFiles, opts.RAGCollections)
}

// buildWireMessages linearizes the active branch and appends the new user
// turn.
func (s *Session) buildWireMessages(opts TurnOptions) []model.WireMessage {
	messages := s.chat.History.WireMessages()
	return append(messages, model.WireMessage{
		Role:    "user",
		Content: opts.Prompt,
		Images:  opts.Images,
	})
}

// persistTurn appends the user message and one assistant message per
// answering model to the tree, advances the tip to tipModel's answer, and
// pushes the tree. Persistence failures are logged; the caller already holds
// the response, a lagging server copy must not lose it.
func (s *Session) persistTurn(ctx context.Context, opts TurnOptions, refs []model.StorageRef, answers map[string]string, tipModel string) {
	now := time.Now().Unix()

	var parent *string
	if s.chat.History.CurrentID != "" {
		tip := s.chat.History.CurrentID
		parent = &tip
	}
	userID := uuid.NewString()
	s.chat.History.Add(&model.Message{
		ID:        userID,
		ParentID:  parent,
		Role:      "user",
		Content:   opts.Prompt,
		Files:     refs,
		Done:      true,
		Timestamp: now,
	})

	for _, m := range orderedModels(answers, tipModel) {
		assistantID := uuid.NewString()
		s.chat.History.Add(&model.Message{
			ID:        assistantID,
			ParentID:  &userID,
			Role:      "assistant",
			Content:   answers[m],
			Model:     m,
			ModelName: m,
			Done:      true,
			Timestamp: now,
		})
		if m == tipModel {
			s.chat.History.CurrentID = assistantID
		}
	}
	s.touchModels(answers)

	if err := s.client.chats.Update(ctx, s.chat.ID, s.chat); err != nil {
		s.log.Warn("turn persistence failed", zap.Error(err))
	}
}

// orderedModels returns tipModel first, then the rest in stable order, so
// the tip assignment is deterministic.
func orderedModels(answers map[string]string, tipModel string) []string {
	out := make([]string, 0, len(answers))
	if _, ok := answers[tipModel]; ok {
		out = append(out, tipModel)
	}
	for m := range answers {
		if m != tipModel {
			out = append(out, m)
		}
	}
	return out
}

// touchModels records the answering models on the chat object.
func (s *Session) touchModels(answers map[string]string) {
	present := make(map[string]bool, len(s.chat.Models))
	for _, m := range s.chat.Models {
		present[m] = true
	}
	for m := range answers {
		if !present[m] {
			s.chat.Models = append(s.chat.Models, m)
		}
	}
}

// postProcess derives title, tags, and follow-ups through the task model
// when requested. All of it is best-effort; a missing task model simply
// leaves the features off.
func (s *Session) postProcess(ctx context.Context, opts TurnOptions, result *TurnResult) {
	if !opts.AutoTitle && !opts.AutoTags && !opts.FollowUps {
		return
	}
	engine := s.client.TaskEngine(ctx)
	if engine == nil {
		s.log.Debug("no task model available, skipping post-processing")
		return
	}
	messages := s.chat.History.WireMessages()

	if opts.AutoTitle {
		if title := engine.Title(ctx, messages); title != "" {
			s.chat.Title = title
			if err := s.client.chats.Update(ctx, s.chat.ID, s.chat); err != nil {
				s.log.Warn("title update failed", zap.Error(err))
			}
		}
	}
	if opts.AutoTags {
		if tags := engine.Tags(ctx, messages); len(tags) > 0 {
			s.applyTags(ctx, tags)
		}
	}
	if opts.FollowUps && result != nil {
		result.FollowUps = engine.FollowUps(ctx, messages)
	}
}
