package chatpilot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatpilot/model"
)

// PlaceholderPair is a reserved (user, assistant) message slot. The ids are
// stable on the server, so streamed deltas can be pushed under the assistant
// id without a message-create round trip per token.
type PlaceholderPair struct {
	UserID      string
	AssistantID string
}

// PlaceholderPool manages the pre-created empty message pairs of one
// session. Pairs are allocated in batches, claimed atomically as a whole,
// and pruned on teardown if never consumed.
type PlaceholderPool struct {
	chats ChatAPI
	log   *zap.Logger

	// created holds this session's pairs in insertion order; acquisition
	// and cleanup both walk it front to back.
	created []PlaceholderPair
}

// NewPlaceholderPool builds an empty pool pushing tree updates through chats.
func NewPlaceholderPool(chats ChatAPI, log *zap.Logger) *PlaceholderPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &PlaceholderPool{chats: chats, log: log}
}

// Ensure tops the pool up: when fewer than minAvailable unconsumed pairs
// remain, poolSize new pairs are synthesized, inserted into the tree, and
// pushed to the server in one batch update. Each user message is parented at
// the chat's current tip, each assistant message at its user sibling.
func (p *PlaceholderPool) Ensure(ctx context.Context, chat *model.Chat, poolSize, minAvailable int) error {
	if p.Available(chat) >= minAvailable {
		return nil
	}

	var parent *string
	if chat.History.CurrentID != "" {
		tip := chat.History.CurrentID
		parent = &tip
	}
	now := time.Now().Unix()
	for i := 0; i < poolSize; i++ {
		userID := uuid.NewString()
		assistantID := uuid.NewString()
		chat.History.Add(&model.Message{
			ID:          userID,
			ParentID:    parent,
			Role:        "user",
			Timestamp:   now,
			Placeholder: true,
			Available:   true,
		})
		chat.History.Add(&model.Message{
			ID:          assistantID,
			ParentID:    &userID,
			Role:        "assistant",
			Timestamp:   now,
			Placeholder: true,
			Available:   true,
		})
		p.created = append(p.created, PlaceholderPair{UserID: userID, AssistantID: assistantID})
	}

	if err := p.chats.Update(ctx, chat.ID, chat); err != nil {
		return fmt.Errorf("placeholder batch update: %w", err)
	}
	p.log.Debug("placeholder pool replenished", zap.Int("added", poolSize))
	return nil
}

// Available counts unconsumed pairs. A pair counts only when both of its
// messages are still present and marked available.
func (p *PlaceholderPool) Available(chat *model.Chat) int {
	n := 0
	for _, pair := range p.created {
		if p.pairAvailable(chat, pair) {
			n++
		}
	}
	return n
}

// Acquire claims the oldest available pair, marking both messages consumed.
// It returns nil when the pool is exhausted; the caller then falls back to
// creating a message pair on demand.
func (p *PlaceholderPool) Acquire(chat *model.Chat) *PlaceholderPair {
	for i := range p.created {
		pair := p.created[i]
		if !p.pairAvailable(chat, pair) {
			continue
		}
		chat.History.Messages[pair.UserID].Available = false
		chat.History.Messages[pair.AssistantID].Available = false
		return &pair
	}
	return nil
}

// ReleaseUnused deletes every pair still unconsumed from the tree and pushes
// the pruned tree to the server. It returns the number of pairs removed;
// calling it again without new allocations removes nothing.
func (p *PlaceholderPool) ReleaseUnused(ctx context.Context, chat *model.Chat) (int, error) {
	kept := p.created[:0]
	removed := 0
	for _, pair := range p.created {
		if !p.pairAvailable(chat, pair) {
			kept = append(kept, pair)
			continue
		}
		chat.History.Remove(pair.AssistantID)
		chat.History.Remove(pair.UserID)
		removed++
	}
	p.created = kept
	if removed == 0 {
		return 0, nil
	}
	if err := p.chats.Update(ctx, chat.ID, chat); err != nil {
		return removed, fmt.Errorf("placeholder cleanup update: %w", err)
	}
	p.log.Debug("released unused placeholders", zap.Int("pairs", removed))
	return removed, nil
}

func (p *PlaceholderPool) pairAvailable(chat *model.Chat, pair PlaceholderPair) bool {
	u, ok := chat.History.Messages[pair.UserID]
	if !ok || !u.Available {
		return false
	}
	a, ok := chat.History.Messages[pair.AssistantID]
	return ok && a.Available
}
