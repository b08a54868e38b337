package chatpilot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatpilot/model"
)

// Session binds one server-side chat to its per-conversation working state:
// the cached chat object and the placeholder pool. One Session handles one
// in-flight logical turn at a time; run concurrent conversations through
// separate Sessions, the Client itself is safe to share.
type Session struct {
	client *Client
	log    *zap.Logger

	chat *model.Chat
	pool *PlaceholderPool
}

// Session finds the chat with the given title, creating it when absent, and
// loads its full tree as the session's working state. When several chats
// share the title, the most recently updated one wins. Any failure along the
// way aborts the resolve; no partial session is returned.
func (c *Client) Session(ctx context.Context, title string) (*Session, error) {
	id, err := c.resolveChatID(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("no chat available for %q: %w", title, err)
	}
	chat, err := c.chats.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("no chat available for %q: %w", title, err)
	}
	log := c.log.With(zap.String("chat_id", chat.ID))
	return &Session{
		client: c,
		log:    log,
		chat:   chat,
		pool:   NewPlaceholderPool(c.chats, log),
	}, nil
}

func (c *Client) resolveChatID(ctx context.Context, title string) (string, error) {
	found, err := c.chats.Search(ctx, title)
	if err != nil {
		return "", err
	}

	var best *model.ChatSummary
	for i := range found {
		s := &found[i]
		if s.Title != title {
			continue
		}
		if best == nil || s.UpdatedAt > best.UpdatedAt {
			best = s
		}
	}
	if best != nil {
		c.log.Debug("resolved existing chat", zap.String("title", title), zap.String("chat_id", best.ID))
		return best.ID, nil
	}

	id, err := c.chats.Create(ctx, title)
	if err != nil {
		return "", err
	}
	c.log.Info("created chat", zap.String("title", title), zap.String("chat_id", id))
	return id, nil
}

// State exposes the session's cached chat object. The reference stays valid
// for the session's lifetime; it is mutated in place by turns.
func (s *Session) State() *model.Chat {
	return s.chat
}

// Close garbage-collects placeholder pairs this session created but never
// consumed, so empty messages are not left behind on the server. Safe to
// call more than once.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.pool.ReleaseUnused(ctx, s.chat)
	return err
}
