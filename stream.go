package chatpilot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatpilot/api"
	"chatpilot/model"
)

// StreamChat runs one incremental turn. Deltas are delivered on the returned
// channel as they arrive; in parallel, accumulated content is pushed to the
// server under a pre-reserved placeholder message id so the remote transcript
// tracks the stream in near-real-time. The channel closes when the stream
// ends; a delta with a non-empty Error reports a failed stream.
//
// The setup (placeholder reservation, tree push) happens before this returns;
// setup failures come back as an error with a nil channel.
func (s *Session) StreamChat(ctx context.Context, opts TurnOptions) (<-chan model.StreamDelta, error) {
	if opts.Prompt == "" || opts.Model == "" {
		return nil, fmt.Errorf("turn requires a prompt and a model")
	}

	s.organize(ctx, opts)
	apiRefs, storageRefs := s.resolveRAG(ctx, opts)

	// Build the request before the placeholder user message enters the
	// linearized history.
	messages := s.buildWireMessages(opts)

	pair, err := s.reservePair(ctx)
	if err != nil {
		return nil, err
	}

	// Claim the pair for this turn: fill in the user side and push so the
	// server shows the question while the answer streams.
	now := time.Now().Unix()
	user := s.chat.History.Messages[pair.UserID]
	user.Content = opts.Prompt
	user.Files = storageRefs
	user.Done = true
	user.Timestamp = now
	assistant := s.chat.History.Messages[pair.AssistantID]
	assistant.Model = opts.Model
	assistant.ModelName = opts.Model
	assistant.Timestamp = now
	if err := s.client.chats.Update(ctx, s.chat.ID, s.chat); err != nil {
		s.log.Warn("pre-stream persistence failed", zap.Error(err))
	}

	out := make(chan model.StreamDelta, 16)
	deltas := make(chan model.StreamDelta, 16)
	pusher := newDeltaPusher(s.client.chats, s.chat.ID, pair.AssistantID)

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- s.client.completions.Stream(ctx, api.CompletionRequest{
			Model:    opts.Model,
			Messages: messages,
			Files:    apiRefs,
		}, deltas)
	}()

	go func() {
		defer close(out)
		defer pusher.Close()

		var full strings.Builder
		failed := false
		for delta := range deltas {
			if delta.Error != "" {
				failed = true
			}
			full.WriteString(delta.Content)
			if delta.Content != "" {
				pusher.Push(full.String())
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
		if err := <-streamErr; err != nil {
			s.log.Error("stream failed", zap.String("model", opts.Model), zap.Error(err))
			failed = true
			select {
			case out <- model.StreamDelta{Error: err.Error()}:
			case <-ctx.Done():
				return
			}
		}

		s.finalizeStream(ctx, opts, pair, full.String(), failed)
	}()

	return out, nil
}

// reservePair tops up the pool and claims a placeholder pair, falling back
// to creating a pair on demand when the pool is exhausted.
func (s *Session) reservePair(ctx context.Context) (*PlaceholderPair, error) {
	cfg := s.client.cfg
	if err := s.pool.Ensure(ctx, s.chat, cfg.PlaceholderPoolSize, cfg.PlaceholderMinAvailable); err != nil {
		s.log.Warn("placeholder replenishment failed", zap.Error(err))
	}
	if pair := s.pool.Acquire(s.chat); pair != nil {
		return pair, nil
	}

	// Slow path: synthesize one pair directly.
	s.log.Debug("placeholder pool exhausted, creating pair on demand")
	var parent *string
	if s.chat.History.CurrentID != "" {
		tip := s.chat.History.CurrentID
		parent = &tip
	}
	userID := uuid.NewString()
	assistantID := uuid.NewString()
	now := time.Now().Unix()
	s.chat.History.Add(&model.Message{ID: userID, ParentID: parent, Role: "user", Timestamp: now})
	s.chat.History.Add(&model.Message{ID: assistantID, ParentID: &userID, Role: "assistant", Timestamp: now})
	if err := s.client.chats.Update(ctx, s.chat.ID, s.chat); err != nil {
		return nil, err
	}
	return &PlaceholderPair{UserID: userID, AssistantID: assistantID}, nil
}

// finalizeStream writes the assembled response into the reserved assistant
// message, advances the tip, and pushes the finished tree.
func (s *Session) finalizeStream(ctx context.Context, opts TurnOptions, pair *PlaceholderPair, content string, failed bool) {
	if failed && content == "" {
		// Nothing arrived; leave the tip alone so the empty pair is pruned
		// at teardown rather than becoming the active branch.
		return
	}
	assistant := s.chat.History.Messages[pair.AssistantID]
	assistant.Content = content
	assistant.Done = true
	s.chat.History.CurrentID = pair.AssistantID
	s.touchModels(map[string]string{opts.Model: content})

	if err := s.client.chats.Update(ctx, s.chat.ID, s.chat); err != nil {
		s.log.Warn("stream persistence failed", zap.Error(err))
	}
	s.postProcess(ctx, opts, nil)
}

// deltaPusher mirrors streamed content to the server without ever blocking
// the stream loop. It holds at most one pending snapshot; newer content
// replaces older unsent content, so a slow server only means coarser deltas,
// and push errors are swallowed by contract.
type deltaPusher struct {
	pending chan string
	done    chan struct{}
}

func newDeltaPusher(chats ChatAPI, chatID, messageID string) *deltaPusher {
	p := &deltaPusher{
		pending: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for content := range p.pending {
			// Best-effort: a failed push only delays the server-side view.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = chats.PushDelta(ctx, chatID, messageID, content)
			cancel()
		}
	}()
	return p
}

// Push queues the latest accumulated content, replacing any unsent snapshot.
func (p *deltaPusher) Push(content string) {
	for {
		select {
		case p.pending <- content:
			return
		default:
			select {
			case <-p.pending:
			default:
			}
		}
	}
}

// Close stops the pusher once the pending snapshot, if any, has been sent.
func (p *deltaPusher) Close() {
	close(p.pending)
	<-p.done
}
