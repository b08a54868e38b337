package chatpilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatpilot/internal/apitest"
	"chatpilot/model"
)

func collectStream(t *testing.T, ch <-chan model.StreamDelta) (string, bool, bool) {
	t.Helper()
	var content string
	var done, failed bool
	for delta := range ch {
		content += delta.Content
		if delta.Done {
			done = true
		}
		if delta.Error != "" {
			failed = true
		}
	}
	return content, done, failed
}

func TestSession_StreamChat(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - deltas stream and final tree persists", func(t *testing.T) {
		c, server := newServerClient(t)
		server.StreamChunk = func(req apitest.CompletionBody) ([]string, error) {
			require.NotEmpty(t, req.Messages)
			assert.Equal(t, "tell me a story", req.Messages[len(req.Messages)-1].Content)
			return []string{"Once ", "upon ", "a time"}, nil
		}

		sess, err := c.Session(ctx, "storytime")
		require.NoError(t, err)

		ch, err := sess.StreamChat(ctx, TurnOptions{Prompt: "tell me a story", Model: "llama3"})
		require.NoError(t, err)
		content, done, failed := collectStream(t, ch)

		assert.Equal(t, "Once upon a time", content)
		assert.True(t, done)
		assert.False(t, failed)

		stored := server.Chat(sess.State().ID)
		tip := stored.History.Messages[stored.History.CurrentID]
		require.NotNil(t, tip)
		assert.Equal(t, "assistant", tip.Role)
		assert.Equal(t, "Once upon a time", tip.Content)
		assert.True(t, tip.Done)
		user := stored.History.Messages[*tip.ParentID]
		assert.Equal(t, "tell me a story", user.Content)
	})

	t.Run("Success - deltas pushed under the reserved assistant id", func(t *testing.T) {
		c, server := newServerClient(t)
		server.StreamChunk = func(apitest.CompletionBody) ([]string, error) {
			return []string{"chunk one, ", "chunk two"}, nil
		}

		sess, err := c.Session(ctx, "delta pushes")
		require.NoError(t, err)
		ch, err := sess.StreamChat(ctx, TurnOptions{Prompt: "go", Model: "m"})
		require.NoError(t, err)
		collectStream(t, ch)

		deltas := server.Deltas()
		require.NotEmpty(t, deltas)
		assistantID := sess.State().History.CurrentID
		for _, d := range deltas {
			assert.Equal(t, sess.State().ID, d.ChatID)
			assert.Equal(t, assistantID, d.MessageID)
		}
		// Pushes carry accumulated content; the last one seen is a prefix of
		// or equal to the full response.
		last := deltas[len(deltas)-1]
		assert.Contains(t, "chunk one, chunk two", last.Content)
	})

	t.Run("Success - placeholder pair consumed from the pool", func(t *testing.T) {
		c, server := newServerClient(t)
		server.StreamChunk = func(apitest.CompletionBody) ([]string, error) {
			return []string{"x"}, nil
		}

		sess, err := c.Session(ctx, "pool use")
		require.NoError(t, err)
		ch, err := sess.StreamChat(ctx, TurnOptions{Prompt: "q", Model: "m"})
		require.NoError(t, err)
		collectStream(t, ch)

		// Ensure created PlaceholderPoolSize pairs, one was consumed.
		available := sess.pool.Available(sess.State())
		assert.Equal(t, c.cfg.PlaceholderPoolSize-1, available)

		// Close prunes the leftovers from the server-side tree.
		require.NoError(t, sess.Close(ctx))
		stored := server.Chat(sess.State().ID)
		assert.Len(t, stored.History.Messages, 2)
	})

	t.Run("Success - stream failure reported, tip not advanced", func(t *testing.T) {
		c, server := newServerClient(t)
		server.StreamChunk = func(apitest.CompletionBody) ([]string, error) {
			return nil, errors.New("model crashed")
		}

		sess, err := c.Session(ctx, "crash")
		require.NoError(t, err)
		ch, err := sess.StreamChat(ctx, TurnOptions{Prompt: "q", Model: "m"})
		require.NoError(t, err)
		content, _, failed := collectStream(t, ch)

		assert.Empty(t, content)
		assert.True(t, failed)
		assert.Empty(t, sess.State().History.CurrentID)
	})

	t.Run("Failure - missing arguments", func(t *testing.T) {
		c, _ := newServerClient(t)
		sess, err := c.Session(ctx, "args")
		require.NoError(t, err)

		_, err = sess.StreamChat(ctx, TurnOptions{Model: "m"})
		assert.Error(t, err)
	})
}

func TestDeltaPusher(t *testing.T) {
	t.Run("Success - never blocks and always delivers the latest", func(t *testing.T) {
		chats := &mockChats{}
		var last string
		unblock := make(chan struct{})
		chats.On("PushDelta", mock.Anything, "c1", "m1", mock.Anything).
			Run(func(args mock.Arguments) {
				last = args.String(3)
				select {
				case <-unblock:
				case <-time.After(50 * time.Millisecond):
				}
			}).
			Return(nil)

		p := newDeltaPusher(chats, "c1", "m1")
		// Flood with snapshots; Push must never block even while the
		// in-flight push is slow.
		for i := 0; i < 100; i++ {
			p.Push("snapshot")
		}
		p.Push("final")
		close(unblock)
		p.Close()

		assert.Equal(t, "final", last)
	})

	t.Run("Success - push errors are swallowed", func(t *testing.T) {
		chats := &mockChats{}
		chats.On("PushDelta", mock.Anything, "c1", "m1", mock.Anything).Return(errors.New("410 gone"))

		p := newDeltaPusher(chats, "c1", "m1")
		p.Push("content")
		p.Close() // must not panic or hang
	})
}
