package chatpilot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatpilot/config"
	"chatpilot/internal/apitest"
	"chatpilot/model"
)

// newTestClient builds a Client against a stub URL with a silent logger;
// tests replace individual collaborators with mocks as needed.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(config.Default("http://stub.invalid"))
	require.NoError(t, err)
	c.log = zap.NewNop()
	return c
}

// newServerClient builds a Client wired to a fresh fake remote service.
func newServerClient(t *testing.T) (*Client, *apitest.Server) {
	t.Helper()
	server := apitest.New()
	t.Cleanup(server.Close)
	cfg := config.Default(server.URL)
	cfg.LogLevel = "error"
	c, err := New(cfg)
	require.NoError(t, err)
	return c, server
}

func TestClient_Session_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - most recently updated duplicate wins", func(t *testing.T) {
		c, server := newServerClient(t)
		server.SeedChat(&model.Chat{ID: "older", Title: "X", UpdatedAt: 1000})
		server.SeedChat(&model.Chat{ID: "newer", Title: "X", UpdatedAt: 2000})

		sess, err := c.Session(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, "newer", sess.State().ID)
	})

	t.Run("Success - exact title match only", func(t *testing.T) {
		c, server := newServerClient(t)
		server.SeedChat(&model.Chat{ID: "c1", Title: "X"})

		sess, err := c.Session(ctx, "x")
		require.NoError(t, err)
		// No exact match for "x": a new chat is created.
		assert.NotEqual(t, "c1", sess.State().ID)
		assert.Equal(t, "x", sess.State().Title)
	})

	t.Run("Success - creates chat when absent", func(t *testing.T) {
		c, server := newServerClient(t)

		sess, err := c.Session(ctx, "brand new")
		require.NoError(t, err)
		assert.Equal(t, "brand new", sess.State().Title)
		assert.NotNil(t, server.Chat(sess.State().ID))
	})

	t.Run("Failure - search failure aborts resolve", func(t *testing.T) {
		c, server := newServerClient(t)
		server.FailSearch = true

		_, err := c.Session(ctx, "X")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no chat available")
	})
}

func TestSession_Chat(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - full turn persists tree and returns content", func(t *testing.T) {
		c, server := newServerClient(t)
		server.Complete = func(req apitest.CompletionBody) (string, error) {
			// The request carries the linear history plus the new question,
			// role/content only.
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "what is a channel?", req.Messages[0].Content)
			return "a typed conduit", nil
		}

		sess, err := c.Session(ctx, "go questions")
		require.NoError(t, err)

		result, err := sess.Chat(ctx, TurnOptions{Prompt: "what is a channel?", Model: "llama3"})
		require.NoError(t, err)
		assert.Equal(t, "a typed conduit", result.Content)
		assert.Equal(t, "llama3", result.Model)

		stored := server.Chat(sess.State().ID)
		require.NotNil(t, stored)
		require.Len(t, stored.History.Messages, 2)
		tip := stored.History.Messages[stored.History.CurrentID]
		require.NotNil(t, tip)
		assert.Equal(t, "assistant", tip.Role)
		assert.Equal(t, "a typed conduit", tip.Content)
		assert.Equal(t, "llama3", tip.Model)
		require.NotNil(t, tip.ParentID)
		user := stored.History.Messages[*tip.ParentID]
		assert.Equal(t, "what is a channel?", user.Content)
		assert.Contains(t, stored.Models, "llama3")
	})

	t.Run("Success - second turn carries prior history", func(t *testing.T) {
		c, server := newServerClient(t)
		var lastLen int
		server.Complete = func(req apitest.CompletionBody) (string, error) {
			lastLen = len(req.Messages)
			return "answer", nil
		}

		sess, err := c.Session(ctx, "history")
		require.NoError(t, err)
		_, err = sess.Chat(ctx, TurnOptions{Prompt: "one", Model: "m"})
		require.NoError(t, err)
		_, err = sess.Chat(ctx, TurnOptions{Prompt: "two", Model: "m"})
		require.NoError(t, err)

		// Second request: first turn's user+assistant plus the new question.
		assert.Equal(t, 3, lastLen)
		assert.Len(t, server.Chat(sess.State().ID).History.Messages, 4)
	})

	t.Run("Success - organize applies tags and folder best-effort", func(t *testing.T) {
		c, server := newServerClient(t)
		server.Complete = func(apitest.CompletionBody) (string, error) { return "ok", nil }

		sess, err := c.Session(ctx, "organized")
		require.NoError(t, err)
		_, err = sess.Chat(ctx, TurnOptions{
			Prompt: "q", Model: "m",
			Tags: []string{"infra", "go"}, FolderID: "folder-1",
		})
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"infra", "go"}, server.Tags(sess.State().ID))
		assert.Equal(t, "folder-1", server.Folder(sess.State().ID))

		// Re-applying the same tags is idempotent.
		_, err = sess.Chat(ctx, TurnOptions{Prompt: "q2", Model: "m", Tags: []string{"go"}})
		require.NoError(t, err)
		assert.Len(t, server.Tags(sess.State().ID), 2)
	})

	t.Run("Success - RAG references attached to the completion call", func(t *testing.T) {
		c, server := newServerClient(t)
		server.SeedKnowledge(model.KnowledgeDetail{
			ID: "kb1", Name: "Docs",
			Files: []model.KnowledgeFile{{ID: "f9"}},
		})
		var captured []model.APIFileRef
		server.Complete = func(req apitest.CompletionBody) (string, error) {
			captured = req.Files
			return "grounded answer", nil
		}

		sess, err := c.Session(ctx, "rag")
		require.NoError(t, err)
		_, err = sess.Chat(ctx, TurnOptions{Prompt: "q", Model: "m", RAGCollections: []string{"Docs"}})
		require.NoError(t, err)

		require.Len(t, captured, 1)
		assert.Equal(t, "collection", captured[0].Type)
		assert.Equal(t, []string{"f9"}, captured[0].Data.FileIDs)
	})

	t.Run("Success - post-processing derives title and tags", func(t *testing.T) {
		c, server := newServerClient(t)
		server.TaskModel = "mini"
		server.Complete = func(req apitest.CompletionBody) (string, error) {
			if req.Model == "mini" {
				instruction := req.Messages[len(req.Messages)-1].Content
				if strings.Contains(instruction, "title") {
					return `{"title": "Channel Basics"}`, nil
				}
				return `["go", "channels"]`, nil
			}
			return "main answer", nil
		}

		sess, err := c.Session(ctx, "untitled")
		require.NoError(t, err)
		result, err := sess.Chat(ctx, TurnOptions{
			Prompt: "q", Model: "big",
			AutoTitle: true, AutoTags: true, FollowUps: true,
		})
		require.NoError(t, err)

		assert.Equal(t, "Channel Basics", server.Chat(sess.State().ID).Title)
		assert.ElementsMatch(t, []string{"go", "channels"}, server.Tags(sess.State().ID))
		assert.Equal(t, []string{"go", "channels"}, result.FollowUps)
	})

	t.Run("Failure - completion failure returns nil result", func(t *testing.T) {
		c, server := newServerClient(t)
		server.Complete = nil // endpoint answers 500

		sess, err := c.Session(ctx, "failing")
		require.NoError(t, err)
		result, err := sess.Chat(ctx, TurnOptions{Prompt: "q", Model: "m"})
		assert.Error(t, err)
		assert.Nil(t, result)
		// Nothing was persisted.
		assert.Empty(t, server.Chat(sess.State().ID).History.Messages)
	})

	t.Run("Failure - missing prompt or model", func(t *testing.T) {
		c, _ := newServerClient(t)
		sess, err := c.Session(ctx, "args")
		require.NoError(t, err)

		_, err = sess.Chat(ctx, TurnOptions{Model: "m"})
		assert.Error(t, err)
		_, err = sess.Chat(ctx, TurnOptions{Prompt: "q"})
		assert.Error(t, err)
	})
}
