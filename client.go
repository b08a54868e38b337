// Package chatpilot is a stateful client for a remote chat service's
// JSON/REST API. A Client is cheap, long-lived, and safe for concurrent use;
// each conversation runs inside a Session, which owns all per-conversation
// mutable state and handles one logical turn at a time.
package chatpilot

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatpilot/api"
	"chatpilot/config"
	"chatpilot/logging"
)

// Client composes the endpoint clients and the session engine configuration.
type Client struct {
	cfg *config.Config
	log *zap.Logger

	chats       ChatAPI
	completions CompletionAPI
	files       FileAPI
	knowledge   KnowledgeAPI
	taskConfig  TaskConfigAPI

	// Task model discovery happens once per Client lifetime; a lookup
	// failure caches the "unavailable" result rather than retrying.
	taskMu      sync.Mutex
	taskFetched bool
	taskModel   string
}

// New validates cfg and builds a Client wired to the remote service.
func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel)
	transport := api.NewTransport(cfg.BaseURL, cfg.Token, cfg.RequestTimeout, log)

	return &Client{
		cfg:         cfg,
		log:         log,
		chats:       api.NewChats(transport),
		completions: api.NewCompletions(transport, cfg.StreamTimeout),
		files:       api.NewFiles(transport),
		knowledge:   api.NewKnowledge(transport),
		taskConfig:  api.NewTaskConfig(transport),
	}, nil
}

// resolveTaskModel returns the cached task model id, fetching it on first
// use. Empty means auxiliary derivation is unavailable, which is a valid
// state, not an error.
func (c *Client) resolveTaskModel(ctx context.Context) string {
	if !c.cfg.TaskModelEnabled {
		return ""
	}
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	if c.taskFetched {
		return c.taskModel
	}
	c.taskFetched = true
	m, err := c.taskConfig.TaskModel(ctx)
	if err != nil {
		c.log.Warn("task model lookup failed, auxiliary derivation disabled", zap.Error(err))
		return ""
	}
	c.taskModel = m
	return m
}

// TaskEngine returns the auxiliary completion engine, or nil when no task
// model is available. Callers treat nil as "feature unavailable".
func (c *Client) TaskEngine(ctx context.Context) *TaskEngine {
	m := c.resolveTaskModel(ctx)
	if m == "" {
		return nil
	}
	return NewTaskEngine(c.completions, m, c.log)
}
