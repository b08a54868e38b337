package api

import (
	"context"
	"fmt"
)

// TaskConfig is the client for the server's task-model configuration.
type TaskConfig struct {
	t *Transport
}

// NewTaskConfig wraps the transport with the task config endpoint.
func NewTaskConfig(t *Transport) *TaskConfig {
	return &TaskConfig{t: t}
}

type taskConfigResponse struct {
	TaskModel string `json:"task_model"`
}

// TaskModel returns the id of the model the server designates for auxiliary
// completions (tags, titles, follow-ups). An empty string means the feature
// is not configured server-side.
func (c *TaskConfig) TaskModel(ctx context.Context) (string, error) {
	var out taskConfigResponse
	if err := c.t.GetJSON(ctx, "/tasks/config", &out); err != nil {
		return "", fmt.Errorf("task config: %w", err)
	}
	return out.TaskModel, nil
}
