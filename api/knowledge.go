package api

import (
	"context"
	"fmt"

	"chatpilot/model"
)

// Knowledge is the client for the knowledge-base endpoints used to resolve
// collection references.
type Knowledge struct {
	t *Transport
}

// NewKnowledge wraps the transport with the knowledge endpoints.
func NewKnowledge(t *Transport) *Knowledge {
	return &Knowledge{t: t}
}

// List returns every knowledge base visible to the token.
func (k *Knowledge) List(ctx context.Context) ([]model.KnowledgeBase, error) {
	var out []model.KnowledgeBase
	if err := k.t.GetJSON(ctx, "/knowledge/list", &out); err != nil {
		return nil, fmt.Errorf("knowledge list: %w", err)
	}
	return out, nil
}

// Get loads one knowledge base with its member file list.
func (k *Knowledge) Get(ctx context.Context, id string) (*model.KnowledgeDetail, error) {
	var out model.KnowledgeDetail
	if err := k.t.GetJSON(ctx, "/knowledge/"+id, &out); err != nil {
		return nil, fmt.Errorf("knowledge get: %w", err)
	}
	return &out, nil
}
