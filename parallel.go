package chatpilot

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatpilot/api"
	"chatpilot/model"
)

// ModelAnswer is one model's contribution to a parallel turn.
type ModelAnswer struct {
	Content string
	Model   string
}

// ParallelChat fans the question out to every model concurrently and
// aggregates the answers keyed by model id. It waits for all dispatches;
// models that fail are omitted rather than retried. The turn fails only when
// zero models succeed. The first requested model that succeeded becomes the
// active branch tip.
func (s *Session) ParallelChat(ctx context.Context, opts TurnOptions, models []string) (map[string]*ModelAnswer, error) {
	if opts.Prompt == "" || len(models) == 0 {
		return nil, fmt.Errorf("parallel turn requires a prompt and at least one model")
	}

	s.organize(ctx, opts)
	apiRefs, storageRefs := s.resolveRAG(ctx, opts)
	messages := s.buildWireMessages(opts)

	answers := dispatchParallel(ctx, s.client.completions, s.log, models, messages, apiRefs)
	if len(answers) == 0 {
		return nil, fmt.Errorf("no model answered")
	}

	contents := make(map[string]string, len(answers))
	for m, a := range answers {
		contents[m] = a.Content
	}
	tipModel := ""
	for _, m := range models {
		if _, ok := answers[m]; ok {
			tipModel = m
			break
		}
	}
	s.persistTurn(ctx, opts, storageRefs, contents, tipModel)
	s.postProcess(ctx, opts, nil)

	return answers, nil
}

// dispatchParallel runs one completion per model on a bounded worker pool
// sized to the request, waiting for all workers before returning the
// successful answers. Each worker carries its own copy of the request.
func dispatchParallel(
	ctx context.Context,
	completions CompletionAPI,
	log *zap.Logger,
	models []string,
	messages []model.WireMessage,
	refs []model.APIFileRef,
) map[string]*ModelAnswer {
	var (
		mu      sync.Mutex
		answers = make(map[string]*ModelAnswer)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(models))
	for _, m := range models {
		g.Go(func() error {
			req := api.CompletionRequest{
				Model:    m,
				Messages: append([]model.WireMessage(nil), messages...),
				Files:    refs,
			}
			content, err := completions.Complete(gctx, req)
			if err != nil {
				// A failed model is dropped from the aggregate; returning an
				// error here would cancel the siblings.
				log.Warn("parallel dispatch: model failed", zap.String("model", m), zap.Error(err))
				return nil
			}
			mu.Lock()
			answers[m] = &ModelAnswer{Content: content, Model: m}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return answers
}
