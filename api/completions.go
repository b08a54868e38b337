package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatpilot/model"
)

// CompletionRequest is the body of POST /chat/completions. The same endpoint
// answers user-facing questions and task-model auxiliary completions.
type CompletionRequest struct {
	Model    string              `json:"model"`
	Messages []model.WireMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Files    []model.APIFileRef  `json:"files,omitempty"`
}

type completionChoice struct {
	Message model.WireMessage `json:"message"`
	Delta   model.WireMessage `json:"delta"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
}

// Completions is the client for the completion endpoint. Streaming requests
// use their own http.Client so the stream timeout can exceed the regular
// request timeout.
type Completions struct {
	t      *Transport
	stream *http.Client
}

// NewCompletions wraps the transport with the completion endpoint.
// streamTimeout bounds one whole streamed response.
func NewCompletions(t *Transport, streamTimeout time.Duration) *Completions {
	return &Completions{
		t:      t,
		stream: &http.Client{Timeout: streamTimeout},
	}
}

// Complete runs one non-streaming completion and returns the content of the
// first choice.
func (c *Completions) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	req.Stream = false
	var out completionResponse
	if err := c.t.PostJSON(ctx, "/chat/completions", req, &out); err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", ErrMalformed)
	}
	return out.Choices[0].Message.Content, nil
}

// Stream runs a streaming completion, sending each content delta to ch. The
// channel is closed when the stream ends, whatever the reason. Chunks arrive
// as SSE "data:" lines carrying the usual delta shape, terminated by [DONE].
func (c *Completions) Stream(ctx context.Context, req CompletionRequest, ch chan<- model.StreamDelta) error {
	defer close(ch)

	req.Stream = true
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}
	httpReq, err := c.t.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			select {
			case ch <- model.StreamDelta{Done: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}

		var chunk completionResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			select {
			case ch <- model.StreamDelta{Error: "failed to decode stream chunk"}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := model.StreamDelta{Content: chunk.Choices[0].Delta.Content}
		select {
		case ch <- delta:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	// Stream ended without a [DONE] marker; report completion anyway so the
	// consumer loop terminates.
	select {
	case ch <- model.StreamDelta{Done: true}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
