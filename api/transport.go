// Package api implements the HTTP clients for the remote chat service's
// JSON/REST endpoints: chats, completions, file upload, knowledge bases, and
// the task-model config.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Transport is the shared request/JSON-decode wrapper all endpoint clients
// sit on. It owns the base URL, the bearer token, and one http.Client with
// the operation-local request timeout.
type Transport struct {
	base   string
	token  string
	client *http.Client
	log    *zap.Logger
}

// NewTransport builds a Transport for the given service root. A zero timeout
// means no client-side deadline; streaming callers pass their own longer one
// via NewStreamClient.
func NewTransport(baseURL, token string, timeout time.Duration, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		base:   baseURL,
		token:  token,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// GetJSON issues a GET and decodes the 2xx body into out.
func (t *Transport) GetJSON(ctx context.Context, path string, out any) error {
	return t.roundTrip(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the 2xx response into
// out. A nil out discards the body.
func (t *Transport) PostJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	return t.roundTrip(ctx, http.MethodPost, path, body, out)
}

func (t *Transport) roundTrip(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformed, method, path, err)
	}
	return nil
}

// newRequest builds an authorized request against the service root for
// callers that need to manage the response themselves (streaming, multipart).
func (t *Transport) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	t.authorize(req)
	return req, nil
}

func (t *Transport) authorize(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

// decodeJSON decodes a 2xx body, mapping decode failures to ErrMalformed.
func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// checkStatus maps non-2xx responses to the package sentinels. The body is
// folded into the error for logging; it is small for error responses.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, string(raw))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, resp.StatusCode, string(raw))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, string(raw))
	}
}
