package chatpilot

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"chatpilot/api"
	"chatpilot/model"
)

const (
	tagsPrompt = "Analyze the conversation above and generate 1-5 short topic tags. " +
		"Respond with a JSON array of strings and nothing else, e.g. [\"tag1\", \"tag2\"]."
	titlePrompt = "Summarize the conversation above into a concise title of at most 6 words. " +
		"Respond with JSON: {\"title\": \"...\"} and nothing else."
	followUpsPrompt = "Suggest up to 3 natural follow-up questions the user might ask next. " +
		"Respond with a JSON array of strings and nothing else."
)

// TaskEngine derives auxiliary chat metadata (tags, title, follow-ups) by
// round-tripping the turn's history through the server's task model. Model
// output is untrusted text; parsing is tolerant by design and every method
// degrades to its zero result instead of failing.
type TaskEngine struct {
	completions CompletionAPI
	model       string
	log         *zap.Logger
}

// NewTaskEngine builds an engine bound to the given task model id.
func NewTaskEngine(completions CompletionAPI, taskModel string, log *zap.Logger) *TaskEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskEngine{completions: completions, model: taskModel, log: log}
}

// Tags derives topic tags for the conversation, nil when unavailable.
func (e *TaskEngine) Tags(ctx context.Context, messages []model.WireMessage) []string {
	raw, ok := e.complete(ctx, messages, tagsPrompt)
	if !ok {
		return nil
	}
	return parseStringList(raw, "tags", parseCommaFallback)
}

// Title derives a short title, empty when unavailable.
func (e *TaskEngine) Title(ctx context.Context, messages []model.WireMessage) string {
	raw, ok := e.complete(ctx, messages, titlePrompt)
	if !ok {
		return ""
	}
	return parseTitle(raw)
}

// FollowUps derives suggested follow-up questions, nil when unavailable.
func (e *TaskEngine) FollowUps(ctx context.Context, messages []model.WireMessage) []string {
	raw, ok := e.complete(ctx, messages, followUpsPrompt)
	if !ok {
		return nil
	}
	return parseStringList(raw, "follow_ups", parseLinesFallback)
}

func (e *TaskEngine) complete(ctx context.Context, messages []model.WireMessage, instruction string) (string, bool) {
	req := api.CompletionRequest{
		Model:    e.model,
		Messages: append(append([]model.WireMessage{}, messages...), model.WireMessage{Role: "user", Content: instruction}),
	}
	content, err := e.completions.Complete(ctx, req)
	if err != nil {
		e.log.Warn("task completion failed", zap.String("model", e.model), zap.Error(err))
		return "", false
	}
	return content, true
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// extractJSON pulls the most plausible JSON payload out of raw model output:
// the content as-is, then a ```json fence, then any fence, then the first
// {...} or [...] substring. The second return reports whether anything
// JSON-shaped was found and decoded.
func extractJSON(raw string, out any) bool {
	candidates := []string{strings.TrimSpace(raw)}
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := fencedAnyRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if sub := firstJSONSubstring(raw); sub != "" {
		candidates = append(candidates, sub)
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c), out); err == nil {
			return true
		}
	}
	return false
}

// firstJSONSubstring returns the first balanced {...} or [...] span in s.
func firstJSONSubstring(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// parseStringList decodes a JSON string array, accepting a wrapping object
// keyed by key, and falling back to the given plain-text heuristic. A nil
// result means nothing usable was found.
func parseStringList(raw, key string, fallback func(string) []string) []string {
	var list []string
	if extractJSON(raw, &list) {
		return cleanStrings(list)
	}
	var wrapped map[string]json.RawMessage
	if extractJSON(raw, &wrapped) {
		if inner, ok := wrapped[key]; ok {
			if err := json.Unmarshal(inner, &list); err == nil {
				return cleanStrings(list)
			}
		}
	}
	return cleanStrings(fallback(raw))
}

func parseTitle(raw string) string {
	var wrapped struct {
		Title string `json:"title"`
	}
	if extractJSON(raw, &wrapped) && wrapped.Title != "" {
		return strings.TrimSpace(wrapped.Title)
	}
	var plain string
	if extractJSON(raw, &plain) && plain != "" {
		return strings.TrimSpace(plain)
	}
	// Plain-text heuristic: first non-empty line, stripped of quoting.
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		if line != "" {
			return line
		}
	}
	return ""
}

// parseCommaFallback splits "a, b, c" style plain text into items. Text
// without a single comma is not a tag list; it yields nothing rather than
// one garbage tag.
func parseCommaFallback(raw string) []string {
	line := ""
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}
	if !strings.Contains(line, ",") {
		return nil
	}
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// parseLinesFallback treats each non-empty line as one item, dropping list
// markers.
func parseLinesFallback(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.Trim(strings.TrimSpace(s), "\"'")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
