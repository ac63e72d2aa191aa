package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/KaramelBytes/insightcopilot/internal/utils"
)

// DefaultRequestTimeout bounds a single completion call including retries.
const DefaultRequestTimeout = 120 * time.Second

type callOptions struct {
	temperature float64
	maxTokens   int
	timeout     time.Duration
	onDelta     func(string)
}

// CallOption tunes one Complete call.
type CallOption func(*callOptions)

func WithTemperature(t float64) CallOption { return func(o *callOptions) { o.temperature = t } }
func WithMaxTokens(n int) CallOption { return func(o *callOptions) { o.maxTokens = n } }

// WithTimeout overrides DefaultRequestTimeout; values <= 0 are ignored.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithStream streams partial output to onDelta when the runtime supports it.
func WithStream(onDelta func(string)) CallOption { return func(o *callOptions) { o.onDelta = onDelta } }

// Complete sends one system+user exchange and returns the first choice's text.
// Every failure is returned as *LLMError; an empty or choiceless response is a
// *MalformedResponseError underneath.
func Complete(ctx context.Context, rt Runtime, system, user, model string, opts ...CallOption) (string, error) {
	o := callOptions{timeout: DefaultRequestTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	wrap := func(err error) error { return &LLMError{Op: "complete", Model: model, Err: err} }
	if rt == nil {
		return "", wrap(errors.New("no runtime configured"))
	}

	// Fit the prompt into the model's window, leaving room for the answer.
	if mi, ok := LookupModel(model); ok && mi.ContextTokens > 0 {
		budget := mi.ContextTokens - utils.CountTokens(system) - o.maxTokens
		if budget > 0 && utils.CountTokens(user) > budget {
			user = utils.TruncateToTokenLimit(user, budget)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := GenerateRequest{
		Model:       model,
		Messages:    buildMessages(system, user),
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}

	if sr, ok := rt.(StreamRuntime); ok && o.onDelta != nil {
		var sb strings.Builder
		err := sr.GenerateStream(ctx, req, func(d string) {
			sb.WriteString(d)
			o.onDelta(d)
		})
		if err != nil {
			return "", wrap(err)
		}
		if strings.TrimSpace(sb.String()) == "" {
			return "", wrap(&MalformedResponseError{Reason: "empty content"})
		}
		return sb.String(), nil
	}

	resp, err := rt.Generate(ctx, req)
	if err != nil {
		return "", wrap(err)
	}
	text, err := FirstContent(resp)
	if err != nil {
		return "", wrap(err)
	}
	return text, nil
}

// FirstContent validates a response and extracts its first message content.
func FirstContent(resp *GenerateResponse) (string, error) {
	if resp == nil {
		return "", &MalformedResponseError{Reason: "nil response"}
	}
	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices"}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Reason: "empty content"}
	}
	return text, nil
}

func buildMessages(system, user string) []Message {
	var msgs []Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	return append(msgs, Message{Role: "user", Content: user})
}
