package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainRuntime adapts a langchaingo OpenAI-compatible model to Runtime.
type LangChainRuntime struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLangChainRuntime builds the adapter; the underlying model is created per call
// so the request's model can override the default.
func NewLangChainRuntime(apiKey, baseURL, model string, httpTimeout time.Duration) *LangChainRuntime {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &LangChainRuntime{
		apiKey:     strings.TrimPrefix(apiKey, "Bearer "),
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

func (r *LangChainRuntime) llm(model string) (*openai.LLM, error) {
	if r.apiKey == "" {
		return nil, &AuthError{APIError: &APIError{StatusCode: http.StatusUnauthorized, Message: "API key is missing"}}
	}
	if model == "" {
		model = r.model
	}
	if model == "" {
		return nil, errors.New("model cannot be empty")
	}
	llm, err := openai.New(
		openai.WithBaseURL(r.baseURL),
		openai.WithToken(r.apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(r.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("init langchain model: %w", err)
	}
	return llm, nil
}

func toMessageContent(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func callOpts(req GenerateRequest) []llms.CallOption {
	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	return opts
}

// Generate implements Runtime.
func (r *LangChainRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	llm, err := r.llm(req.Model)
	if err != nil {
		return nil, err
	}
	resp, err := llm.GenerateContent(ctx, toMessageContent(req.Messages), callOpts(req)...)
	if err != nil {
		return nil, classifyLangChainError(err, r.baseURL)
	}
	out := &GenerateResponse{Model: req.Model}
	for _, ch := range resp.Choices {
		if ch == nil {
			continue
		}
		out.Choices = append(out.Choices, Choice{
			Message:      Message{Role: "assistant", Content: ch.Content},
			FinishReason: ch.StopReason,
		})
		if len(out.Choices) == 1 {
			out.Usage = usageFromInfo(ch.GenerationInfo)
		}
	}
	return out, nil
}

// GenerateStream implements StreamRuntime.
func (r *LangChainRuntime) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	llm, err := r.llm(req.Model)
	if err != nil {
		return err
	}
	opts := append(callOpts(req), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		onDelta(string(chunk))
		return nil
	}))
	if _, err := llm.GenerateContent(ctx, toMessageContent(req.Messages), opts...); err != nil {
		return classifyLangChainError(err, r.baseURL)
	}
	return nil
}

func usageFromInfo(info map[string]any) Usage {
	get := func(k string) int {
		switch v := info[k].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
		return 0
	}
	return Usage{PromptTokens: get("PromptTokens"), CompletionTokens: get("CompletionTokens"), TotalTokens: get("TotalTokens")}
}

var statusRe = regexp.MustCompile(`status code:? (\d{3})`)

// classifyLangChainError recovers the HTTP status from langchaingo's error text
// and maps it onto the shared taxonomy.
func classifyLangChainError(err error, host string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	m := statusRe.FindStringSubmatch(err.Error())
	if m == nil {
		if isRetryableNetErr(err) || containsAnyFold(err.Error(), "no such host", "connection refused", "dial tcp") {
			return &UnreachableError{Host: host, Err: err}
		}
		return err
	}
	sc, _ := strconv.Atoi(m[1])
	return classifyAPIError(&APIError{StatusCode: sc, Message: err.Error()}, nil)
}
