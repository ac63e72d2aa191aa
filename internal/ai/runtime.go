package ai

import "context"

// Runtime is the minimal interface implemented by chat backends such as
// OpenRouter, OpenAI, a local Ollama or the langchaingo adapter.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used for runtime selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderLangChain  = "langchain"
)

// StreamRuntime is an optional extension that supports streaming output.
// Implementors invoke onDelta with each partial content chunk.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

// DefaultModel returns the model used when none is configured for provider.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI, ProviderLangChain:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.1:8b-instruct"
	default:
		return "openai/gpt-4o-mini"
	}
}

// NeedsAPIKey reports whether provider requires a hosted API key.
func NeedsAPIKey(provider string) bool { return provider != ProviderOllama }
