package services

import (
	"context"
	"fmt"
)

// TextGenerator is a synchronous prompt -> text call to a generative model.
// The returned text is not guaranteed to follow any requested format.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLM provider names accepted by NewTextGenerator.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// TextGeneratorConfig carries the settings for every supported provider; only
// the selected provider's fields are read.
type TextGeneratorConfig struct {
	Provider string

	GeminiKey   string
	GeminiModel string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	OllamaModel string

	AnthropicKey     string
	AnthropicModel   string
	AnthropicBaseURL string
}

// NewTextGenerator creates the text generator for cfg.Provider.
func NewTextGenerator(ctx context.Context, cfg TextGeneratorConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiService(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case ProviderOpenAI:
		return NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case ProviderOllama:
		return NewOllamaService(cfg.OllamaModel)
	case ProviderAnthropic:
		return NewAnthropicService(cfg.AnthropicKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

