package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com/"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 4096
)

// AnthropicService generates text with the Anthropic Messages API.
type AnthropicService struct {
	messages anthropic.MessageService
	model    string
}

var _ TextGenerator = (*AnthropicService)(nil)

func NewAnthropicService(apiKey, model, baseURL string) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithAPIKey(apiKey),
	}

	return &AnthropicService{
		messages: anthropic.NewMessageService(opts...),
		model:    model,
	}, nil
}

// Generate sends prompt as a single user message and joins the text blocks of the reply.
func (s *AnthropicService) Generate(ctx context.Context, prompt string) (string, error) {
	log.Printf("[Anthropic] Generating content (model=%s, promptLen=%d)", s.model, len(prompt))

	message, err := s.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in anthropic response")
	}
	return sb.String(), nil
}
