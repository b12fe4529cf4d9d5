package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAIService struct {
	client *openai.Client
	model  string
}

var _ TextGenerator = (*OpenAIService)(nil)

// NewOpenAIService creates an OpenAI-backed text generator. baseURL may point
// at any OpenAI-compatible endpoint; empty uses the public API.
func NewOpenAIService(apiKey, model, baseURL string) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate runs a single user-turn chat completion.
// No JSON response format is requested: the extractor handles whatever comes back.
func (s *OpenAIService) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Printf("[OpenAI] Completion received (model=%s, %d chars, finish=%s)",
		s.model, len(content), resp.Choices[0].FinishReason)

	return content, nil
}
