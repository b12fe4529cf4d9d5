package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiService generates text with the Google Gen AI SDK.
type GeminiService struct {
	client *genai.Client
	model  string
}

var _ TextGenerator = (*GeminiService)(nil)

// NewGeminiService creates a Gemini text generator.
// model: the Gemini model to use (empty string defaults to gemini-2.0-flash)
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiService{
		client: client,
		model:  model,
	}, nil
}

// Generate sends a single-turn prompt and returns the concatenated text parts
// of the first candidate.
func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	log.Printf("[Gemini] Generating content (model=%s, promptLen=%d)", s.model, len(prompt))

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in gemini response")
	}

	text := strings.TrimSpace(resp.Text())
	log.Printf("[Gemini] Response received (%d chars)", len(text))

	return text, nil
}
