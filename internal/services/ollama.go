package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3.2"

// OllamaService generates text with a local Ollama server. The host comes
// from OLLAMA_HOST, as read by the Ollama client itself.
type OllamaService struct {
	client *api.Client
	model  string
}

var _ TextGenerator = (*OllamaService)(nil)

func NewOllamaService(model string) (*OllamaService, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaService{client: client, model: model}, nil
}

func (s *OllamaService) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  s.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var sb strings.Builder
	err := s.client.Generate(ctx, req, func(g api.GenerateResponse) error {
		sb.WriteString(g.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}

	text := strings.TrimSpace(sb.String())
	log.Printf("[Ollama] Response received (model=%s, %d chars)", s.model, len(text))

	return text, nil
}
