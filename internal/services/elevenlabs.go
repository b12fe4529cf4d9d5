package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/storyvoice/internal/models"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses the ElevenLabs REST API for both the voice catalog (GET /v1/voices)
// and per-segment synthesis (POST /v1/text-to-speech/{voice_id}).
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_monolingual_v1"
	elevenLabsProvider     = "ElevenLabs"
)

// ElevenLabsService handles text-to-speech and voice listing via ElevenLabs API.
type ElevenLabsService struct {
	apiKey   string
	baseURL  string
	modelID  string
	settings VoiceSettings
	client   *http.Client
}

// Ensure ElevenLabsService implements both provider interfaces at compile time.
var (
	_ TTSService          = (*ElevenLabsService)(nil)
	_ VoiceCatalogService = (*ElevenLabsService)(nil)
)

// ElevenLabsOptions overrides service defaults. Zero values keep the default.
type ElevenLabsOptions struct {
	BaseURL  string
	ModelID  string
	Settings *VoiceSettings
	Client   *http.Client
}

// NewElevenLabsService creates a new ElevenLabs service.
// The HTTP client carries no timeout of its own; callers bound each call with ctx.
func NewElevenLabsService(apiKey string, opts ElevenLabsOptions) *ElevenLabsService {
	s := &ElevenLabsService{
		apiKey:   apiKey,
		baseURL:  elevenLabsBaseURL,
		modelID:  elevenLabsDefaultModel,
		settings: DefaultVoiceSettings(),
		client:   &http.Client{},
	}
	if opts.BaseURL != "" {
		s.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.ModelID != "" {
		s.modelID = opts.ModelID
	}
	if opts.Settings != nil {
		s.settings = *opts.Settings
	}
	if opts.Client != nil {
		s.client = opts.Client
	}
	return s
}

// ---------------------------------------------------------------------------
// Request / response types
// ---------------------------------------------------------------------------

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

type elevenLabsVoicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID string            `json:"voice_id"`
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels"`
}

// GenerateSpeech converts text to speech with the given voice.
// Implements the TTSService interface.
func (s *ElevenLabsService) GenerateSpeech(ctx context.Context, voiceID, text string) (*TTSResponse, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("ElevenLabs voice ID must not be empty")
	}

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       s.settings.Stability,
			SimilarityBoost: s.settings.SimilarityBoost,
			Style:           s.settings.Style,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.baseURL, voiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d)", voiceID, s.modelID, len(text))

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RemoteCallError{
			Provider:   elevenLabsProvider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	// The response body IS the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	log.Printf("[ElevenLabs] Speech generated (%d bytes in %s)", len(audioData), time.Since(start).Round(time.Millisecond))

	return &TTSResponse{
		AudioData: audioData,
		Format:    "mp3",
	}, nil
}

// ListVoices returns every voice available to the configured API key, in the
// order ElevenLabs lists them.
func (s *ElevenLabsService) ListVoices(ctx context.Context) ([]models.VoiceDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RemoteCallError{
			Provider:   elevenLabsProvider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var vr elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("failed to decode ElevenLabs voices: %w", err)
	}

	voices := make([]models.VoiceDescriptor, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		if v.VoiceID == "" {
			continue
		}
		tags := make(map[string]string, len(v.Labels))
		for k, val := range v.Labels {
			tags[strings.ToLower(k)] = val
		}
		voices = append(voices, models.VoiceDescriptor{ID: v.VoiceID, Name: v.Name, Tags: tags})
	}

	return voices, nil
}
