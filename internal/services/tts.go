package services

import (
	"context"
	"fmt"

	"github.com/bobarin/storyvoice/internal/models"
)

// ---------------------------------------------------------------------------
// TTSService is the common interface for text-to-speech providers.
// The pipeline only needs "speak this text in this voice" and the catalog of
// voices to choose from, so both are expressed as small interfaces here.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData []byte
	Format    string // "mp3", "wav", etc.
}

// VoiceSettings are the fixed synthesis parameters applied to every segment.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
}

// DefaultVoiceSettings returns {stability: 0.5, similarity_boost: 0.5, style: 0}.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.5, Style: 0}
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text to audio using the given voice.
	GenerateSpeech(ctx context.Context, voiceID, text string) (*TTSResponse, error)
}

// VoiceCatalogService lists the voices a TTS provider offers.
type VoiceCatalogService interface {
	ListVoices(ctx context.Context) ([]models.VoiceDescriptor, error)
}

// RemoteCallError is returned when a provider answers with a non-success status.
// Body carries the provider's response text unchanged.
type RemoteCallError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}
