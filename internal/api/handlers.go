package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/pipeline"
	"github.com/bobarin/storyvoice/internal/queue"
)

// AudioGenerator produces narrated audio for a passage.
type AudioGenerator interface {
	Run(ctx context.Context, text string) (*pipeline.Result, error)
}

// VoiceLister exposes the current voice catalog.
type VoiceLister interface {
	Voices() []models.VoiceDescriptor
}

type Handler struct {
	generator     AudioGenerator
	voices        VoiceLister
	maxTextLength int

	// Async renders; nil when disabled
	renders RenderStore
	queue   RenderQueue
	storage DownloadSigner
}

func NewHandler(generator AudioGenerator, voices VoiceLister, maxTextLength int) *Handler {
	return &Handler{
		generator:     generator,
		voices:        voices,
		maxTextLength: maxTextLength,
	}
}

// stageMessages prefixes failures so clients can tell which step broke.
var stageMessages = map[pipeline.Stage]string{
	pipeline.StageAnalyzingCharacters: "Failed to analyze text characters",
	pipeline.StageMatchingVoices:      "Failed to assign voices",
	pipeline.StageGeneratingScript:    "Failed to generate script",
	pipeline.StageAssembling:          "Failed to combine audio files",
}

type stageErrorResponse struct {
	Error   string `json:"error"`
	Stage   string `json:"stage"`
	Segment *int   `json:"segment,omitempty"` // 1-based
}

// GenerateAudio handles POST /v1/generate-audio
func (h *Handler) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	text, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	log.Printf("[API] Starting audio generation for %d characters of text", utf8.RuneCountInString(text))

	result, err := h.generator.Run(r.Context(), text)
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="generated_audio.mp3"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Audio); err != nil {
		log.Printf("[API] Failed to write audio response: %v", err)
	}
}

// decodeText reads and validates {"text": ...}. It writes the 400 response itself.
func (h *Handler) decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.GenerateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusBadRequest, "Request body too large")
			return "", false
		}
		respondError(w, http.StatusBadRequest, "Request must be JSON")
		return "", false
	}

	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "Text is required")
		return "", false
	}

	if h.maxTextLength > 0 && utf8.RuneCountInString(req.Text) > h.maxTextLength {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Text exceeds maximum length of %d characters", h.maxTextLength))
		return "", false
	}

	return req.Text, true
}

func respondPipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrEmptyInput) {
		respondError(w, http.StatusBadRequest, "Text is required")
		return
	}

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", err))
		return
	}

	resp := stageErrorResponse{Stage: stageErr.Stage.String()}
	switch {
	case stageErr.SegmentIndex >= 0:
		n := stageErr.SegmentIndex + 1
		resp.Segment = &n
		resp.Error = fmt.Sprintf("Error generating audio segment %d: %v", n, stageErr.Err)
	case stageMessages[stageErr.Stage] != "":
		resp.Error = fmt.Sprintf("%s: %v", stageMessages[stageErr.Stage], stageErr.Err)
	default:
		resp.Error = stageErr.Error()
	}

	log.Printf("[API] Audio generation failed: %s", resp.Error)
	respondJSON(w, http.StatusInternalServerError, resp)
}

// ListVoices handles GET /v1/voices
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"voices": h.voices.Voices(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":        "ok",
		"voices":        len(h.voices.Voices()),
		"async_renders": h.rendersEnabled(),
	}
	if h.rendersEnabled() {
		if n, err := h.queue.Len(r.Context(), queue.QueueRenderAudio); err != nil {
			log.Printf("[API] Failed to read render queue length: %v", err)
		} else {
			body["queued_renders"] = n
		}
	}
	respondJSON(w, http.StatusOK, body)
}
