package models

import (
	"time"

	"github.com/google/uuid"
)

// Default character properties, used when the model output omits a key.
const (
	DefaultGender  = "Unknown"
	DefaultAge     = "Middle-aged"
	DefaultAccent  = "Neutral"
	DefaultTone    = "Neutral"
	DefaultStyle   = "Narrating"
	DefaultUrgency = "Medium"

	NarratorName = "Narrator"
)

// Tag keys on a VoiceDescriptor that the matcher reads.
const (
	TagGender = "gender"
	TagAge    = "age"
	TagAccent = "accent"
	TagStyle  = "style"
)

// VoiceDescriptor is one entry of the voice catalog. Treat as read-only.
type VoiceDescriptor struct {
	ID   string            `json:"voice_id"`
	Name string            `json:"name,omitempty"`
	Tags map[string]string `json:"labels"`
}

// Tag returns the tag value for key, or "" when absent.
func (v VoiceDescriptor) Tag(key string) string {
	if v.Tags == nil {
		return ""
	}
	return v.Tags[key]
}

// CharacterProperties are the vocal attributes inferred for a character.
type CharacterProperties struct {
	Gender  string `json:"gender"`
	Age     string `json:"age"`
	Accent  string `json:"accent"`
	Tone    string `json:"tone"`
	Style   string `json:"style"`
	Urgency string `json:"urgency"`
}

// NarratorProperties are the neutral properties of the fallback narrator.
func NarratorProperties() CharacterProperties {
	return CharacterProperties{
		Gender:  "Neutral",
		Age:     DefaultAge,
		Accent:  DefaultAccent,
		Tone:    "Formal",
		Style:   DefaultStyle,
		Urgency: DefaultUrgency,
	}
}

// Character is a speaker identified in the source text.
type Character struct {
	Name       string              `json:"name"`
	Properties CharacterProperties `json:"properties"`
	VoiceID    string              `json:"voice_id,omitempty"`
}

// AssignVoice sets the voice once. It reports false if a voice was already set.
func (c *Character) AssignVoice(voiceID string) bool {
	if c.VoiceID != "" {
		return false
	}
	c.VoiceID = voiceID
	return true
}

// ScriptEntry is one spoken line of the generated script.
type ScriptEntry struct {
	SpeakerName string `json:"speaker_name"`
	SpeakerText string `json:"speaker_text"`
	VoiceID     string `json:"voice_id,omitempty"` // advisory only
}

// Script is the ordered dialogue. Order is playback order.
type Script []ScriptEntry

// Async render status
type RenderStatus string

const (
	RenderStatusQueued     RenderStatus = "queued"
	RenderStatusProcessing RenderStatus = "processing"
	RenderStatusCompleted  RenderStatus = "completed"
	RenderStatusFailed     RenderStatus = "failed"
)

// Render tracks one asynchronous text-to-audio job. The input text and the
// generated script are never stored here.
type Render struct {
	ID           uuid.UUID    `json:"id"`
	Status       RenderStatus `json:"status"`
	Stage        *string      `json:"stage,omitempty"`
	ErrorStage   *string      `json:"error_stage,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	AudioPath    *string      `json:"-"`
	ByteSize     *int64       `json:"byte_size,omitempty"`
	SegmentCount *int         `json:"segment_count,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// API request/response types

type GenerateAudioRequest struct {
	Text string `json:"text"`
}

type CreateRenderResponse struct {
	RenderID uuid.UUID    `json:"render_id"`
	Status   RenderStatus `json:"status"`
}

type RenderResponse struct {
	Render
	DownloadURL *string `json:"download_url,omitempty"`
}
