package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignVoiceOnce(t *testing.T) {
	c := Character{Name: "Alice"}

	require.True(t, c.AssignVoice("voice-a"))
	assert.False(t, c.AssignVoice("voice-b"))
	assert.Equal(t, "voice-a", c.VoiceID)
}

func TestNarratorPropertiesComplete(t *testing.T) {
	p := NarratorProperties()

	for name, v := range map[string]string{
		"gender":  p.Gender,
		"age":     p.Age,
		"accent":  p.Accent,
		"tone":    p.Tone,
		"style":   p.Style,
		"urgency": p.Urgency,
	} {
		assert.NotEmpty(t, v, "narrator %s is empty", name)
	}
}

func TestVoiceDescriptorFromCatalogJSON(t *testing.T) {
	data := []byte(`{"voice_id": "abc", "name": "Rachel", "labels": {"gender": "female", "accent": "american"}}`)

	var v VoiceDescriptor
	require.NoError(t, json.Unmarshal(data, &v))

	assert.Equal(t, "abc", v.ID)
	assert.Equal(t, "female", v.Tag(TagGender))
	assert.Equal(t, "", v.Tag(TagStyle))
	assert.Equal(t, "", VoiceDescriptor{}.Tag(TagAge))
}

func TestRenderStatus(t *testing.T) {
	statuses := []RenderStatus{
		RenderStatusQueued,
		RenderStatusProcessing,
		RenderStatusCompleted,
		RenderStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}
