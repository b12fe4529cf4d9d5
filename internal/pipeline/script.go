package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/storyvoice/internal/extract"
	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/services"
)

const scriptPrompt = `Using the following character list, generate a complete script with added context for the story. Create suitable dialogues where they are missing. Lines that are not spoken by characters should be spoken by the narrator. Use each character's name exactly as given.

Characters:
%s

Story Text:
%s

Return ONLY a list in exactly this format, with no other text:
[
    {
        "speaker_name": "Character Name",
        "speaker_text": "The text they speak",
        "voice_id": "voice_id_from_character"
    }
]`

// ScriptGenerator turns the source text into an ordered dialogue for the characters found.
type ScriptGenerator struct {
	llm     services.TextGenerator
	timeout time.Duration
}

func NewScriptGenerator(llm services.TextGenerator, timeout time.Duration) *ScriptGenerator {
	return &ScriptGenerator{llm: llm, timeout: timeout}
}

// Generate returns a non-empty script. If the model output cannot be parsed
// the whole text is read by the narrator. A parsed script with an unspeakable
// line returns *extract.ScriptValidationError.
func (g *ScriptGenerator) Generate(ctx context.Context, text string, characters []models.Character) (models.Script, error) {
	castJSON, err := json.MarshalIndent(characters, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode characters: %w", err)
	}

	raw, err := generate(ctx, g.llm, g.timeout, fmt.Sprintf(scriptPrompt, castJSON, text))
	if err != nil {
		return nil, fmt.Errorf("failed to generate script: %w", err)
	}
	log.Printf("[Script] Raw response: %s", truncate(raw, logPreviewLen))

	res, err := extract.ExtractScript(raw, text)
	if err != nil {
		return nil, err
	}
	if res.Fallback {
		log.Printf("[Script] Could not parse script, narrator reads full text: %v", res.Reason)
	} else {
		log.Printf("[Script] Parsed %d lines", len(res.Script))
	}
	return res.Script, nil
}
