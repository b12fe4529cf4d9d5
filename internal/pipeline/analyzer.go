package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/bobarin/storyvoice/internal/extract"
	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/services"
)

const characterPrompt = `Analyze the following text and identify the key characters, including the narrator. For each character, provide the following properties:

- Gender
- Age (young, middle-aged, elderly)
- Accent (e.g., British, American, Australian)
- Tone (e.g., formal, casual, excited)
- Style (narrating or acting)
- Urgency (low, medium, high)

Make sure to include a narrator with the best properties for this text.

Input Text:
%s

Return ONLY a list in exactly this format, with no other text:
[
    {
        "name": "Character Name",
        "properties": {
            "gender": "Male/Female",
            "age": "Young/Middle-aged/Elderly",
            "accent": "British/American/Australian/etc",
            "tone": "Formal/Casual/Excited/etc",
            "style": "Narrating/Acting",
            "urgency": "Low/Medium/High"
        }
    }
]`

// CharacterAnalyzer asks the text model who speaks in a passage and how they sound.
type CharacterAnalyzer struct {
	llm     services.TextGenerator
	timeout time.Duration
}

func NewCharacterAnalyzer(llm services.TextGenerator, timeout time.Duration) *CharacterAnalyzer {
	return &CharacterAnalyzer{llm: llm, timeout: timeout}
}

// Analyze returns at least one character. Unusable model output degrades to
// the default narrator; only a failed model call is an error.
func (a *CharacterAnalyzer) Analyze(ctx context.Context, text string) ([]models.Character, error) {
	raw, err := generate(ctx, a.llm, a.timeout, fmt.Sprintf(characterPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze characters: %w", err)
	}
	log.Printf("[Analyzer] Raw response: %s", truncate(raw, logPreviewLen))

	res := extract.ExtractCharacters(raw)
	for _, w := range res.Warnings {
		log.Printf("[Analyzer] WARNING: %s", w)
	}
	if res.Fallback {
		log.Printf("[Analyzer] Using default narrator: %v", res.Reason)
	} else {
		log.Printf("[Analyzer] Parsed %d characters", len(res.Characters))
	}
	return res.Characters, nil
}

const logPreviewLen = 500

// generate runs one model call bounded by timeout.
func generate(ctx context.Context, llm services.TextGenerator, timeout time.Duration, prompt string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return llm.Generate(ctx, prompt)
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i] + "..."
		}
		runes++
	}
	return s
}
