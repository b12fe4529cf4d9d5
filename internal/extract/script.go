package extract

import (
	"fmt"
	"strings"

	"github.com/bobarin/storyvoice/internal/models"
)

// ScriptResult is the outcome of ExtractScript. Script is never empty.
type ScriptResult struct {
	Script models.Script

	// Fallback is set when nothing parsed and Script is the whole source text
	// read by the narrator. Reason says why.
	Fallback bool
	Reason   error
}

// ScriptValidationError reports a script that parsed but contains a line that
// cannot be spoken. There is no default for dialogue, so the whole script is
// rejected.
type ScriptValidationError struct {
	Index  int      // zero-based entry index
	Fields []string // missing or blank fields
}

func (e *ScriptValidationError) Error() string {
	return fmt.Sprintf("script entry %d missing required fields: %s", e.Index, strings.Join(e.Fields, ", "))
}

// ExtractScript parses a dialogue list. Each entry needs a speaker_name and a
// non-blank speaker_text; voice_id is kept as an advisory reference. When no
// list can be parsed at all, sourceText becomes a single narrator line.
func ExtractScript(raw, sourceText string) (ScriptResult, error) {
	records, err := parseRecords(Clean(raw))
	if err != nil {
		return ScriptResult{
			Script:   models.Script{FallbackEntry(sourceText)},
			Fallback: true,
			Reason:   err,
		}, nil
	}

	script := make(models.Script, 0, len(records))
	for i, r := range records {
		name, _ := r.str("speaker_name")
		text, _ := r.str("speaker_text")
		name = strings.TrimSpace(name)
		text = strings.TrimSpace(text)

		var missing []string
		if name == "" {
			missing = append(missing, "speaker_name")
		}
		if text == "" {
			missing = append(missing, "speaker_text")
		}
		if len(missing) > 0 {
			return ScriptResult{}, &ScriptValidationError{Index: i, Fields: missing}
		}

		script = append(script, models.ScriptEntry{
			SpeakerName: name,
			SpeakerText: text,
			VoiceID:     voiceRef(r),
		})
	}

	return ScriptResult{Script: script}, nil
}

// FallbackEntry is the narrator line used when no script can be parsed.
// Its voice is resolved later.
func FallbackEntry(sourceText string) models.ScriptEntry {
	return models.ScriptEntry{
		SpeakerName: models.NarratorName,
		SpeakerText: sourceText,
	}
}

func voiceRef(r record) string {
	v, _ := r.str("voice_id")
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "none", "null", "nil":
		return ""
	}
	return v
}
