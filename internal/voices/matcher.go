package voices

import (
	"errors"
	"strings"

	"github.com/bobarin/storyvoice/internal/models"
)

// ErrEmptyCatalog means there is no voice to assign and no default voice is configured.
var ErrEmptyCatalog = errors.New("voice catalog is empty and no default voice is configured")

// MaxScore is the number of criteria a voice can satisfy.
const MaxScore = 5

// Score counts the criteria voice satisfies for props. All comparisons are
// case-insensitive substring tests against the voice's tags:
//   - gender in the gender tag
//   - age in the age tag
//   - any whitespace-separated accent token in the accent tag
//   - tone in the style tag
//   - style in the style tag
func Score(props models.CharacterProperties, voice models.VoiceDescriptor) int {
	gender := strings.ToLower(voice.Tag(models.TagGender))
	age := strings.ToLower(voice.Tag(models.TagAge))
	accent := strings.ToLower(voice.Tag(models.TagAccent))
	style := strings.ToLower(voice.Tag(models.TagStyle))

	score := 0
	if contains(gender, props.Gender) {
		score++
	}
	if contains(age, props.Age) {
		score++
	}
	for _, token := range strings.Fields(strings.ToLower(props.Accent)) {
		if strings.Contains(accent, token) {
			score++
			break
		}
	}
	if contains(style, props.Tone) {
		score++
	}
	if contains(style, props.Style) {
		score++
	}
	return score
}

// contains reports whether the lower-cased tag holds want. A blank want never matches.
func contains(tag, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return false
	}
	return strings.Contains(tag, want)
}

// Match returns the ID of the best voice for props. Candidates are scanned in
// catalog order and only a strictly higher score replaces the current best, so
// ties go to the earliest voice. If nothing scores above zero the first voice
// is used.
func Match(props models.CharacterProperties, catalog []models.VoiceDescriptor) (string, error) {
	if len(catalog) == 0 {
		return "", ErrEmptyCatalog
	}

	best, bestScore := -1, 0
	for i, voice := range catalog {
		if s := Score(props, voice); s > bestScore {
			best, bestScore = i, s
			if s == MaxScore {
				break
			}
		}
	}

	if best < 0 {
		return catalog[0].ID, nil
	}
	return catalog[best].ID, nil
}

// Matcher assigns voices from a catalog, falling back to DefaultVoiceID when
// the catalog is empty.
type Matcher struct {
	DefaultVoiceID string
}

// Match is Match with the configured default for an empty catalog.
func (m Matcher) Match(props models.CharacterProperties, catalog []models.VoiceDescriptor) (string, error) {
	if len(catalog) == 0 {
		if m.DefaultVoiceID != "" {
			return m.DefaultVoiceID, nil
		}
		return "", ErrEmptyCatalog
	}
	return Match(props, catalog)
}

// AssignVoices sets the voice of every character that has none yet.
func (m Matcher) AssignVoices(characters []models.Character, catalog []models.VoiceDescriptor) error {
	for i := range characters {
		if characters[i].VoiceID != "" {
			continue
		}
		id, err := m.Match(characters[i].Properties, catalog)
		if err != nil {
			return err
		}
		characters[i].AssignVoice(id)
	}
	return nil
}
