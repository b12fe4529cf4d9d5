package extract

import (
	"fmt"
	"strings"

	"github.com/bobarin/storyvoice/internal/models"
)

// CharacterResult is the outcome of ExtractCharacters. Characters is never empty.
type CharacterResult struct {
	Characters []models.Character

	// Warnings lists recoverable problems, such as defaulted properties.
	Warnings []string

	// Fallback is set when the output could not be used and Characters holds
	// only the default narrator. Reason says why.
	Fallback bool
	Reason   error
}

var propertyDefaults = []struct {
	key string
	def string
	set func(*models.CharacterProperties, string)
}{
	{"gender", models.DefaultGender, func(p *models.CharacterProperties, v string) { p.Gender = v }},
	{"age", models.DefaultAge, func(p *models.CharacterProperties, v string) { p.Age = v }},
	{"accent", models.DefaultAccent, func(p *models.CharacterProperties, v string) { p.Accent = v }},
	{"tone", models.DefaultTone, func(p *models.CharacterProperties, v string) { p.Tone = v }},
	{"style", models.DefaultStyle, func(p *models.CharacterProperties, v string) { p.Style = v }},
	{"urgency", models.DefaultUrgency, func(p *models.CharacterProperties, v string) { p.Urgency = v }},
}

// ExtractCharacters parses a character list. Every record needs a name and a
// properties mapping; missing or blank properties are defaulted with a
// warning. Any other problem yields the single default narrator.
func ExtractCharacters(raw string) CharacterResult {
	records, err := parseRecords(Clean(raw))
	if err != nil {
		return narratorFallback(err)
	}

	res := CharacterResult{Characters: make([]models.Character, 0, len(records))}

	for i, r := range records {
		name, _ := r.str("name")
		name = strings.TrimSpace(name)
		if name == "" {
			return narratorFallback(fmt.Errorf("character %d is missing a name", i))
		}

		rawProps, ok := r["properties"]
		if !ok {
			return narratorFallback(fmt.Errorf("character %q is missing properties", name))
		}
		props, ok := asRecord(rawProps)
		if !ok {
			return narratorFallback(fmt.Errorf("properties of character %q are not a mapping", name))
		}

		var p models.CharacterProperties
		var defaulted []string
		for _, d := range propertyDefaults {
			v, _ := props.str(d.key)
			v = strings.TrimSpace(v)
			if v == "" {
				v = d.def
				defaulted = append(defaulted, d.key)
			}
			d.set(&p, v)
		}

		if len(defaulted) > 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("added default properties for character %s: %v", name, defaulted))
		}

		res.Characters = append(res.Characters, models.Character{Name: name, Properties: p})
	}

	return res
}

func narratorFallback(reason error) CharacterResult {
	return CharacterResult{
		Characters: []models.Character{DefaultNarrator()},
		Fallback:   true,
		Reason:     reason,
	}
}

// DefaultNarrator is the character used when no character list can be recovered.
func DefaultNarrator() models.Character {
	return models.Character{
		Name:       models.NarratorName,
		Properties: models.NarratorProperties(),
	}
}
