package normalize

import (
	"regexp"
	"strings"

	"github.com/nextrole/conveyor/internal/model"
)

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)

// seniorityTokens are leading title words that mark level rather than role.
// They are stripped from NormalizeTitle so "Senior Backend Engineer" and
// "Backend Engineer" fingerprint the same role.
var seniorityTokens = map[string]bool{
	"senior":    true,
	"sr":        true,
	"junior":    true,
	"jr":        true,
	"lead":      true,
	"staff":     true,
	"principal": true,
	"mid":       true,
	"entry":     true,
	"intern":    true,
	"graduate":  true,
}

// titleSeniority maps a leading title token to the level it implies, for
// sources that carry no structured experience field.
var titleSeniority = map[string]model.ExperienceLevel{
	"senior":    model.ExperienceSenior,
	"sr":        model.ExperienceSenior,
	"junior":    model.ExperienceJunior,
	"jr":        model.ExperienceJunior,
	"lead":      model.ExperienceLead,
	"staff":     model.ExperienceLead,
	"principal": model.ExperienceLead,
	"mid":       model.ExperienceMid,
	"entry":     model.ExperienceEntry,
	"intern":    model.ExperienceEntry,
	"graduate":  model.ExperienceEntry,
}

// NormalizeTitle derives the matching form of a job title: case-folded,
// punctuation collapsed to single spaces, leading seniority markers removed.
func NormalizeTitle(title string) string {
	folded := nonAlnumRegex.ReplaceAllString(strings.ToLower(title), " ")
	tokens := strings.Fields(folded)
	for len(tokens) > 1 && seniorityTokens[tokens[0]] {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// seniorityFromTitle infers an experience level from the title's leading
// token. Returns UNKNOWN when the title carries no level marker.
func seniorityFromTitle(title string) model.ExperienceLevel {
	folded := nonAlnumRegex.ReplaceAllString(strings.ToLower(title), " ")
	tokens := strings.Fields(folded)
	if len(tokens) == 0 {
		return model.ExperienceUnknown
	}
	if lvl, ok := titleSeniority[tokens[0]]; ok {
		return lvl
	}
	return model.ExperienceUnknown
}
