// Package highlights scores the speech inside a short. Scores annotate the
// manifest; they never change which segments are rendered.
package highlights

import (
	"regexp"
	"strings"

	"github.com/forPelevin/hlshorts/internal/types"
)

var (
	reNum     = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?%?`)
	reHook    = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here'?s\s+why|here\s+is\s+why|remember|surprising|actually|truth)\b`)
	reHow     = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this)\b`)
	reStepNum = regexp.MustCompile(`(?i)\bstep\s+\d+\b`)
)

// Scores are in [0..10] except Pace, which is spoken words per minute.
type Scores struct {
	Info float64 `json:"info"`
	Hook float64 `json:"hook"`
	Pace float64 `json:"pace_wpm"`
}

// ScoreCues scores the joined caption text of one short.
func ScoreCues(cues []types.SubtitleCue) Scores {
	parts := make([]string, 0, len(cues))
	var spoken float64
	for _, c := range cues {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
			spoken += c.End - c.Start
		}
	}
	text := strings.Join(parts, " ")
	s := Score(text)
	if spoken > 0 {
		s.Pace = float64(len(strings.Fields(text))) / spoken * 60
	}
	return s
}

// Score rates a single text. Pace is left zero.
func Score(text string) Scores {
	t := strings.TrimSpace(text)
	if t == "" {
		return Scores{}
	}
	lower := strings.ToLower(t)

	info := float64(len(reNum.FindAllStringIndex(t, -1))) * 0.4
	if reHow.MatchString(lower) {
		info += 1.2
	}
	// small length penalty
	info -= 0.0006 * float64(len([]rune(t)))

	hook := float64(len(reHook.FindAllStringIndex(lower, -1))) * 0.9
	hook += float64(len(reStepNum.FindAllStringIndex(lower, -1))) * 0.4
	hook += float64(strings.Count(t, "?")) * 0.7
	hook += float64(strings.Count(t, "!")) * 0.3

	return Scores{Info: clamp(info, 0, 10), Hook: clamp(hook, 0, 10)}
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
