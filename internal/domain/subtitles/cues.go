package subtitles

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	"github.com/forPelevin/hlshorts/internal/types"
)

// Translator turns text in sourceLang into targetLang.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Builder produces the global cue list for a video.
type Builder struct {
	translator Translator
	target     string
}

// NewBuilder returns a Builder translating into target (for example "en").
// A nil translator passes text through unchanged.
func NewBuilder(t Translator, target string) *Builder {
	if strings.TrimSpace(target) == "" {
		target = "en"
	}
	return &Builder{translator: t, target: target}
}

type BuildStats struct {
	Kept       int
	Translated int
	// TranslateErrors counts cues whose translation failed and kept the
	// original text.
	TranslateErrors int
}

// Build keeps transcript cues that have text and start before the end of the
// video, translating them when the transcript language differs from the
// target. Cues keep their transcript order.
func (b *Builder) Build(ctx context.Context, tr types.Transcript, videoDuration float64) ([]types.TranscriptCue, BuildStats) {
	var st BuildStats
	translate := b.translator != nil && !SameLanguage(tr.Language, b.target)

	out := make([]types.TranscriptCue, 0, len(tr.Segments))
	for _, c := range tr.Segments {
		text := strings.TrimSpace(c.Text)
		if text == "" || (videoDuration > 0 && c.Start >= videoDuration) {
			continue
		}
		if translate {
			got, err := b.translator.Translate(ctx, text, tr.Language, b.target)
			switch {
			case err != nil:
				st.TranslateErrors++
			case strings.TrimSpace(got) != "":
				text = strings.TrimSpace(got)
				st.Translated++
			}
		}
		out = append(out, types.TranscriptCue{Start: c.Start, End: c.End, Text: text})
	}
	st.Kept = len(out)
	return out, st
}

// SameLanguage compares the base languages of two codes. "english" is
// accepted for English and an empty source is treated as English.
func SameLanguage(source, target string) bool {
	return baseOf(source) == baseOf(target)
}

func baseOf(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	switch code {
	case "", "english":
		return "en"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, _ := tag.Base()
	return base.String()
}

// ForSegment returns the cues lying entirely inside [start, end], shifted so
// that start becomes zero. Cues that only overlap the window are dropped.
func ForSegment(cues []types.TranscriptCue, start, end float64) []types.SubtitleCue {
	var out []types.SubtitleCue
	for _, c := range cues {
		if c.Start >= start && c.End <= end {
			out = append(out, types.SubtitleCue{Start: c.Start - start, End: c.End - start, Text: c.Text})
		}
	}
	return out
}

// Active returns the first cue whose closed interval contains t.
func Active(cues []types.SubtitleCue, t float64) (types.SubtitleCue, bool) {
	for _, c := range cues {
		if c.Start <= t && t <= c.End {
			return c, true
		}
	}
	return types.SubtitleCue{}, false
}
