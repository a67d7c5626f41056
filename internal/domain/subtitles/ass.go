package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/hlshorts/internal/types"
)

// RenderASS writes segment cues as an ASS script for a w x h frame. It backs
// the ffmpeg burn-in path used when the in-process overlay is unavailable.
func RenderASS(cues []types.SubtitleCue, w, h int) string {
	var b strings.Builder
	b.WriteString(assHeader(w, h))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	maxChars := MaxLineChars(w)
	for _, c := range cues {
		lines := Wrap(sanitizeASS(c.Text), maxChars)
		if len(lines) == 0 {
			continue
		}
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(seconds(c.Start)))
		b.WriteString(",")
		b.WriteString(assTime(seconds(c.End)))
		b.WriteString(",Caption,,0,0,0,,")
		b.WriteString(strings.Join(lines, `\N`))
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader(w, h int) string {
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Arial, 50, &H00FFFFFF, &H00FFFFFF, &H00000000, &H00000000, 1,0,0,0,100,100,0,0,1,2,0,2, 40,40,%d,1
`, w, h, bottomMargin))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func seconds(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
