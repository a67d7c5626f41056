package subtitles

import (
	"strings"
	"unicode/utf8"
)

// MaxLineChars is the wrap width for a frame of the given pixel width.
func MaxLineChars(frameWidth int) int {
	return max(20, frameWidth/30)
}

// Wrap packs words greedily into lines of at most maxChars runes. Words are
// never split, so a single long word gets a line of its own.
func Wrap(text string, maxChars int) []string {
	var (
		lines []string
		cur   strings.Builder
		n     int
	)
	for _, w := range strings.Fields(text) {
		wl := utf8.RuneCountInString(w)
		if n > 0 && n+1+wl > maxChars {
			lines = append(lines, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(w)
		n += wl
	}
	if n > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
