package segments

import (
	"fmt"

	"github.com/forPelevin/hlshorts/internal/types"
)

// Fallback tiles [0, k*45) with back-to-back 45 second windows, where
// k = floor(duration/45). A partial trailing window is never produced.
func Fallback(duration float64) []types.CandidateSegment {
	if !finite(duration) || duration < FallbackDuration {
		return nil
	}
	n := int(duration / FallbackDuration)
	out := make([]types.CandidateSegment, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * FallbackDuration
		end := start + FallbackDuration
		if end > duration {
			break
		}
		num := i + 1
		out = append(out, types.CandidateSegment{
			StartTime:       start,
			EndTime:         end,
			Duration:        FallbackDuration,
			Title:           fmt.Sprintf("Short Clip %d", num),
			Topic:           fmt.Sprintf("Segment %d", num),
			Hook:            "Auto-generated segment",
			Description:     fmt.Sprintf("Automatically extracted segment %d", num),
			EngagementScore: 5.0,
			ContentType:     "general",
			Source:          types.SourceFallback,
		})
	}
	return out
}
