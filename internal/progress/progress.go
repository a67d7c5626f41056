// Package progress defines the observer notified at generation phase
// boundaries.
package progress

import (
	"context"
	"log/slog"
	"time"
)

type Phase string

const (
	PhaseInit               Phase = "init"
	PhaseTranscriptionStart Phase = "transcription_start"
	PhaseTranscriptionEnd   Phase = "transcription_end"
	PhaseAnalysisStart      Phase = "analysis_start"
	PhaseAnalysisEnd        Phase = "analysis_end"
	PhaseSegmentStart       Phase = "segment_start"
	PhaseSegmentEnd         Phase = "segment_end"
	PhaseCompletion         Phase = "completion"
)

// Event is one progress notification. Segment and Total are set for segment
// phases; Err carries a segment or run failure message.
type Event struct {
	Session string    `json:"session,omitempty"`
	Phase   Phase     `json:"phase"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
	Segment int       `json:"segment,omitempty"`
	Total   int       `json:"total,omitempty"`
	Err     string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Observer receives events synchronously. Implementations must not block for
// long and must swallow their own failures.
type Observer interface {
	Notify(ctx context.Context, ev Event)
}

type Func func(ctx context.Context, ev Event)

func (f Func) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

type nop struct{}

func (nop) Notify(context.Context, Event) {}

// Nop discards every event.
var Nop Observer = nop{}

// Multi fans an event out to each observer in order. Nil entries are skipped.
func Multi(obs ...Observer) Observer {
	var out multi
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return Nop
	}
	return out
}

type multi []Observer

func (m multi) Notify(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Notify(ctx, ev)
	}
}

// WithSession stamps events with a session id before forwarding them.
func WithSession(o Observer, session string) Observer {
	return Func(func(ctx context.Context, ev Event) {
		ev.Session = session
		o.Notify(ctx, ev)
	})
}

// Log writes events to a structured logger.
func Log(logger *slog.Logger) Observer {
	return Func(func(ctx context.Context, ev Event) {
		attrs := []any{
			slog.String("phase", string(ev.Phase)),
			slog.Int("percent", ev.Percent),
		}
		if ev.Total > 0 {
			attrs = append(attrs, slog.Int("segment", ev.Segment), slog.Int("total", ev.Total))
		}
		if ev.Err != "" {
			attrs = append(attrs, slog.String("error", ev.Err))
			logger.WarnContext(ctx, ev.Message, attrs...)
			return
		}
		logger.InfoContext(ctx, ev.Message, attrs...)
	})
}

// SegmentPercent spreads segment progress over the 75..95 band.
func SegmentPercent(done, total int) int {
	if total <= 0 {
		return 95
	}
	return 75 + 20*done/total
}
