package progress

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestMulti_FansOutInOrder(t *testing.T) {
	t.Parallel()

	var got []string
	a := Func(func(_ context.Context, ev Event) { got = append(got, "a:"+string(ev.Phase)) })
	b := Func(func(_ context.Context, ev Event) { got = append(got, "b:"+ev.Session) })

	obs := WithSession(Multi(a, nil, b), "s1")
	obs.Notify(context.Background(), Event{Phase: PhaseInit})

	if strings.Join(got, ",") != "a:init,b:s1" {
		t.Fatalf("unexpected fan-out: %v", got)
	}
	if Multi(nil, nil) != Nop {
		t.Fatalf("expected Nop for empty observer set")
	}
}

func TestLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := Log(logger)
	obs.Notify(context.Background(), Event{Phase: PhaseSegmentEnd, Percent: 80, Message: "short done", Segment: 1, Total: 4})
	obs.Notify(context.Background(), Event{Phase: PhaseSegmentEnd, Percent: 85, Message: "short failed", Err: "encode"})

	out := buf.String()
	for _, want := range []string{"phase=segment_end", "segment=1", "total=4", "level=WARN", "error=encode"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestSegmentPercent(t *testing.T) {
	t.Parallel()

	tests := []struct{ done, total, want int }{
		{0, 4, 75}, {2, 4, 85}, {4, 4, 95}, {0, 0, 95},
	}
	for _, tt := range tests {
		if got := SegmentPercent(tt.done, tt.total); got != tt.want {
			t.Fatalf("SegmentPercent(%d,%d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
