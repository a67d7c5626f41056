package fallback

import (
	"errors"
	"strings"
	"testing"
)

func TestTry(t *testing.T) {
	t.Parallel()

	errA := errors.New("a broke")
	calls := 0
	tests := []struct {
		name         string
		strategies   []Strategy[int]
		wantStrategy string
		wantValue    int
		wantFailures int
	}{
		{
			name: "first wins",
			strategies: []Strategy[int]{
				{Name: "a", Run: func() (int, error) { return 1, nil }},
				{Name: "b", Run: func() (int, error) { calls++; return 2, nil }},
			},
			wantStrategy: "a",
			wantValue:    1,
		},
		{
			name: "second after failure",
			strategies: []Strategy[int]{
				{Name: "a", Run: func() (int, error) { return 0, errA }},
				{Name: "b", Run: func() (int, error) { return 2, nil }},
			},
			wantStrategy: "b",
			wantValue:    2,
			wantFailures: 1,
		},
		{
			name: "exhausted",
			strategies: []Strategy[int]{
				{Name: "a", Run: func() (int, error) { return 0, errA }},
				{Name: "b", Run: func() (int, error) { return 0, errors.New("b broke") }},
			},
			wantFailures: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Try(tt.strategies...)
			if out.Strategy != tt.wantStrategy {
				t.Fatalf("strategy = %q, want %q", out.Strategy, tt.wantStrategy)
			}
			if out.Value != tt.wantValue {
				t.Fatalf("value = %d, want %d", out.Value, tt.wantValue)
			}
			if len(out.Failures) != tt.wantFailures {
				t.Fatalf("failures = %d, want %d", len(out.Failures), tt.wantFailures)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("strategy after a success must not run")
	}
}

func TestOutcome_Err(t *testing.T) {
	t.Parallel()

	errA := errors.New("a broke")
	out := Try(
		Strategy[string]{Name: "a", Run: func() (string, error) { return "", errA }},
		Strategy[string]{Name: "b", Run: func() (string, error) { return "", errors.New("b broke") }},
	)
	err := out.Err()
	if err == nil {
		t.Fatalf("expected error for exhausted chain")
	}
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to wrap first failure")
	}
	if !strings.Contains(err.Error(), "a: a broke; b: b broke") {
		t.Fatalf("unexpected message: %v", err)
	}

	ok := Try(Strategy[string]{Name: "a", Run: func() (string, error) { return "x", nil }})
	if ok.Err() != nil || ok.Degraded() {
		t.Fatalf("expected clean success, got err=%v degraded=%v", ok.Err(), ok.Degraded())
	}
}
