package segments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/forPelevin/hlshorts/internal/types"
)

const (
	MinDuration      = 15.0
	MaxDuration      = 120.0
	FallbackDuration = 45.0
)

// Analyzer proposes candidate windows for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, duration float64) ([]types.RawCandidate, error)
}

type Input struct {
	Transcript string
	Duration   float64
	MaxShorts  int
}

type Result struct {
	Segments []types.CandidateSegment
	Source   types.SegmentSource
	// AnalysisErr is set when the analysis collaborator failed and fallback
	// windows were used instead.
	AnalysisErr error
	// Discarded holds one classified error per rejected analysis candidate.
	Discarded []error
}

// Selector turns analysis output, or its absence, into output windows.
type Selector struct {
	analyzer Analyzer
}

// New returns a Selector. A nil analyzer always selects fallback windows.
func New(a Analyzer) *Selector {
	return &Selector{analyzer: a}
}

// Select returns validated windows in the order they were proposed. A
// successful analysis that validates to nothing yields ErrNoSegments without
// trying fallback windows.
func (s *Selector) Select(ctx context.Context, in Input) (Result, error) {
	var res Result

	raw, err := s.analyze(ctx, in)
	if err != nil {
		res.Source = types.SourceFallback
		res.AnalysisErr = err
		res.Segments = Fallback(in.Duration)
	} else {
		res.Source = types.SourceAnalysis
		res.Segments, res.Discarded = Validate(raw, in.Duration)
	}

	res.Segments = Limit(res.Segments, in.MaxShorts)
	if len(res.Segments) == 0 {
		return res, types.ErrNoSegments
	}
	return res, nil
}

func (s *Selector) analyze(ctx context.Context, in Input) ([]types.RawCandidate, error) {
	if s.analyzer == nil {
		return nil, types.ErrAnalysisUnavailable
	}
	raw, err := s.analyzer.Analyze(ctx, in.Transcript, in.Duration)
	if err != nil {
		return nil, types.ExternalError("analyze", err)
	}
	return raw, nil
}

// Validate keeps the candidates whose timing fits the video and whose duration
// lies within [MinDuration, MaxDuration]. Nothing is clamped or repaired.
func Validate(raw []types.RawCandidate, videoDuration float64) ([]types.CandidateSegment, []error) {
	out := make([]types.CandidateSegment, 0, len(raw))
	var discarded []error
	for i, c := range raw {
		op := fmt.Sprintf("candidate %d", i+1)
		seg, err := validateOne(c, videoDuration)
		if err != nil {
			discarded = append(discarded, wrapOp(op, err))
			continue
		}
		if strings.TrimSpace(seg.Title) == "" {
			seg.Title = fmt.Sprintf("Short Clip %d", len(out)+1)
		}
		out = append(out, seg)
	}
	return out, discarded
}

func validateOne(c types.RawCandidate, videoDuration float64) (types.CandidateSegment, error) {
	if c.StartTime == nil || c.EndTime == nil {
		return types.CandidateSegment{}, types.ValidationError("", errors.New("start_time and end_time are required"))
	}
	start, end := *c.StartTime, *c.EndTime
	if !finite(start) || !finite(end) {
		return types.CandidateSegment{}, types.ValidationError("", errors.New("non-finite timing"))
	}
	if start < 0 || start >= end {
		return types.CandidateSegment{}, types.ValidationError("", fmt.Errorf("invalid window [%.2f, %.2f)", start, end))
	}
	if videoDuration > 0 && end > videoDuration {
		return types.CandidateSegment{}, types.ValidationError("", fmt.Errorf("end %.2f past video end %.2f", end, videoDuration))
	}

	dur := end - start
	if c.Duration != nil {
		dur = *c.Duration
	}
	if !finite(dur) || dur < MinDuration || dur > MaxDuration {
		return types.CandidateSegment{}, types.SegmentRangeError("", fmt.Errorf("duration %.1fs outside [%g,%g]", dur, MinDuration, MaxDuration))
	}

	return types.CandidateSegment{
		StartTime:       start,
		EndTime:         end,
		Duration:        dur,
		Title:           strings.TrimSpace(c.Title),
		Topic:           strings.TrimSpace(c.Topic),
		Hook:            strings.TrimSpace(c.Hook),
		Description:     strings.TrimSpace(c.Description),
		EngagementScore: c.EngagementScore,
		ContentType:     strings.TrimSpace(c.ContentType),
		NaturalBoundary: strings.TrimSpace(c.NaturalBoundary),
		Source:          types.SourceAnalysis,
	}, nil
}

// Limit truncates to the first n entries when n > 0.
func Limit(segs []types.CandidateSegment, n int) []types.CandidateSegment {
	if n > 0 && len(segs) > n {
		return segs[:n]
	}
	return segs
}

func wrapOp(op string, err error) error {
	var e *types.Error
	if errors.As(err, &e) && e.Op == "" {
		return &types.Error{Kind: e.Kind, Op: op, Err: e.Err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
