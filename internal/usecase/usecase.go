package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/hlshorts/internal/domain/reframe"
	"github.com/forPelevin/hlshorts/internal/domain/segments"
	"github.com/forPelevin/hlshorts/internal/domain/subtitles"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
)

const (
	transcriptFile = "full_transcript.txt"
	manifestFile   = "manifest.json"

	noSegmentsMessage = "No suitable segments found for shorts"
)

type Deps struct {
	Video ports.VideoTool
	ASR   ports.ASR
	// Analyzer and Translator are optional; without them fallback windows
	// and untranslated captions are used.
	Analyzer   ports.Analyzer
	Translator ports.Translator
	Publisher  ports.Publisher
	Observer   progress.Observer
	Logger     *slog.Logger
}

type Usecase struct {
	d          Deps
	newOverlay func() (*subtitles.Overlay, error)
}

func New(d Deps) Usecase {
	if d.Observer == nil {
		d.Observer = progress.Nop
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	return Usecase{d: d, newOverlay: subtitles.NewOverlay}
}

type Input struct {
	InputPath string
	OutDir    string
	CacheDir  string
	MaxShorts int
	// UseAnalysis asks the analyzer for candidates; when false the fallback
	// windows are used directly.
	UseAnalysis    bool
	Subtitles      bool
	Target         reframe.Size
	TargetLanguage string
}

type Result struct {
	Generation types.GenerationResult
	Manifest   types.Manifest
}

// Run generates one short per selected segment. Segment failures are
// collected in the result; the returned error is non-nil only when the run
// could not produce a batch at all.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	res := Result{
		Generation: types.GenerationResult{OutputFiles: []types.OutputArtifact{}, Errors: []string{}},
		Manifest:   types.Manifest{Input: in.InputPath},
	}
	log := u.d.Logger

	u.notify(ctx, progress.Event{Phase: progress.PhaseInit, Percent: 10, Message: "initializing shorts generator"})

	asset, tr, err := u.prepare(ctx, in)
	if err != nil {
		return u.fatal(ctx, res, err)
	}
	res.Manifest.Language = tr.Language

	u.notify(ctx, progress.Event{Phase: progress.PhaseAnalysisStart, Percent: 60, Message: "analyzing content for viral segments"})
	var analyzer segments.Analyzer
	if in.UseAnalysis && u.d.Analyzer != nil {
		analyzer = u.d.Analyzer
	}
	sel, err := segments.New(analyzer).Select(ctx, segments.Input{
		Transcript: tr.Text,
		Duration:   asset.Duration,
		MaxShorts:  in.MaxShorts,
	})
	res.Manifest.SegmentSource = sel.Source
	if sel.AnalysisErr != nil {
		log.Warn("analysis unavailable, using fallback segments", slog.String("error", sel.AnalysisErr.Error()))
	}
	for _, d := range sel.Discarded {
		log.Info("candidate discarded", slog.String("reason", d.Error()), slog.String("kind", string(types.KindOf(d))))
	}
	if err != nil {
		res.Generation.Errors = append(res.Generation.Errors, noSegmentsMessage)
		u.notify(ctx, progress.Event{Phase: progress.PhaseCompletion, Percent: 100, Message: "no shorts generated", Err: noSegmentsMessage})
		return res, err
	}
	u.notify(ctx, progress.Event{
		Phase:   progress.PhaseAnalysisEnd,
		Percent: 70,
		Message: fmt.Sprintf("found %d segments (%s)", len(sel.Segments), sel.Source),
		Total:   len(sel.Segments),
	})

	cues, st := subtitles.NewBuilder(u.d.Translator, in.TargetLanguage).Build(ctx, tr, asset.Duration)
	if st.TranslateErrors > 0 {
		log.Warn("some captions kept their original language", slog.Int("failed", st.TranslateErrors))
	}

	engine, err := reframe.NewEngine(in.Target)
	if err != nil {
		return u.fatal(ctx, res, types.FatalError("reframe", err))
	}

	total := len(sel.Segments)
	for i, seg := range sel.Segments {
		idx := i + 1
		u.notify(ctx, progress.Event{
			Phase:   progress.PhaseSegmentStart,
			Percent: progress.SegmentPercent(i, total),
			Message: fmt.Sprintf("creating short %d/%d: %s", idx, total, seg.Title),
			Segment: idx,
			Total:   total,
		})

		art, short, err := u.renderSegment(ctx, engine, asset, seg, idx, cues, in)
		if err != nil {
			msg := fmt.Sprintf("Error creating short %d: %v", idx, err)
			log.Error("short failed", slog.Int("short", idx), slog.String("title", seg.Title), slog.String("error", err.Error()))
			res.Generation.Errors = append(res.Generation.Errors, msg)
			u.notify(ctx, progress.Event{
				Phase:   progress.PhaseSegmentEnd,
				Percent: progress.SegmentPercent(idx, total),
				Message: fmt.Sprintf("short %d failed", idx),
				Segment: idx,
				Total:   total,
				Err:     msg,
			})
			continue
		}

		res.Generation.OutputFiles = append(res.Generation.OutputFiles, art)
		res.Manifest.Shorts = append(res.Manifest.Shorts, short)
		u.notify(ctx, progress.Event{
			Phase:   progress.PhaseSegmentEnd,
			Percent: progress.SegmentPercent(idx, total),
			Message: fmt.Sprintf("short %d completed: %s", idx, art.Filename),
			Segment: idx,
			Total:   total,
		})
	}

	res.Generation.Success = true
	res.Generation.ShortsCreated = len(res.Generation.OutputFiles)
	res.Manifest.Errors = res.Generation.Errors

	u.publish(ctx, in, &res)
	if err := writeManifest(in.OutDir, &res.Manifest); err != nil {
		log.Warn("manifest not written", slog.String("error", err.Error()))
	}

	u.notify(ctx, progress.Event{
		Phase:   progress.PhaseCompletion,
		Percent: 100,
		Message: fmt.Sprintf("generated %d shorts", res.Generation.ShortsCreated),
		Total:   total,
	})
	return res, nil
}

// prepare probes the source, transcribes it, and saves the raw transcript.
// Every failure here is fatal to the run.
func (u Usecase) prepare(ctx context.Context, in Input) (types.VideoAsset, types.Transcript, error) {
	if err := os.MkdirAll(in.OutDir, 0o755); err != nil {
		return types.VideoAsset{}, types.Transcript{}, types.FatalError("create output dir", err)
	}
	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		return types.VideoAsset{}, types.Transcript{}, types.FatalError("create cache dir", err)
	}

	asset, err := u.d.Video.Probe(ctx, in.InputPath)
	if err != nil {
		return types.VideoAsset{}, types.Transcript{}, types.FatalError("open video", err)
	}
	u.d.Logger.Info("video opened",
		slog.Float64("duration_sec", asset.Duration),
		slog.Int("width", asset.Width),
		slog.Int("height", asset.Height),
		slog.Float64("fps", asset.FPS),
	)

	u.notify(ctx, progress.Event{Phase: progress.PhaseTranscriptionStart, Percent: 20, Message: "transcribing video"})
	wav := filepath.Join(in.CacheDir, "audio.wav")
	if err := u.d.Video.ExtractAudioMono16k(ctx, in.InputPath, wav); err != nil {
		return asset, types.Transcript{}, types.FatalError("extract audio", err)
	}
	tr, err := u.d.ASR.Transcribe(ctx, wav, in.CacheDir)
	if err != nil {
		return asset, types.Transcript{}, types.FatalError("transcribe", types.ExternalError("asr", err))
	}
	if err := os.WriteFile(filepath.Join(in.OutDir, transcriptFile), []byte(tr.Text), 0o644); err != nil {
		return asset, tr, types.FatalError("save transcript", err)
	}
	u.notify(ctx, progress.Event{
		Phase:   progress.PhaseTranscriptionEnd,
		Percent: 50,
		Message: fmt.Sprintf("transcription complete (%s, %d cues)", tr.Language, len(tr.Segments)),
	})
	return asset, tr, nil
}

func (u Usecase) fatal(ctx context.Context, res Result, err error) (Result, error) {
	msg := fmt.Sprintf("Fatal error: %v", err)
	u.d.Logger.Error("generation aborted", slog.String("error", err.Error()))
	res.Generation.Success = false
	res.Generation.Errors = append(res.Generation.Errors, msg)
	u.notify(ctx, progress.Event{Phase: progress.PhaseCompletion, Percent: 100, Message: "generation failed", Err: msg})
	return res, err
}

func (u Usecase) publish(ctx context.Context, in Input, res *Result) {
	if u.d.Publisher == nil || len(res.Generation.OutputFiles) == 0 {
		return
	}
	files := []string{filepath.Join(in.OutDir, transcriptFile)}
	for _, a := range res.Generation.OutputFiles {
		files = append(files, a.Path)
	}
	keys, err := u.d.Publisher.Publish(ctx, in.OutDir, files)
	if err != nil {
		u.d.Logger.Warn("publish failed", slog.String("error", err.Error()))
	}
	res.Manifest.PublishedKeys = keys
}

func (u Usecase) notify(ctx context.Context, ev progress.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	u.d.Observer.Notify(ctx, ev)
}

func writeManifest(dir string, m *types.Manifest) error {
	m.GeneratedAtUTC = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), b, 0o644)
}

// IsNoSegments reports whether err means the selector produced nothing.
func IsNoSegments(err error) bool { return errors.Is(err, types.ErrNoSegments) }
