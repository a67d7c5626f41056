package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/forPelevin/hlshorts/internal/domain/highlights"
	"github.com/forPelevin/hlshorts/internal/domain/reframe"
	"github.com/forPelevin/hlshorts/internal/domain/subtitles"
	"github.com/forPelevin/hlshorts/internal/fallback"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

const (
	maxTitleRunes = 50
	defaultFPS    = 30.0

	backendOverlay = "overlay"
	backendASS     = "ass"
	backendNone    = "none"
)

type captions struct {
	overlay *subtitles.Overlay
	assPath string
}

type clipStats struct {
	frames       int
	reframe      map[string]int
	crop         reframe.Size
	overlayFails int
	bytes        int64
}

func (u Usecase) renderSegment(
	ctx context.Context,
	engine *reframe.Engine,
	asset types.VideoAsset,
	seg types.CandidateSegment,
	idx int,
	cues []types.TranscriptCue,
	in Input,
) (types.OutputArtifact, types.ManifestShort, error) {
	filename := ShortFilename(idx, seg.Title)
	out := filepath.Join(in.OutDir, filename)

	segCues := subtitles.ForSegment(cues, seg.StartTime, seg.EndTime)
	backend, capt, captDegraded := u.pickCaptions(ctx, engine.Target(), segCues, in, idx)

	enc := fallback.Try(
		fallback.Strategy[clipStats]{Name: string(ports.EncodeFull), Run: func() (clipStats, error) {
			return u.renderClip(ctx, engine, asset, seg, out, ports.EncodeFull, segCues, capt)
		}},
		fallback.Strategy[clipStats]{Name: string(ports.EncodeMinimal), Run: func() (clipStats, error) {
			return u.renderClip(ctx, engine, asset, seg, out, ports.EncodeMinimal, segCues, capt)
		}},
	)
	for _, f := range enc.Failures {
		u.d.Logger.Warn("encode attempt failed",
			slog.Int("short", idx),
			slog.String("profile", f.Strategy),
			slog.String("error", f.Err.Error()),
		)
	}
	if !enc.OK() {
		_ = os.Remove(out)
		return types.OutputArtifact{}, types.ManifestShort{}, enc.Err()
	}
	st := enc.Value
	degraded := captDegraded || enc.Degraded()
	if degraded {
		u.d.Logger.Info("short rendered with fallbacks",
			slog.Int("short", idx),
			slog.String("subtitles", backend),
			slog.String("profile", enc.Strategy),
		)
	}
	if st.overlayFails > 0 {
		u.d.Logger.Warn("caption overlay skipped on some frames", slog.Int("short", idx), slog.Int("frames", st.overlayFails))
	}

	dur := seg.EndTime - seg.StartTime
	sc := highlights.ScoreCues(segCues)
	art := types.OutputArtifact{
		Filename: filename,
		Path:     out,
		Title:    seg.Title,
		Duration: dur,
		Topic:    seg.Topic,
		Size:     st.bytes,
	}
	short := types.ManifestShort{
		Index:           idx,
		File:            filename,
		Title:           seg.Title,
		Topic:           seg.Topic,
		StartSec:        seg.StartTime,
		EndSec:          seg.EndTime,
		EngagementScore: seg.EngagementScore,
		InfoScore:       sc.Info,
		HookScore:       sc.Hook,
		PaceWPM:         sc.Pace,
		Subtitles:       len(segCues),
		SubtitleBackend: backend,
		EncodeProfile:   enc.Strategy,
		Degraded:        degraded,
		Crop:            st.crop.String(),
		ReframeFrames:   st.reframe,
		Bytes:           st.bytes,
	}
	u.d.Logger.Info("short created",
		slog.Int("short", idx),
		slog.String("file", filename),
		slog.Float64("duration_sec", dur),
		slog.String("subtitles", backend),
		slog.String("profile", enc.Strategy),
		slog.Int("frames", st.frames),
	)
	return art, short, nil
}

// pickCaptions chooses how captions reach the frames: the in-process overlay,
// an ASS script burned by the encoder, or nothing. The flag reports whether a
// preferred backend was skipped.
func (u Usecase) pickCaptions(ctx context.Context, target reframe.Size, cues []types.SubtitleCue, in Input, idx int) (string, captions, bool) {
	if !in.Subtitles || len(cues) == 0 {
		return backendNone, captions{}, false
	}
	out := fallback.Try(
		fallback.Strategy[captions]{Name: backendOverlay, Run: func() (captions, error) {
			ov, err := u.newOverlay()
			if err != nil {
				return captions{}, err
			}
			return captions{overlay: ov}, nil
		}},
		fallback.Strategy[captions]{Name: backendASS, Run: func() (captions, error) {
			if !u.d.Video.SupportsFilter(ctx, "subtitles") {
				return captions{}, errors.New("encoder has no subtitles filter")
			}
			path := filepath.Join(in.CacheDir, fmt.Sprintf("short_%02d.ass", idx))
			if err := os.WriteFile(path, []byte(subtitles.RenderASS(cues, target.W, target.H)), 0o644); err != nil {
				return captions{}, fmt.Errorf("write ass: %w", err)
			}
			return captions{assPath: path}, nil
		}},
		fallback.Strategy[captions]{Name: backendNone, Run: func() (captions, error) {
			return captions{}, nil
		}},
	)
	for _, f := range out.Failures {
		u.d.Logger.Warn("subtitle backend unavailable",
			slog.Int("short", idx),
			slog.String("backend", f.Strategy),
			slog.String("error", f.Err.Error()),
		)
	}
	return out.Strategy, out.Value, out.Degraded()
}

// renderClip runs one full decode, reframe, caption and encode pass. A clip
// is only accepted once the output exists and is non-empty.
func (u Usecase) renderClip(
	ctx context.Context,
	engine *reframe.Engine,
	asset types.VideoAsset,
	seg types.CandidateSegment,
	out string,
	profile ports.EncodeProfile,
	cues []types.SubtitleCue,
	capt captions,
) (clipStats, error) {
	var st clipStats
	dur := seg.EndTime - seg.StartTime
	clip, err := engine.ForClip(reframe.Size{W: asset.Width, H: asset.Height}, dur)
	if err != nil {
		return st, types.RenderError("reframe", err)
	}

	fps := asset.FPS
	if fps <= 0 {
		fps = defaultFPS
	}

	src, err := u.d.Video.OpenFrames(ctx, asset, seg.StartTime, seg.EndTime)
	if err != nil {
		return st, types.RenderError("extract", err)
	}
	defer src.Close()

	job := ports.EncodeJob{
		Output:  out,
		Width:   engine.Target().W,
		Height:  engine.Target().H,
		FPS:     fps,
		Profile: profile,
		BurnASS: capt.assPath,
	}
	if asset.HasAudio {
		job.AudioSource = asset.Path
		job.AudioStart = seg.StartTime
		job.AudioEnd = seg.EndTime
	}
	sink, err := u.d.Video.NewEncoder(ctx, job)
	if err != nil {
		return st, types.RenderError("encode", err)
	}

	// Captions are rebuilt per attempt so a retry does not reuse a block
	// cached by a failed pass.
	var renderer *subtitles.CueRenderer
	if capt.overlay != nil {
		renderer = capt.overlay.ForCues(cues)
	}

	abort := func(op string, err error) (clipStats, error) {
		_ = sink.Close()
		_ = os.Remove(out)
		return st, types.RenderError(op, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return abort("encode", err)
		}
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return abort("decode", err)
		}
		t := float64(st.frames) / fps
		dst, _, err := clip.Frame(frame, t)
		if err != nil {
			return abort("reframe", err)
		}
		if renderer != nil {
			if err := renderer.Apply(dst, t); err != nil {
				st.overlayFails++
			}
		}
		if err := sink.WriteFrame(dst); err != nil {
			return abort("encode", err)
		}
		st.frames++
	}
	if err := src.Close(); err != nil {
		return abort("decode", err)
	}
	if st.frames == 0 {
		return abort("decode", errors.New("no frames decoded"))
	}
	if err := sink.Close(); err != nil {
		_ = os.Remove(out)
		return st, types.RenderError("encode", err)
	}

	fi, err := os.Stat(out)
	if err != nil || fi.Size() == 0 {
		return st, types.RenderError("verify", fmt.Errorf("output file was not created or is empty: %s", out))
	}
	st.bytes = fi.Size()
	st.reframe = clip.Counts()
	st.crop = clip.Trajectory().Crop
	return st, nil
}

// ShortFilename names the idx-th short after its title. Only letters, digits,
// spaces, hyphens and underscores survive; the result is right-trimmed and
// cut to 50 runes.
func ShortFilename(idx int, title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	if rs := []rune(safe); len(rs) > maxTitleRunes {
		safe = string(rs[:maxTitleRunes])
	}
	return fmt.Sprintf("short_%02d_%s.mp4", idx, safe)
}
