package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/forPelevin/hlshorts/internal/domain/reframe"
	"github.com/forPelevin/hlshorts/internal/domain/subtitles"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
)

func TestRun_CreatesShortsFromAnalysis(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{asset: testAsset(tmp, 100)}
	var events []progress.Event
	uc := New(Deps{
		Video:    video,
		ASR:      fakeASR{tr: testTranscript()},
		Analyzer: fakeAnalyzer{cands: []types.RawCandidate{cand(0, 20, "Big Reveal!"), cand(30, 50, "Second/one")}},
		Observer: progress.Func(func(_ context.Context, ev progress.Event) { events = append(events, ev) }),
	})

	res, err := uc.Run(context.Background(), testInput(tmp))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	gen := res.Generation
	if !gen.Success || gen.ShortsCreated != 2 || len(gen.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", gen)
	}
	wantFiles := []string{"short_01_Big Reveal.mp4", "short_02_Secondone.mp4"}
	for i, a := range gen.OutputFiles {
		if a.Filename != wantFiles[i] {
			t.Fatalf("file %d = %q, want %q", i, a.Filename, wantFiles[i])
		}
		if a.Duration != 20 || a.Size == 0 {
			t.Fatalf("unexpected artifact: %+v", a)
		}
		if _, err := os.Stat(a.Path); err != nil {
			t.Fatalf("artifact missing: %v", err)
		}
	}

	for _, job := range video.jobs {
		if job.Width != 18 || job.Height != 32 || job.Profile != ports.EncodeFull {
			t.Fatalf("unexpected encode job: %+v", job)
		}
		if job.AudioSource == "" || job.AudioEnd-job.AudioStart != 20 {
			t.Fatalf("expected segment audio mapping, got %+v", job)
		}
	}
	if got := video.written[0]; len(got) != framesPerClip {
		t.Fatalf("expected %d frames written, got %d", framesPerClip, len(got))
	}
	for _, sz := range video.written[0] {
		if sz != image.Pt(18, 32) {
			t.Fatalf("frame written at %v, want 18x32", sz)
		}
	}

	transcript, err := os.ReadFile(filepath.Join(tmp, "out", transcriptFile))
	if err != nil || string(transcript) != testTranscript().Text {
		t.Fatalf("full transcript not saved: %q %v", transcript, err)
	}

	var m types.Manifest
	b, err := os.ReadFile(filepath.Join(tmp, "out", manifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.SegmentSource != types.SourceAnalysis || len(m.Shorts) != 2 || m.Language != "en" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if m.Shorts[0].Subtitles != 2 || m.Shorts[0].SubtitleBackend != backendOverlay {
		t.Fatalf("unexpected subtitle info: %+v", m.Shorts[0])
	}
	if m.Shorts[0].Crop != "20x36" || m.Shorts[0].Degraded {
		t.Fatalf("unexpected crop or degraded flag: %+v", m.Shorts[0])
	}
	if m.Shorts[0].ReframeFrames[reframe.StrategyDynamic] != framesPerClip {
		t.Fatalf("expected dynamic reframe on every frame, got %v", m.Shorts[0].ReframeFrames)
	}

	var percents []int
	for _, ev := range events {
		percents = append(percents, ev.Percent)
	}
	want := []int{10, 20, 50, 60, 70, 75, 85, 85, 95, 100}
	if len(percents) != len(want) {
		t.Fatalf("progress = %v, want %v", percents, want)
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Fatalf("progress = %v, want %v", percents, want)
		}
	}
}

func TestRun_FallbackWithoutAnalysis(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{asset: testAsset(tmp, 100)}
	uc := New(Deps{
		Video:    video,
		ASR:      fakeASR{tr: testTranscript()},
		Analyzer: fakeAnalyzer{err: errors.New("must not be called")},
	})

	in := testInput(tmp)
	in.UseAnalysis = false
	res, err := uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Manifest.SegmentSource != types.SourceFallback || res.Generation.ShortsCreated != 2 {
		t.Fatalf("unexpected result: %+v / %+v", res.Generation, res.Manifest)
	}
	if res.Generation.OutputFiles[1].Filename != "short_02_Short Clip 2.mp4" {
		t.Fatalf("unexpected fallback name %q", res.Generation.OutputFiles[1].Filename)
	}
}

func TestRun_NoSegments(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	uc := New(Deps{Video: &fakeVideoTool{asset: testAsset(tmp, 30)}, ASR: fakeASR{tr: testTranscript()}})

	res, err := uc.Run(context.Background(), testInput(tmp))
	if !IsNoSegments(err) {
		t.Fatalf("expected no-segments error, got %v", err)
	}
	if res.Generation.Success || len(res.Generation.Errors) != 1 || res.Generation.Errors[0] != "No suitable segments found for shorts" {
		t.Fatalf("unexpected result: %+v", res.Generation)
	}
	if _, err := os.Stat(filepath.Join(tmp, "out", transcriptFile)); err != nil {
		t.Fatalf("transcript must be saved before analysis: %v", err)
	}
}

func TestRun_FatalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		video *fakeVideoTool
		asr   fakeASR
		want  string
	}{
		{
			name:  "probe",
			video: &fakeVideoTool{probeErr: errors.New("moov atom not found")},
			asr:   fakeASR{tr: testTranscript()},
			want:  "Fatal error: open video: moov atom not found",
		},
		{
			name:  "transcribe",
			video: &fakeVideoTool{},
			asr:   fakeASR{err: errors.New("model missing")},
			want:  "Fatal error: transcribe: asr: model missing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmp := t.TempDir()
			if tt.video.probeErr == nil {
				tt.video.asset = testAsset(tmp, 100)
			}
			res, err := New(Deps{Video: tt.video, ASR: tt.asr}).Run(context.Background(), testInput(tmp))
			if err == nil || !types.IsFatal(err) {
				t.Fatalf("expected fatal error, got %v", err)
			}
			if res.Generation.Success || len(res.Generation.Errors) != 1 || res.Generation.Errors[0] != tt.want {
				t.Fatalf("errors = %q, want %q", res.Generation.Errors, tt.want)
			}
		})
	}
}

func TestRun_EncodeRetryAndSegmentFailure(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{
		asset: testAsset(tmp, 100),
		failEncode: func(job ports.EncodeJob) bool {
			// short 1 fails both profiles, short 2 only the full one.
			return strings.Contains(job.Output, "short_01") || job.Profile == ports.EncodeFull
		},
	}
	uc := New(Deps{
		Video:    video,
		ASR:      fakeASR{tr: testTranscript()},
		Analyzer: fakeAnalyzer{cands: []types.RawCandidate{cand(0, 20, "one"), cand(30, 50, "two")}},
	})

	res, err := uc.Run(context.Background(), testInput(tmp))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	gen := res.Generation
	if !gen.Success || gen.ShortsCreated != 1 || len(gen.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", gen)
	}
	if !strings.HasPrefix(gen.Errors[0], "Error creating short 1: ") {
		t.Fatalf("unexpected error message %q", gen.Errors[0])
	}
	if gen.OutputFiles[0].Filename != "short_02_two.mp4" {
		t.Fatalf("unexpected output %+v", gen.OutputFiles)
	}
	if res.Manifest.Shorts[0].EncodeProfile != string(ports.EncodeMinimal) || !res.Manifest.Shorts[0].Degraded {
		t.Fatalf("expected degraded minimal profile after retry, got %+v", res.Manifest.Shorts[0])
	}
	if len(video.jobs) != 4 {
		t.Fatalf("expected exactly one retry per short, got %d encode jobs", len(video.jobs))
	}
	if _, err := os.Stat(filepath.Join(tmp, "out", "short_01_one.mp4")); !os.IsNotExist(err) {
		t.Fatalf("failed short must not leave an output file")
	}
}

func TestRun_EmptyOutputIsEncodeFailure(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{asset: testAsset(tmp, 100), emptyOutput: true}
	uc := New(Deps{
		Video:    video,
		ASR:      fakeASR{tr: testTranscript()},
		Analyzer: fakeAnalyzer{cands: []types.RawCandidate{cand(0, 20, "one")}},
	})

	res, err := uc.Run(context.Background(), testInput(tmp))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Generation.ShortsCreated != 0 || len(res.Generation.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", res.Generation)
	}
	if !strings.Contains(res.Generation.Errors[0], "output file was not created or is empty") {
		t.Fatalf("unexpected error %q", res.Generation.Errors[0])
	}
	if len(video.jobs) != 2 {
		t.Fatalf("expected retry after empty output, got %d jobs", len(video.jobs))
	}
}

func TestRun_SubtitleBackendFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		subtitles   bool
		filter      bool
		wantBackend string
		wantASS     bool
		degraded    bool
	}{
		{name: "ass when overlay is unavailable", subtitles: true, filter: true, wantBackend: backendASS, wantASS: true, degraded: true},
		{name: "none without subtitles filter", subtitles: true, filter: false, wantBackend: backendNone, degraded: true},
		{name: "disabled", subtitles: false, filter: true, wantBackend: backendNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmp := t.TempDir()
			video := &fakeVideoTool{asset: testAsset(tmp, 100), filter: tt.filter}
			uc := New(Deps{
				Video:    video,
				ASR:      fakeASR{tr: testTranscript()},
				Analyzer: fakeAnalyzer{cands: []types.RawCandidate{cand(0, 20, "one")}},
			})
			uc.newOverlay = func() (*subtitles.Overlay, error) { return nil, errors.New("no font") }

			in := testInput(tmp)
			in.Subtitles = tt.subtitles
			res, err := uc.Run(context.Background(), in)
			if err != nil || res.Generation.ShortsCreated != 1 {
				t.Fatalf("run: %v %+v", err, res.Generation)
			}
			if got := res.Manifest.Shorts[0].SubtitleBackend; got != tt.wantBackend {
				t.Fatalf("backend = %q, want %q", got, tt.wantBackend)
			}
			if got := res.Manifest.Shorts[0].Degraded; got != tt.degraded {
				t.Fatalf("degraded = %v, want %v", got, tt.degraded)
			}
			burn := video.jobs[0].BurnASS
			if tt.wantASS != (burn != "") {
				t.Fatalf("unexpected BurnASS %q", burn)
			}
			if tt.wantASS {
				b, err := os.ReadFile(burn)
				if err != nil || !strings.Contains(string(b), "Dialogue:") {
					t.Fatalf("ass script not written: %v", err)
				}
			}
		})
	}
}

func TestRun_NoAudioTrack(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	asset := testAsset(tmp, 100)
	asset.HasAudio = false
	video := &fakeVideoTool{asset: asset}
	uc := New(Deps{
		Video:    video,
		ASR:      fakeASR{tr: testTranscript()},
		Analyzer: fakeAnalyzer{cands: []types.RawCandidate{cand(0, 20, "one")}},
	})
	if _, err := uc.Run(context.Background(), testInput(tmp)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if video.jobs[0].AudioSource != "" {
		t.Fatalf("audio must not be mapped for a silent source")
	}
}

func TestShortFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		idx   int
		title string
		want  string
	}{
		{1, "Hello, World!", "short_01_Hello World.mp4"},
		{2, "a/b\\c:d", "short_02_abcd.mp4"},
		{3, "trailing  ", "short_03_trailing.mp4"},
		{4, "Café déjà_vu-2", "short_04_Café déjà_vu-2.mp4"},
		{5, "", "short_05_.mp4"},
		{12, strings.Repeat("x", 60), "short_12_" + strings.Repeat("x", 50) + ".mp4"},
	}
	for _, tt := range tests {
		if got := ShortFilename(tt.idx, tt.title); got != tt.want {
			t.Fatalf("ShortFilename(%d, %q) = %q, want %q", tt.idx, tt.title, got, tt.want)
		}
	}
}

const framesPerClip = 5

func testAsset(dir string, duration float64) types.VideoAsset {
	return types.VideoAsset{
		Path:     filepath.Join(dir, "in.mp4"),
		Duration: duration,
		Width:    64,
		Height:   36,
		FPS:      10,
		HasAudio: true,
	}
}

func testInput(dir string) Input {
	return Input{
		InputPath:      filepath.Join(dir, "in.mp4"),
		OutDir:         filepath.Join(dir, "out"),
		CacheDir:       filepath.Join(dir, "cache"),
		MaxShorts:      5,
		UseAnalysis:    true,
		Subtitles:      true,
		Target:         reframe.Size{W: 18, H: 32},
		TargetLanguage: "en",
	}
}

func testTranscript() types.Transcript {
	return types.Transcript{
		Language: "en",
		Text:     "hello world this is a test",
		Segments: []types.TranscriptCue{
			{Start: 1, End: 3, Text: "hello world"},
			{Start: 5, End: 8, Text: "this is"},
			{Start: 31, End: 33, Text: "a test"},
		},
	}
}

func cand(start, end float64, title string) types.RawCandidate {
	return types.RawCandidate{StartTime: &start, EndTime: &end, Title: title, Topic: "topic", EngagementScore: 8}
}

type fakeASR struct {
	tr  types.Transcript
	err error
}

func (f fakeASR) Transcribe(context.Context, string, string) (types.Transcript, error) {
	return f.tr, f.err
}

type fakeAnalyzer struct {
	cands []types.RawCandidate
	err   error
}

func (f fakeAnalyzer) Analyze(context.Context, string, float64) ([]types.RawCandidate, error) {
	return f.cands, f.err
}

type fakeVideoTool struct {
	asset       types.VideoAsset
	probeErr    error
	filter      bool
	emptyOutput bool
	failEncode  func(ports.EncodeJob) bool

	mu      sync.Mutex
	jobs    []ports.EncodeJob
	written [][]image.Point
}

func (f *fakeVideoTool) Probe(context.Context, string) (types.VideoAsset, error) {
	return f.asset, f.probeErr
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	return os.WriteFile(outWav, []byte("RIFF"), 0o644)
}

func (f *fakeVideoTool) OpenFrames(_ context.Context, asset types.VideoAsset, _, _ float64) (ports.FrameSource, error) {
	return &fakeSource{w: asset.Width, h: asset.Height, n: framesPerClip}, nil
}

func (f *fakeVideoTool) NewEncoder(_ context.Context, job ports.EncodeJob) (ports.FrameSink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	f.written = append(f.written, nil)
	return &fakeSink{
		tool: f,
		slot: len(f.written) - 1,
		job:  job,
		fail: f.failEncode != nil && f.failEncode(job),
	}, nil
}

func (f *fakeVideoTool) SupportsFilter(context.Context, string) bool { return f.filter }

type fakeSource struct {
	w, h, n int
	served  int
}

func (s *fakeSource) Next() (*image.RGBA, error) {
	if s.served >= s.n {
		return nil, io.EOF
	}
	s.served++
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	for i := range img.Pix {
		img.Pix[i] = uint8(s.served * 10)
	}
	return img, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeSink struct {
	tool *fakeVideoTool
	slot int
	job  ports.EncodeJob
	fail bool
}

func (s *fakeSink) WriteFrame(img *image.RGBA) error {
	s.tool.mu.Lock()
	defer s.tool.mu.Unlock()
	s.tool.written[s.slot] = append(s.tool.written[s.slot], img.Bounds().Size())
	return nil
}

func (s *fakeSink) Close() error {
	if s.fail {
		return errors.New("encoder exited with status 1")
	}
	var data []byte
	if !s.tool.emptyOutput {
		data = []byte("mp4")
	}
	return os.WriteFile(s.job.Output, data, 0o644)
}
