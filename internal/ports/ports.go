package ports

import (
	"context"
	"image"

	"github.com/forPelevin/hlshorts/internal/types"
)

// VideoTool wraps the media toolchain.
type VideoTool interface {
	Probe(ctx context.Context, path string) (types.VideoAsset, error)
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	// OpenFrames decodes [start, end) of the asset as RGBA frames at the
	// asset's native size and frame rate.
	OpenFrames(ctx context.Context, asset types.VideoAsset, start, end float64) (FrameSource, error)
	NewEncoder(ctx context.Context, job EncodeJob) (FrameSink, error)
	SupportsFilter(ctx context.Context, name string) bool
}

// FrameSource yields decoded frames. Next returns io.EOF after the last frame.
// The returned image is only valid until the next call.
type FrameSource interface {
	Next() (*image.RGBA, error)
	Close() error
}

// FrameSink consumes frames of exactly the job's size. Close finishes the
// container and reports any encoder failure.
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

type EncodeProfile string

const (
	// EncodeFull is libx264/aac with explicit quality settings.
	EncodeFull EncodeProfile = "full"
	// EncodeMinimal leaves codec choices to the encoder defaults.
	EncodeMinimal EncodeProfile = "minimal"
)

type EncodeJob struct {
	Output  string
	Width   int
	Height  int
	FPS     float64
	Profile EncodeProfile

	// AudioSource, when set, is muxed from [AudioStart, AudioEnd).
	AudioSource string
	AudioStart  float64
	AudioEnd    float64

	// BurnASS is an optional subtitle script burned in by the encoder.
	BurnASS string
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string, duration float64) ([]types.RawCandidate, error)
}

type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Publisher copies finished artifacts to remote storage and returns the
// object keys it wrote.
type Publisher interface {
	Publish(ctx context.Context, runDir string, files []string) ([]string, error)
}
