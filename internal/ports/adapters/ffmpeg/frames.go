package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

const stderrTail = 4 << 10

// decodeArgs decodes [start, end) of the first video stream to raw RGBA on
// stdout at a constant frame rate.
func decodeArgs(asset types.VideoAsset, start, end float64) []string {
	out := ffmpeg.KwArgs{"f": "rawvideo", "pix_fmt": "rgba"}
	if asset.FPS > 0 {
		out["r"] = fmtRate(asset.FPS)
	}
	return ffmpeg.Input(asset.Path, ffmpeg.KwArgs{"ss": fmtSeconds(start), "to": fmtSeconds(end)}).
		Video().
		Output("pipe:", out).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		GetArgs()
}

// encodeArgs reads raw RGBA frames from stdin and writes job.Output, muxing
// the audio range when one is given.
func encodeArgs(job ports.EncodeJob) []string {
	video := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", job.Width, job.Height),
		"framerate": fmtRate(job.FPS),
	})
	if job.BurnASS != "" {
		video = video.Filter("subtitles", ffmpeg.Args{job.BurnASS})
	}

	streams := []*ffmpeg.Stream{video}
	if job.AudioSource != "" {
		audio := ffmpeg.Input(job.AudioSource, ffmpeg.KwArgs{
			"ss": fmtSeconds(job.AudioStart),
			"to": fmtSeconds(job.AudioEnd),
		}).Audio()
		streams = append(streams, audio)
	}

	out := ffmpeg.KwArgs{"pix_fmt": "yuv420p"}
	if job.Profile == ports.EncodeFull {
		out["c:v"] = "libx264"
		out["preset"] = "veryfast"
		out["crf"] = 18
		out["movflags"] = "+faststart"
		if job.AudioSource != "" {
			out["c:a"] = "aac"
			out["b:a"] = "192k"
		}
	}
	return ffmpeg.Output(streams, job.Output, out).
		OverWriteOutput().
		GlobalArgs("-hide_banner", "-loglevel", "error").
		GetArgs()
}

func fmtRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

func (a *Adapter) OpenFrames(ctx context.Context, asset types.VideoAsset, start, end float64) (ports.FrameSource, error) {
	if asset.Width <= 0 || asset.Height <= 0 {
		return nil, fmt.Errorf("open frames: unknown frame size %dx%d", asset.Width, asset.Height)
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, a.ffmpeg, decodeArgs(asset, start, end)...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}
	return &frameReader{
		cmd:    cmd,
		cancel: cancel,
		r:      stdout,
		stderr: stderr,
		frame:  image.NewRGBA(image.Rect(0, 0, asset.Width, asset.Height)),
	}, nil
}

type frameReader struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	r      io.Reader
	stderr *tailBuffer
	frame  *image.RGBA
	eof    bool

	once sync.Once
	err  error
}

func (f *frameReader) Next() (*image.RGBA, error) {
	if f.eof {
		return nil, io.EOF
	}
	_, err := io.ReadFull(f.r, f.frame.Pix)
	switch {
	case err == nil:
		return f.frame, nil
	case errors.Is(err, io.EOF):
		f.eof = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// A trailing partial frame is dropped.
		f.eof = true
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

// Close stops the decoder. It reports a decoder failure only when the whole
// stream was consumed; an early close is not an error.
func (f *frameReader) Close() error {
	f.once.Do(func() {
		if !f.eof {
			f.cancel()
			_ = f.cmd.Wait()
			return
		}
		if err := f.cmd.Wait(); err != nil {
			f.err = fmt.Errorf("ffmpeg decode: %w\n%s", err, f.stderr.String())
		}
		f.cancel()
	})
	return f.err
}

func (a *Adapter) NewEncoder(ctx context.Context, job ports.EncodeJob) (ports.FrameSink, error) {
	if job.Width <= 0 || job.Height <= 0 || job.FPS <= 0 {
		return nil, fmt.Errorf("encode %s: invalid geometry %dx%d@%v", job.Output, job.Width, job.Height, job.FPS)
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, encodeArgs(job)...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encode: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode: %w", err)
	}
	return &frameWriter{cmd: cmd, w: stdin, stderr: stderr, size: image.Pt(job.Width, job.Height)}, nil
}

type frameWriter struct {
	cmd    *exec.Cmd
	w      io.WriteCloser
	stderr *tailBuffer
	size   image.Point

	once sync.Once
	err  error
}

func (f *frameWriter) WriteFrame(img *image.RGBA) error {
	if img.Bounds().Size() != f.size {
		return fmt.Errorf("frame size %v, encoder expects %v", img.Bounds().Size(), f.size)
	}
	if _, err := f.w.Write(packed(img)); err != nil {
		return fmt.Errorf("write frame: %w\n%s", err, f.stderr.String())
	}
	return nil
}

func (f *frameWriter) Close() error {
	f.once.Do(func() {
		closeErr := f.w.Close()
		if err := f.cmd.Wait(); err != nil {
			f.err = fmt.Errorf("ffmpeg encode: %w\n%s", err, f.stderr.String())
			return
		}
		if closeErr != nil {
			f.err = fmt.Errorf("ffmpeg encode: %w", closeErr)
		}
	})
	return f.err
}

// packed returns the pixel bytes without row padding.
func packed(img *image.RGBA) []byte {
	b := img.Bounds()
	row := b.Dx() * 4
	if img.Stride == row && b.Min == (image.Point{}) {
		return img.Pix[:row*b.Dy()]
	}
	out := make([]byte, 0, row*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[off:off+row]...)
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
