package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string

	mu      sync.Mutex
	filters map[string]bool
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

var _ ports.VideoTool = (*Adapter)(nil)

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	args := ffmpeg.Input(in).
		Audio().
		Output(outWav, ffmpeg.KwArgs{"ac": 1, "ar": 16000, "f": "wav"}).
		OverWriteOutput().
		GetArgs()
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

type probeSideData struct {
	Rotation float64 `json:"rotation"`
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideData []probeSideData `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration, first video stream geometry and frame rate, and
// whether any audio stream exists.
func (a *Adapter) Probe(ctx context.Context, path string) (types.VideoAsset, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return types.VideoAsset{}, fmt.Errorf("ffprobe: %w\n%s", err, stderr.String())
	}
	asset, err := parseProbe(b)
	if err != nil {
		return types.VideoAsset{}, err
	}
	asset.Path = path
	return asset, nil
}

func parseProbe(b []byte) (types.VideoAsset, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.VideoAsset{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var asset types.VideoAsset
	video := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if video {
				continue
			}
			video = true
			asset.Width, asset.Height = s.Width, s.Height
			// ffmpeg autorotates on decode, so frames arrive in display
			// orientation.
			if quarterTurn(rotation(s.Tags.Rotate, s.SideData)) {
				asset.Width, asset.Height = asset.Height, asset.Width
			}
			asset.FPS = parseRate(s.AvgFrameRate)
			if asset.FPS <= 0 {
				asset.FPS = parseRate(s.RFrameRate)
			}
		case "audio":
			asset.HasAudio = true
		}
	}
	if !video || asset.Width <= 0 || asset.Height <= 0 {
		return types.VideoAsset{}, fmt.Errorf("no video stream found")
	}

	s := strings.TrimSpace(out.Format.Duration)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return types.VideoAsset{}, fmt.Errorf("parse duration %q: %w", s, err)
	}
	asset.Duration = sec
	return asset, nil
}

// rotation prefers the display matrix side data over the legacy rotate tag.
func rotation(tag string, sideData []probeSideData) float64 {
	for _, sd := range sideData {
		if sd.Rotation != 0 {
			return sd.Rotation
		}
	}
	deg, err := strconv.ParseFloat(strings.TrimSpace(tag), 64)
	if err != nil {
		return 0
	}
	return deg
}

func quarterTurn(deg float64) bool {
	r := math.Mod(math.Abs(math.Round(deg)), 180)
	return r == 90
}

// parseRate parses ffprobe rationals like "30000/1001". Zero means unknown.
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n < 0 {
		return 0
	}
	return n / d
}

// SupportsFilter reports whether the ffmpeg build lists the named filter.
// Results are cached per adapter.
func (a *Adapter) SupportsFilter(ctx context.Context, name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filters == nil {
		out, err := exec.CommandContext(ctx, a.ffmpeg, "-hide_banner", "-filters").Output()
		if err != nil {
			return false
		}
		a.filters = parseFilters(out)
	}
	return a.filters[name]
}

func parseFilters(out []byte) map[string]bool {
	m := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// " T.. subtitles         V->V       Render text subtitles ..."
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		m[fields[1]] = true
	}
	return m
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
