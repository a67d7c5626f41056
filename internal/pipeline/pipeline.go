package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/hlshorts/internal/config"
	"github.com/forPelevin/hlshorts/internal/domain/reframe"
	"github.com/forPelevin/hlshorts/internal/logging"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/kafkabus"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/openrouter"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/redisbus"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/s3store"
	"github.com/forPelevin/hlshorts/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/usecase"
)

// Pipeline holds the adapters built from config. One Pipeline serves any
// number of sequential or concurrent runs.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	video      ports.VideoTool
	asr        ports.ASR
	analyzer   ports.Analyzer
	translator ports.Translator
	publisher  *s3store.Publisher
	events     []progress.Observer
	closers    []func() error

	now func() time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		video:  ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe),
		asr:    whispercpp.New(cfg.Tools.WhisperBin, cfg.Tools.WhisperModel),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if cfg.Analysis.APIKey != "" && (cfg.Analysis.Enabled || cfg.Translation.Enabled) {
		if err := openrouter.ValidateBaseURL(cfg.Analysis.BaseURL, cfg.Analysis.AllowedHosts); err != nil {
			return nil, err
		}
		llm := openrouter.New(
			cfg.Analysis.APIKey,
			cfg.Analysis.Model,
			cfg.Analysis.BaseURL,
			time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second,
		)
		if cfg.AnalysisAvailable() {
			p.analyzer = llm
		}
		if cfg.Translation.Enabled {
			p.translator = llm
		}
		logger.Debug("openrouter configured",
			slog.String("model", cfg.Analysis.Model),
			slog.String("api_key", logging.SanitizeToken(cfg.Analysis.APIKey)),
			slog.Bool("analysis", p.analyzer != nil),
			slog.Bool("translation", p.translator != nil),
		)
	}

	if cfg.Storage.S3Bucket != "" {
		pub, err := s3store.New(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, cfg.Storage.S3Region)
		if err != nil {
			return nil, err
		}
		p.publisher = pub
	}

	events := logging.WithComponent(logger, "events")
	if cfg.Events.RedisAddr != "" {
		obs, closeFn := redisbus.New(cfg.Events.RedisAddr, cfg.Events.RedisChannel, events)
		p.events = append(p.events, obs)
		p.closers = append(p.closers, closeFn)
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		obs, err := kafkabus.New(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, events)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.events = append(p.events, obs)
		p.closers = append(p.closers, obs.Close)
	}
	return p, nil
}

// Close releases event transports.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// AnalysisEnabled reports whether runs can ask the LLM for segments.
func (p *Pipeline) AnalysisEnabled() bool { return p.analyzer != nil }

type Request struct {
	InputPath string
	// OutDir is used as is when set. Otherwise a fresh run directory is
	// created under OutRoot, or under the configured output dir.
	OutDir  string
	OutRoot string
	// Session stamps progress events and scopes published objects.
	Session string
	// MaxShorts <= 0 means the configured default.
	MaxShorts   int
	UseAnalysis bool
	Observer    progress.Observer
}

func (r Request) Validate() error {
	if r.InputPath == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(r.InputPath); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if r.MaxShorts < 0 {
		return fmt.Errorf("max shorts must be >= 0")
	}
	return nil
}

type Outcome struct {
	usecase.Result
	OutDir string
}

// Run generates shorts for one input. The outcome is filled even when an
// error is returned so callers can report the batch errors.
func (p *Pipeline) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	logger := p.logger
	if req.Session != "" {
		logger = logging.WithSession(logger, req.Session)
	}

	outDir := req.OutDir
	if outDir == "" {
		root := req.OutRoot
		if root == "" {
			root = p.cfg.Paths.OutDir
		}
		if root == "" {
			root = "out"
		}
		outDir = buildRunOutDir(root, req.InputPath, p.now())
	}
	cacheDir := runCacheDir(p.cfg.Paths.CacheDir, req.InputPath, outDir)
	logger.Info("preparing workspace", slog.String("out", outDir), slog.String("cache", cacheDir))

	maxShorts := req.MaxShorts
	if maxShorts <= 0 {
		maxShorts = p.cfg.Analysis.MaxShorts
	}
	useAnalysis := req.UseAnalysis && p.analyzer != nil
	if req.UseAnalysis && p.analyzer == nil {
		logger.Info("analysis not configured, fallback segments will be used")
	}

	observers := append([]progress.Observer{progress.Log(logging.WithComponent(logger, "progress"))}, p.events...)
	observers = append(observers, req.Observer)
	obs := progress.Multi(observers...)
	if req.Session != "" {
		obs = progress.WithSession(obs, req.Session)
	}

	deps := usecase.Deps{
		Video:      p.video,
		ASR:        p.asr,
		Analyzer:   p.analyzer,
		Translator: p.translator,
		Observer:   obs,
		Logger:     logging.WithComponent(logger, "usecase"),
	}
	if p.publisher != nil {
		deps.Publisher = p.publisher.Under(req.Session)
	}

	res, err := usecase.New(deps).Run(ctx, usecase.Input{
		InputPath:      req.InputPath,
		OutDir:         outDir,
		CacheDir:       cacheDir,
		MaxShorts:      maxShorts,
		UseAnalysis:    useAnalysis,
		Subtitles:      p.cfg.Render.Subtitles,
		Target:         reframe.Size{W: p.cfg.Render.Width, H: p.cfg.Render.Height},
		TargetLanguage: p.cfg.Translation.TargetLanguage,
	})
	out := Outcome{Result: res, OutDir: outDir}
	if err != nil {
		return out, err
	}
	logger.Info("run finished",
		slog.Int("shorts", res.Generation.ShortsCreated),
		slog.Int("errors", len(res.Generation.Errors)),
		slog.String("out", outDir),
	)
	return out, nil
}

// runCacheDir gives every run its own scratch dir so concurrent runs over
// the same input never share audio or subtitle files.
func runCacheDir(base, inputPath, outDir string) string {
	if base == "" {
		base = ".cache"
	}
	return filepath.Join(base, "runs", hash(inputPath+"|"+filepath.Clean(outDir)))
}

func buildRunOutDir(outRoot, inputPath string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", inputPath, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.Analyzer = (*openrouter.Adapter)(nil)
var _ ports.Translator = (*openrouter.Adapter)(nil)
var _ ports.Publisher = (*s3store.Publisher)(nil)
