// Package config loads hlshorts settings from TOML, .env-provided
// environment variables, and defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

type Paths struct {
	OutDir   string `toml:"out_dir"`
	CacheDir string `toml:"cache_dir"`
	// SessionsDir holds uploads and outputs of API sessions.
	SessionsDir string `toml:"sessions_dir"`
	LogFile     string `toml:"log_file"`
}

type Tools struct {
	FFmpeg       string `toml:"ffmpeg"`
	FFprobe      string `toml:"ffprobe"`
	WhisperBin   string `toml:"whisper_bin"`
	WhisperModel string `toml:"whisper_model"`
}

type Analysis struct {
	Enabled        bool     `toml:"enabled"`
	APIKey         string   `toml:"api_key"`
	Model          string   `toml:"model"`
	BaseURL        string   `toml:"base_url"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxShorts      int      `toml:"max_shorts"`
}

type Translation struct {
	Enabled        bool   `toml:"enabled"`
	TargetLanguage string `toml:"target_language"`
}

type Render struct {
	Width     int  `toml:"width"`
	Height    int  `toml:"height"`
	Subtitles bool `toml:"subtitles"`
}

type Server struct {
	Addr string `toml:"addr"`
	// MaxUploadMB caps multipart uploads.
	MaxUploadMB int64  `toml:"max_upload_mb"`
	StoreDriver string `toml:"store_driver"`
	StorePath   string `toml:"store_path"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Storage struct {
	S3Bucket string `toml:"s3_bucket"`
	S3Prefix string `toml:"s3_prefix"`
	S3Region string `toml:"s3_region"`
}

type Events struct {
	RedisAddr    string   `toml:"redis_addr"`
	RedisChannel string   `toml:"redis_channel"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

type Config struct {
	Paths       Paths       `toml:"paths"`
	Tools       Tools       `toml:"tools"`
	Analysis    Analysis    `toml:"analysis"`
	Translation Translation `toml:"translation"`
	Render      Render      `toml:"render"`
	Server      Server      `toml:"server"`
	Logging     Logging     `toml:"logging"`
	Storage     Storage     `toml:"storage"`
	Events      Events      `toml:"events"`
}

// Load reads path when it exists, overlays environment variables, and
// validates the result. A missing file is not an error; the returned bool
// reports whether one was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, false, err
		}
		b, err := os.ReadFile(expanded)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("open config: %w", err)
		default:
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
			exists = true
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.normalize(); err != nil {
		return nil, exists, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, exists, err
	}
	return &cfg, exists, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("OPENROUTER_API_KEY"); ok && strings.TrimSpace(v) != "" {
		c.Analysis.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("OPENROUTER_MODEL"); ok && strings.TrimSpace(v) != "" {
		c.Analysis.Model = strings.TrimSpace(v)
	}
	if v, ok := lookup("OPENROUTER_BASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.Analysis.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("OPENROUTER_ALLOWED_HOSTS"); ok && strings.TrimSpace(v) != "" {
		c.Analysis.AllowedHosts = splitList(v)
	}
	if v, ok := lookup("HLSHORTS_S3_BUCKET"); ok && strings.TrimSpace(v) != "" {
		c.Storage.S3Bucket = strings.TrimSpace(v)
	}
	if v, ok := lookup("HLSHORTS_REDIS_ADDR"); ok && strings.TrimSpace(v) != "" {
		c.Events.RedisAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("HLSHORTS_KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		c.Events.KafkaBrokers = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AnalysisAvailable reports whether an analysis collaborator can be built.
func (c *Config) AnalysisAvailable() bool {
	return c.Analysis.Enabled && c.Analysis.APIKey != ""
}

// EnsureDirectories creates the output, cache and session directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutDir, c.Paths.CacheDir, c.Paths.SessionsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath applies the config path rules to an arbitrary value.
func ExpandPath(pathValue string) (string, error) { return expandPath(pathValue) }

// DefaultConfigPath is used when --config is not given.
func DefaultConfigPath() string { return "hlshorts.toml" }

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
