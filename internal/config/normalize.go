package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	for _, p := range []struct {
		name string
		v    *string
	}{
		{"paths.out_dir", &c.Paths.OutDir},
		{"paths.cache_dir", &c.Paths.CacheDir},
		{"paths.sessions_dir", &c.Paths.SessionsDir},
		{"paths.log_file", &c.Paths.LogFile},
		{"tools.whisper_bin", &c.Tools.WhisperBin},
		{"tools.whisper_model", &c.Tools.WhisperModel},
		{"server.store_path", &c.Server.StorePath},
	} {
		if *p.v, err = expandPath(strings.TrimSpace(*p.v)); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}

	c.Analysis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.BaseURL), "/")
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(c.Analysis.Model) == "" {
		c.Analysis.Model = DefaultModel
	}
	c.Translation.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Translation.TargetLanguage))
	if c.Translation.TargetLanguage == "" {
		c.Translation.TargetLanguage = "en"
	}
	c.Server.StoreDriver = strings.ToLower(strings.TrimSpace(c.Server.StoreDriver))
	if c.Server.StoreDriver == "" {
		c.Server.StoreDriver = "memory"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
	c.Storage.S3Prefix = strings.Trim(strings.TrimSpace(c.Storage.S3Prefix), "/")
	return nil
}
