package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return fmt.Errorf("render size must be even for yuv420p, got %dx%d", c.Render.Width, c.Render.Height)
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.MaxShorts <= 0 {
		return errors.New("analysis.max_shorts must be positive")
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		return errors.New("analysis.timeout_seconds must be positive")
	}
	u, err := url.Parse(c.Analysis.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("analysis.base_url %q is not an absolute URL", c.Analysis.BaseURL)
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	switch c.Server.StoreDriver {
	case "memory":
	case "sqlite":
		if c.Server.StorePath == "" {
			return errors.New("server.store_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("server.store_driver: unsupported value %q", c.Server.StoreDriver)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}

func (c *Config) validateEvents() error {
	if c.Events.RedisAddr != "" && strings.TrimSpace(c.Events.RedisChannel) == "" {
		return errors.New("events.redis_channel is required with events.redis_addr")
	}
	if len(c.Events.KafkaBrokers) > 0 && strings.TrimSpace(c.Events.KafkaTopic) == "" {
		return errors.New("events.kafka_topic is required with events.kafka_brokers")
	}
	return nil
}
