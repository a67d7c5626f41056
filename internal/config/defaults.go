package config

const (
	DefaultModel    = "openai/gpt-4o-mini"
	DefaultBaseURL  = "https://openrouter.ai"
	DefaultMaxShort = 3
)

func Default() Config {
	return Config{
		Paths: Paths{
			OutDir:      "out",
			CacheDir:    ".cache/hlshorts",
			SessionsDir: "sessions",
		},
		Tools: Tools{
			FFmpeg:       "ffmpeg",
			FFprobe:      "ffprobe",
			WhisperBin:   ".cache/bin/whisper.cpp",
			WhisperModel: ".cache/models/ggml-base.bin",
		},
		Analysis: Analysis{
			Enabled:        true,
			Model:          DefaultModel,
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: 120,
			MaxShorts:      DefaultMaxShort,
		},
		Translation: Translation{Enabled: true, TargetLanguage: "en"},
		Render:      Render{Width: 1080, Height: 1920, Subtitles: true},
		Server: Server{
			Addr:        ":5000",
			MaxUploadMB: 500,
			StoreDriver: "memory",
			StorePath:   "sessions/sessions.db",
		},
		Logging: Logging{Level: "info", Format: "auto"},
		Events:  Events{RedisChannel: "hlshorts:progress", KafkaTopic: "hlshorts.progress"},
	}
}
