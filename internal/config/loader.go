package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai"},
	"tts":   {"elevenlabs"},
	"ttm":   {"elevenlabs"},
	"audio": {"ffmpeg"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("ttm", cfg.Providers.TTM.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Provider availability warnings. Validation stays soft here so thin
	// clients can load the file; the serve command refuses to start without
	// the generation providers.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; productions will fail at the script stage")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; productions will fail at the voice stage")
	}
	if cfg.Providers.TTM.Name == "" {
		slog.Warn("providers.ttm is not configured; productions will fail at the music stage")
	}

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; using in-memory stores, productions will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// ApplyEnv overlays environment variables onto cfg. Environment values take
// precedence over file values so deployments can inject secrets without
// writing them to disk.
//
//	UPLOAD_DIR    -> storage.upload_dir
//	QUEUE_URL     -> storage.postgres_dsn
//	LLM_API_KEY   -> providers.llm.api_key
//	TTS_API_KEY   -> providers.tts.api_key
//	TTM_API_KEY   -> providers.ttm.api_key
//	LOG_LEVEL     -> server.log_level
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Storage.UploadDir = v
	}
	if v := os.Getenv("QUEUE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv("TTS_API_KEY"); v != "" {
		cfg.Providers.TTS.APIKey = v
	}
	if v := os.Getenv("TTM_API_KEY"); v != "" {
		cfg.Providers.TTM.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./uploads"
	}
}
