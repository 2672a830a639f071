package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/internal/config"
)

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adpipe.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.Name != "elevenlabs" {
		t.Errorf("providers.tts.name: got %q", cfg.Providers.TTS.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/adpipe.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adpipe.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error should mention parse, got: %v", err)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("UPLOAD_DIR", "/srv/uploads")
	t.Setenv("QUEUE_URL", "postgres://env-host/adpipe")
	t.Setenv("LLM_API_KEY", "sk-env")
	t.Setenv("TTS_API_KEY", "el-env")
	t.Setenv("TTM_API_KEY", "tm-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config.ApplyEnv(cfg)

	if cfg.Storage.UploadDir != "/srv/uploads" {
		t.Errorf("upload_dir: got %q, want env override", cfg.Storage.UploadDir)
	}
	if cfg.Storage.PostgresDSN != "postgres://env-host/adpipe" {
		t.Errorf("postgres_dsn: got %q, want env override", cfg.Storage.PostgresDSN)
	}
	if cfg.Providers.LLM.APIKey != "sk-env" {
		t.Errorf("llm api_key: got %q, want env override", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "el-env" {
		t.Errorf("tts api_key: got %q, want env override", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTM.APIKey != "tm-env" {
		t.Errorf("ttm api_key: got %q, want env override", cfg.Providers.TTM.APIKey)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
}

func TestApplyEnv_FileValuesKeptWhenEnvUnset(t *testing.T) {
	// t.Setenv restores prior values; setting to "" means "unset" for ApplyEnv.
	for _, key := range []string{"UPLOAD_DIR", "QUEUE_URL", "LLM_API_KEY", "TTS_API_KEY", "TTM_API_KEY", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config.ApplyEnv(cfg)

	if cfg.Providers.LLM.APIKey != "sk-test" {
		t.Errorf("llm api_key: got %q, want file value", cfg.Providers.LLM.APIKey)
	}
	if cfg.Storage.UploadDir != "/var/lib/adpipe/uploads" {
		t.Errorf("upload_dir: got %q, want file value", cfg.Storage.UploadDir)
	}
}

func TestApplyEnv_DefaultUploadDir(t *testing.T) {
	t.Setenv("UPLOAD_DIR", "")

	cfg := &config.Config{}
	config.ApplyEnv(cfg)

	if cfg.Storage.UploadDir != "./uploads" {
		t.Errorf("upload_dir default: got %q, want ./uploads", cfg.Storage.UploadDir)
	}
}
