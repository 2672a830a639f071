package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/internal/config"
	"github.com/Unmesh28/voice-ad-sub002/internal/pipeline"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	audiomock "github.com/Unmesh28/voice-ad-sub002/pkg/audio/mock"
	llmmock "github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm/mock"
	ttmmock "github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm/mock"
	ttsmock "github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts/mock"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	prods := production.NewMemStore()
	jobs := queue.NewMemStore()
	orch, err := pipeline.New(pipeline.Config{
		Productions: prods,
		Jobs:        jobs,
		LLM:         &llmmock.Provider{},
		TTS:         &ttsmock.Provider{},
		TTM:         &ttmmock.Provider{},
		Processor:   &audiomock.Processor{},
		UploadDir:   t.TempDir(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &app{productions: prods, jobs: jobs, orch: orch}
}

func TestSubmitTakesPositionalPrompt(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	code := a.submit(ctx, []string{"-voice", "voice-1", "-tone", "warm", "Promote", "our", "fresh", "roast"})
	if code != exitOK {
		t.Fatalf("submit = %d, want %d", code, exitOK)
	}

	job, err := a.jobs.Reserve(ctx, queue.KindScriptGeneration, "test-worker")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if job == nil {
		t.Fatal("no script job enqueued")
	}
	var payload struct {
		ProductionID string `json:"productionId"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	prod, err := a.productions.Get(ctx, payload.ProductionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := "Promote our fresh roast"; prod.Settings.Prompt != want {
		t.Errorf("prompt = %q, want %q", prod.Settings.Prompt, want)
	}
}

func fallbackTestConfig(dir string) *config.Config {
	return &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{
				Name:   "openai",
				APIKey: "primary-key",
				Fallbacks: []config.ProviderEntry{
					{Name: "openai", APIKey: "backup-key", BaseURL: "https://llm-standby.example.com"},
				},
			},
			TTS: config.ProviderEntry{Name: "elevenlabs", APIKey: "tts-key"},
			TTM: config.ProviderEntry{Name: "elevenlabs", APIKey: "ttm-key"},
		},
		Storage: config.StorageConfig{UploadDir: dir},
	}
}

func TestBuildAppWiresConfiguredFallbacks(t *testing.T) {
	ctx := context.Background()

	a, cleanup, err := buildApp(ctx, fallbackTestConfig(t.TempDir()))
	defer cleanup()
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	if a.orch == nil {
		t.Fatal("no orchestrator built")
	}
}

func TestBuildAppRejectsUnknownFallback(t *testing.T) {
	ctx := context.Background()
	cfg := fallbackTestConfig(t.TempDir())
	cfg.Providers.TTS.Fallbacks = []config.ProviderEntry{{Name: "nonesuch", APIKey: "k"}}

	_, cleanup, err := buildApp(ctx, cfg)
	defer cleanup()
	if err == nil {
		t.Fatal("buildApp accepted an unregistered fallback provider")
	}
	if !strings.Contains(err.Error(), "tts fallback") {
		t.Errorf("err = %v, want a tts fallback construction error", err)
	}
}

func TestSubmitRejectsMissingPrompt(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	code := a.submit(ctx, []string{"-voice", "voice-1"})
	if code != exitValidation {
		t.Fatalf("submit = %d, want %d", code, exitValidation)
	}
	job, err := a.jobs.Reserve(ctx, queue.KindScriptGeneration, "test-worker")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if job != nil {
		t.Error("job enqueued despite missing prompt")
	}
}
