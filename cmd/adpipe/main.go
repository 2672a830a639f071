// Command adpipe produces finished voice ads from a text brief. It runs the
// full pipeline server (serve) and ships thin subcommands for submitting,
// inspecting, and cancelling productions against the shared store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Unmesh28/voice-ad-sub002/internal/config"
	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/health"
	"github.com/Unmesh28/voice-ad-sub002/internal/observe"
	"github.com/Unmesh28/voice-ad-sub002/internal/pipeline"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/internal/resilience"
)

// Exit codes. Scripts drive retries off these: 4 is worth retrying, 5 is not.
const (
	exitOK         = 0
	exitValidation = 2
	exitNotFound   = 3
	exitTransient  = 4
	exitPermanent  = 5
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "adpipe.yaml", "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return exitValidation
	}
	command, args := args[0], args[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "adpipe: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "adpipe: %v\n", err)
		}
		return exitValidation
	}
	config.ApplyEnv(cfg)

	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	if err := cfg.RequireSecrets(); err != nil {
		slog.Error("configuration incomplete", "err", err)
		return exitPermanent
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		return exitCode(err)
	}
	defer cleanup()

	switch command {
	case "serve":
		return app.serve(ctx, cfg, *configPath, levelVar)
	case "submit":
		return app.submit(ctx, args)
	case "status":
		return app.status(ctx, args)
	case "cancel":
		return app.cancel(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "adpipe: unknown command %q\n", command)
		usage()
		return exitValidation
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: adpipe [-config adpipe.yaml] <command> [flags]

Commands:
  serve    run the pipeline workers and the HTTP endpoint
  submit   submit a new ad production: submit [flags] <prompt>
  status   show the state of a production
  cancel   cancel a running production
`)
}

// app holds the wired stores and orchestrator shared by all commands.
type app struct {
	productions production.Store
	jobs        queue.Store
	orch        *pipeline.Orchestrator
	pool        *pgxpool.Pool // nil when running on the in-memory stores
}

// buildApp constructs stores, providers, and the orchestrator from cfg. The
// returned cleanup closes the database pool if one was opened.
func buildApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	a := &app{}
	cleanup := func() {}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, cleanup, faults.Wrap(faults.KindTransientProvider, "connect to postgres", err)
		}
		cleanup = pool.Close
		a.pool = pool

		ps := production.NewPostgresStore(pool)
		if err := ps.Migrate(ctx); err != nil {
			return nil, cleanup, faults.Wrap(faults.KindTransientProvider, "migrate production schema", err)
		}
		qs := queue.NewPostgresStore(pool)
		if err := qs.Migrate(ctx); err != nil {
			return nil, cleanup, faults.Wrap(faults.KindTransientProvider, "migrate queue schema", err)
		}
		a.productions = ps
		a.jobs = qs
	} else {
		a.productions = production.NewMemStore()
		a.jobs = queue.NewMemStore()
	}

	reg := config.DefaultRegistry()

	for _, p := range []struct {
		kind string
		name string
	}{
		{"llm", cfg.Providers.LLM.Name},
		{"tts", cfg.Providers.TTS.Name},
		{"ttm", cfg.Providers.TTM.Name},
	} {
		if p.name == "" {
			return nil, cleanup, faults.New(faults.KindConfigMissing, "providers."+p.kind+".name is required")
		}
	}

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ttmProvider, err := reg.CreateTTM(cfg.Providers.TTM)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create ttm provider %q: %w", cfg.Providers.TTM.Name, err)
	}

	// Configured fallbacks wrap the primary in a failover chain; each backend
	// carries its own circuit breaker.
	if fbs := cfg.Providers.LLM.Fallbacks; len(fbs) > 0 {
		chain := resilience.NewLLMFallback(cfg.Providers.LLM.Name, llmProvider, resilience.CircuitBreakerConfig{}, slog.Default())
		for _, fb := range fbs {
			p, err := reg.CreateLLM(fb)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, p)
		}
		llmProvider = chain
	}
	if fbs := cfg.Providers.TTS.Fallbacks; len(fbs) > 0 {
		chain := resilience.NewTTSFallback(cfg.Providers.TTS.Name, ttsProvider, resilience.CircuitBreakerConfig{}, slog.Default())
		for _, fb := range fbs {
			p, err := reg.CreateTTS(fb)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, p)
		}
		ttsProvider = chain
	}
	if fbs := cfg.Providers.TTM.Fallbacks; len(fbs) > 0 {
		chain := resilience.NewTTMFallback(cfg.Providers.TTM.Name, ttmProvider, resilience.CircuitBreakerConfig{}, slog.Default())
		for _, fb := range fbs {
			p, err := reg.CreateTTM(fb)
			if err != nil {
				return nil, cleanup, fmt.Errorf("create ttm fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, p)
		}
		ttmProvider = chain
	}

	audioEntry := cfg.Providers.Audio
	if audioEntry.Name == "" {
		audioEntry.Name = "ffmpeg"
	}
	proc, err := reg.CreateAudio(audioEntry)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create audio processor %q: %w", audioEntry.Name, err)
	}

	orch, err := pipeline.New(pipeline.Config{
		Productions: a.productions,
		Jobs:        a.jobs,
		LLM:         llmProvider,
		TTS:         ttsProvider,
		TTM:         ttmProvider,
		Processor:   proc,
		UploadDir:   cfg.Storage.UploadDir,
	})
	if err != nil {
		return nil, cleanup, err
	}
	a.orch = orch
	return a, cleanup, nil
}

// serve runs the worker pools and the HTTP endpoint until the context is
// cancelled by a signal.
func (a *app) serve(ctx context.Context, cfg *config.Config, configPath string, levelVar *slog.LevelVar) int {
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "adpipe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("init telemetry", "err", err)
		return exitPermanent
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Queue events feed the job counters; production events feed the
	// per-production counters.
	jobEvents, unsubJobs := a.jobs.Subscribe(128)
	defer unsubJobs()
	go func() {
		for ev := range jobEvents {
			switch ev.Type {
			case queue.EventCompleted:
				metrics.RecordJob(ctx, string(ev.Queue), "ok")
			case queue.EventFailed:
				metrics.RecordJob(ctx, string(ev.Queue), "error")
			}
		}
	}()

	prodEvents, unsubProds := a.orch.Events(128)
	defer unsubProds()
	go func() {
		for ev := range prodEvents {
			if ev.Stage.Terminal() {
				metrics.RecordProductionFinished(ctx, string(ev.Stage))
			}
		}
	}()

	// Hot reload is limited to the log level; provider and storage changes
	// need a restart.
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ProvidersChanged {
			slog.Warn("provider configuration changed on disk; restart to apply")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	mux := http.NewServeMux()
	checkers := []health.Checker{}
	if a.pool != nil {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: a.pool.Ping,
		})
	}
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /assets/", http.StripPrefix("/assets/",
		http.FileServer(http.Dir(cfg.Storage.UploadDir))))

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("adpipe serving",
		"listen_addr", listenAddr,
		"upload_dir", cfg.Storage.UploadDir,
		"durable", a.pool != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	for kind, handler := range a.orch.Handlers() {
		pool, err := queue.NewPool(a.jobs, kind, handler)
		if err != nil {
			slog.Error("create worker pool", "queue", kind, "err", err)
			return exitPermanent
		}
		g.Go(func() error { return pool.Run(gctx) })
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("serve error", "err", err)
		return exitTransient
	}
	slog.Info("goodbye")
	return exitOK
}

// submit creates a production and enqueues its script stage. The ad brief is
// the trailing positional argument: adpipe submit [flags] <prompt>.
func (a *app) submit(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	voiceID := fs.String("voice", "", "TTS voice id (required)")
	tone := fs.String("tone", "", "desired tone, e.g. warm, energetic")
	duration := fs.Float64("duration", 30, "target ad duration in seconds")
	owner := fs.String("owner", "", "owner id recorded on the production")
	voiceVol := fs.Float64("voice-volume", 0, "voice volume override")
	musicVol := fs.Float64("music-volume", 0, "music volume override")
	duck := fs.Float64("duck", 0, "ducking amount override")
	lufs := fs.Float64("lufs", 0, "integrated loudness target override")
	truePeak := fs.Float64("true-peak", 0, "true peak ceiling override in dBTP")
	format := fs.String("format", "", "output format, e.g. mp3, wav")
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "adpipe: submit: missing prompt argument")
		return exitValidation
	}
	prompt := strings.Join(fs.Args(), " ")

	id, err := a.orch.Submit(ctx, pipeline.SubmitRequest{
		Prompt:          prompt,
		VoiceID:         *voiceID,
		Tone:            *tone,
		DurationSeconds: *duration,
		OwnerID:         *owner,
		VoiceVolume:     *voiceVol,
		MusicVolume:     *musicVol,
		DuckingAmount:   *duck,
		TargetLUFS:      *lufs,
		TruePeakDB:      *truePeak,
		OutputFormat:    *format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "adpipe: submit: %v\n", err)
		return exitCode(err)
	}
	if a.pool == nil {
		slog.Warn("submitted against the in-memory store; run serve in the same process or configure postgres_dsn")
	}
	fmt.Println(id)
	return exitOK
}

// status prints a production snapshot including warnings and assets.
func (a *app) status(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "adpipe: status: expected exactly one production id")
		return exitValidation
	}
	id := fs.Arg(0)

	prod, err := a.productions.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adpipe: status: %v\n", err)
		return exitCode(err)
	}

	fmt.Printf("id:       %s\n", prod.ID)
	fmt.Printf("status:   %s\n", prod.Status)
	fmt.Printf("progress: %d%%\n", prod.Progress)
	if prod.ErrorMessage != "" {
		fmt.Printf("error:    [%s] %s\n", prod.ErrorKind, prod.ErrorMessage)
	}
	for _, w := range prod.Warnings {
		fmt.Printf("warning:  %s\n", w)
	}

	assets, err := a.productions.ListAssets(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adpipe: status: list assets: %v\n", err)
		return exitCode(err)
	}
	for _, asset := range assets {
		variant := asset.Variant
		if variant != "" {
			variant = "/" + variant
		}
		fmt.Printf("asset:    %s%s %.2fs %s\n", asset.Kind, variant, asset.DurationSeconds, asset.PublicURL)
	}
	return exitOK
}

// cancel stops a production; already-terminal productions are left alone.
func (a *app) cancel(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "adpipe: cancel: expected exactly one production id")
		return exitValidation
	}
	id := fs.Arg(0)

	if err := a.orch.Cancel(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "adpipe: cancel: %v\n", err)
		return exitCode(err)
	}
	fmt.Printf("cancelled %s\n", id)
	return exitOK
}

// exitCode maps an error onto the documented exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, production.ErrNotFound):
		return exitNotFound
	case faults.KindOf(err) == faults.KindValidation:
		return exitValidation
	case faults.Retryable(err):
		return exitTransient
	default:
		return exitPermanent
	}
}
