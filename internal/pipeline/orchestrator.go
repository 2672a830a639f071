// Package pipeline drives one Production from brief to finished ad.
//
// The Orchestrator owns the stage sequence: script generation, voice
// synthesis with timing extraction, musical blueprint construction, music
// generation, and the mixing job that analyzes, aligns, ducks, mixes, and
// converges on the loudness target. Each stage runs as a job on its queue;
// the orchestrator provides the handlers and chains the stages by enqueueing
// the next job when one completes. Parallelism is across productions, never
// within one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Unmesh28/voice-ad-sub002/internal/analysis"
	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/internal/resilience"
	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// Timeouts are the per-stage hard ceilings. Exceeding one yields a retryable
// TIMEOUT; two consecutive timeouts on the same stage of the same production
// upgrade to STAGE_STUCK.
type Timeouts struct {
	LLM     time.Duration
	TTS     time.Duration
	TTM     time.Duration
	Mix     time.Duration
	Measure time.Duration
}

// DefaultTimeouts returns the standard stage ceilings.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		LLM:     30 * time.Second,
		TTS:     180 * time.Second,
		TTM:     300 * time.Second,
		Mix:     120 * time.Second,
		Measure: 30 * time.Second,
	}
}

func (t Timeouts) orDefault() Timeouts {
	def := DefaultTimeouts()
	if t.LLM <= 0 {
		t.LLM = def.LLM
	}
	if t.TTS <= 0 {
		t.TTS = def.TTS
	}
	if t.TTM <= 0 {
		t.TTM = def.TTM
	}
	if t.Mix <= 0 {
		t.Mix = def.Mix
	}
	if t.Measure <= 0 {
		t.Measure = def.Measure
	}
	return t
}

// Event is one observable progress update of a production.
type Event struct {
	ProductionID string
	Stage        production.Status
	Percent      int
	Note         string
}

// Config wires an Orchestrator.
type Config struct {
	Productions production.Store
	Jobs        queue.Store
	LLM         llm.Provider
	TTS         tts.Provider
	TTM         ttm.Provider
	Processor   audio.Processor

	// UploadDir is the storage root. Defaults to ./uploads.
	UploadDir string

	Timeouts Timeouts
	Logger   *slog.Logger
}

// Orchestrator runs productions through the pipeline.
type Orchestrator struct {
	productions production.Store
	jobs        queue.Store
	llm         llm.Provider
	tts         tts.Provider
	ttm         ttm.Provider
	proc        audio.Processor
	analyzer    *analysis.Analyzer

	uploadDir string
	timeouts  Timeouts
	log       *slog.Logger

	llmBreaker *resilience.CircuitBreaker
	ttsBreaker *resilience.CircuitBreaker
	ttmBreaker *resilience.CircuitBreaker

	mu     sync.Mutex
	stuck  map[string]int
	subs   map[int]chan Event
	nextID int
}

// New creates an Orchestrator. All stores, providers, and the processor are
// required.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Productions == nil:
		return nil, errors.New("pipeline: nil production store")
	case cfg.Jobs == nil:
		return nil, errors.New("pipeline: nil job store")
	case cfg.LLM == nil:
		return nil, errors.New("pipeline: nil llm provider")
	case cfg.TTS == nil:
		return nil, errors.New("pipeline: nil tts provider")
	case cfg.TTM == nil:
		return nil, errors.New("pipeline: nil ttm provider")
	case cfg.Processor == nil:
		return nil, errors.New("pipeline: nil audio processor")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = "./uploads"
	}

	breaker := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: name})
	}
	return &Orchestrator{
		productions: cfg.Productions,
		jobs:        cfg.Jobs,
		llm:         cfg.LLM,
		tts:         cfg.TTS,
		ttm:         cfg.TTM,
		proc:        cfg.Processor,
		analyzer:    analysis.New(cfg.Processor, log),
		uploadDir:   uploadDir,
		timeouts:    cfg.Timeouts.orDefault(),
		log:         log,
		llmBreaker:  breaker("llm"),
		ttsBreaker:  breaker("tts"),
		ttmBreaker:  breaker("ttm"),
		stuck:       make(map[string]int),
		subs:        make(map[int]chan Event),
	}, nil
}

// Handlers returns the queue handlers, one per stage kind, for wiring into
// worker pools.
func (o *Orchestrator) Handlers() map[queue.Kind]queue.Handler {
	return map[queue.Kind]queue.Handler{
		queue.KindScriptGeneration: o.handleScript,
		queue.KindTTSGeneration:    o.handleVoice,
		queue.KindMusicGeneration:  o.handleMusic,
		queue.KindAudioMixing:      o.handleMix,
	}
}

// SubmitRequest is one ad brief.
type SubmitRequest struct {
	Prompt          string
	VoiceID         string
	Tone            string
	DurationSeconds float64
	OwnerID         string

	// Optional mix overrides. Zero values take the pipeline defaults.
	VoiceVolume   float64
	MusicVolume   float64
	DuckingAmount float64
	TargetLUFS    float64
	TruePeakDB    float64
	OutputFormat  string
}

const (
	minAdDuration = 5
	maxAdDuration = 300

	defaultVoiceVolume = 1.0
	defaultMusicVolume = 0.3
	defaultDuckLevel   = 0.3
	defaultLUFS        = -16
	defaultTruePeak    = -1.5
	defaultFadeIn      = 0.05
	defaultFadeOut     = 1.5
)

// Submit validates the brief, creates the production, and enqueues the
// script stage. It returns the production ID.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", faults.New(faults.KindValidation, "empty prompt")
	}
	if req.VoiceID == "" {
		return "", faults.New(faults.KindValidation, "missing voice id")
	}
	if req.DurationSeconds < minAdDuration || req.DurationSeconds > maxAdDuration {
		return "", faults.New(faults.KindValidation,
			fmt.Sprintf("duration %.1fs outside [%d, %d]", req.DurationSeconds, minAdDuration, maxAdDuration))
	}

	settings := production.Settings{
		Prompt:         req.Prompt,
		VoiceID:        req.VoiceID,
		Tone:           req.Tone,
		TargetDuration: req.DurationSeconds,
		VoiceVolume:    orDefault(req.VoiceVolume, defaultVoiceVolume),
		MusicVolume:    orDefault(req.MusicVolume, defaultMusicVolume),
		FadeIn:         defaultFadeIn,
		FadeOut:        defaultFadeOut,
		FadeCurve:      types.FadeQsin,
		DuckingAmount:  orDefault(req.DuckingAmount, defaultDuckLevel),
		OutputFormat:   orDefaultString(req.OutputFormat, "mp3"),
		TargetLUFS:     orDefault(req.TargetLUFS, defaultLUFS),
		TruePeakDB:     orDefault(req.TruePeakDB, defaultTruePeak),
	}

	id, err := o.productions.Create(ctx, &production.Production{
		OwnerID:  req.OwnerID,
		Settings: settings,
	})
	if err != nil {
		return "", err
	}

	if err := o.enqueue(ctx, queue.KindScriptGeneration, stagePayload{ProductionID: id}); err != nil {
		o.productions.Fail(ctx, id, faults.KindTransientProvider, "could not enqueue script stage")
		return "", err
	}
	o.log.Info("production submitted", "production", id, "duration", req.DurationSeconds)
	return id, nil
}

// Status returns a snapshot of the production.
func (o *Orchestrator) Status(ctx context.Context, id string) (*production.Production, error) {
	return o.productions.Get(ctx, id)
}

// Cancel marks the production CANCELLED. In-flight workers observe the flag
// at their next suspension point; the working directory is removed here so
// no partial files linger if nothing is running.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	if err := o.productions.Cancel(ctx, id); err != nil {
		return err
	}
	o.cleanup(id)
	o.log.Info("production cancelled", "production", id)
	return nil
}

// Events registers a progress consumer. Slow consumers miss events rather
// than block the pipeline.
func (o *Orchestrator) Events(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) publish(ev Event) {
	o.mu.Lock()
	subs := make([]chan Event, 0, len(o.subs))
	for _, ch := range o.subs {
		subs = append(subs, ch)
	}
	o.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// progress records a production progress update and emits the matching
// event. Failures are logged only; progress is fire-and-forget.
func (o *Orchestrator) progress(ctx context.Context, id string, stage production.Status, percent int, note string) {
	if err := o.productions.SetProgress(ctx, id, percent); err != nil {
		o.log.Warn("progress update failed", "production", id, "error", err)
	}
	o.publish(Event{ProductionID: id, Stage: stage, Percent: percent, Note: note})
}

// warn attaches a soft-failure note and emits it as an event.
func (o *Orchestrator) warn(ctx context.Context, id string, stage production.Status, note string) {
	o.log.Warn("production warning", "production", id, "stage", stage, "note", note)
	if err := o.productions.AddWarning(ctx, id, note); err != nil {
		o.log.Warn("warning not recorded", "production", id, "error", err)
	}
	o.publish(Event{ProductionID: id, Stage: stage, Note: note})
}

// errCancelled aborts a stage when the production was cancelled underneath
// it. It never reaches the queue as a failure.
var errCancelled = errors.New("pipeline: production cancelled")

// checkCancel returns errCancelled when the production is terminal. Workers
// call it at every suspension point.
func (o *Orchestrator) checkCancel(ctx context.Context, id string) error {
	p, err := o.productions.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == production.StatusCancelled {
		return errCancelled
	}
	return nil
}

// finishCancelled cleans up after an observed cancellation and completes the
// job quietly.
func (o *Orchestrator) finishCancelled(id string) ([]byte, error) {
	o.cleanup(id)
	o.log.Info("stage aborted, production cancelled", "production", id)
	return []byte(`{"cancelled":true}`), nil
}

// stageFailure classifies a stage error, maintains the consecutive-timeout
// streak, fails the production when the error cannot be retried, and returns
// the error for the queue's retry accounting.
func (o *Orchestrator) stageFailure(ctx context.Context, job *queue.Job, prodID string, err error) error {
	kind := faults.KindOf(err)
	key := prodID + "/" + string(job.Queue)

	if kind == faults.KindTimeout {
		o.mu.Lock()
		o.stuck[key]++
		streak := o.stuck[key]
		o.mu.Unlock()
		if streak >= 2 {
			err = faults.Wrap(faults.KindStageStuck,
				fmt.Sprintf("%s timed out %d times in a row", job.Queue, streak), err)
			kind = faults.KindStageStuck
		}
	} else {
		o.resetStuck(key)
	}

	retryable := kind.Retryable() && job.Attempts < job.MaxAttempts
	if !retryable {
		o.failProduction(ctx, prodID, kind, err)
		return err
	}

	// A retried attempt is a soft failure; recording it keeps the retry
	// history visible on the production.
	note := fmt.Sprintf("%s attempt %d/%d failed, will retry: %v",
		job.Queue, job.Attempts, job.MaxAttempts, err)
	if werr := o.productions.AddWarning(ctx, prodID, note); werr != nil {
		o.log.Warn("warning not recorded", "production", prodID, "error", werr)
	}
	return err
}

func (o *Orchestrator) resetStuck(key string) {
	o.mu.Lock()
	delete(o.stuck, key)
	o.mu.Unlock()
}

func (o *Orchestrator) failProduction(ctx context.Context, id string, kind faults.Kind, cause error) {
	o.log.Error("production failed", "production", id, "kind", kind, "error", cause)
	if err := o.productions.Fail(ctx, id, kind, cause.Error()); err != nil {
		o.log.Error("failure not recorded", "production", id, "error", err)
	}
	o.cleanup(id)
	o.publish(Event{ProductionID: id, Stage: production.StatusFailed, Note: cause.Error()})
}

// workDir is the production's private scratch directory. Everything inside
// is removed on terminal state.
func (o *Orchestrator) workDir(id string) string {
	return filepath.Join(o.uploadDir, "work", id)
}

func (o *Orchestrator) ensureWorkDir(id string) (string, error) {
	dir := o.workDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: create work dir: %w", err)
	}
	return dir, nil
}

func (o *Orchestrator) cleanup(id string) {
	if err := os.RemoveAll(o.workDir(id)); err != nil {
		o.log.Warn("work dir cleanup failed", "production", id, "error", err)
	}
}

// publicURL derives the externally visible path by stripping the upload
// root.
func (o *Orchestrator) publicURL(path string) string {
	rel, err := filepath.Rel(o.uploadDir, path)
	if err != nil {
		return path
	}
	return "/" + filepath.ToSlash(rel)
}

// voicePath is the deterministic location of a production's voice asset.
func (o *Orchestrator) voicePath(prodID string) string {
	return filepath.Join(o.uploadDir, "audio", "voice_"+prodID+".mp3")
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
