package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Unmesh28/voice-ad-sub002/internal/blueprint"
	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/internal/resilience"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
)

// stagePayload is the job payload for the script and voice stages, which
// read everything else from the production store.
type stagePayload struct {
	ProductionID string `json:"productionId"`
}

// musicPayload carries the blueprint's composition request into the music
// stage.
type musicPayload struct {
	ProductionID    string  `json:"productionId"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// mixPayload points the mixing stage at the rendered bed.
type mixPayload struct {
	ProductionID string `json:"productionId"`
	BedPath      string `json:"bedPath"`
}

func (o *Orchestrator) enqueue(ctx context.Context, kind queue.Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pipeline: encode %s payload: %w", kind, err)
	}
	if _, err := o.jobs.Enqueue(ctx, kind, data, queue.EnqueueOptions{}); err != nil {
		return err
	}
	return nil
}

func decodePayload[T any](job *queue.Job) (T, error) {
	var p T
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, faults.Wrap(faults.KindValidation, "malformed job payload", err)
	}
	return p, nil
}

// mapProviderError translates a provider sentinel into the pipeline's error
// taxonomy. Context deadline hits become TIMEOUT so the stuck tracking sees
// them.
func mapProviderError(op string, err error) error {
	var kind faults.Kind
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = faults.KindTimeout
	case errors.Is(err, llm.ErrAuth), errors.Is(err, tts.ErrAuth), errors.Is(err, ttm.ErrAuth):
		kind = faults.KindAuth
	case errors.Is(err, llm.ErrQuota), errors.Is(err, tts.ErrQuota), errors.Is(err, ttm.ErrQuota):
		kind = faults.KindQuota
	case errors.Is(err, llm.ErrInvalidResponse), errors.Is(err, tts.ErrInvalidResponse), errors.Is(err, ttm.ErrInvalidResponse):
		kind = faults.KindValidation
	case errors.Is(err, resilience.ErrCircuitOpen):
		kind = faults.KindTransientProvider
	default:
		kind = faults.KindTransientProvider
	}
	return faults.Wrap(kind, op, err)
}

// writeFileAtomic writes data to path through a temp file and rename so a
// crash never leaves a partial file visible.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pipeline: create dir for %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return fmt.Errorf("pipeline: temp file for %s: %w", filepath.Base(path), err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("pipeline: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("pipeline: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("pipeline: finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// moveFile renames src to dst, creating dst's directory first.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("pipeline: create dir for %s: %w", filepath.Base(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("pipeline: move %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// blueprintInput assembles the builder input from a persisted script. The
// builder is pure, so the voice and mixing stages recompute the identical
// blueprint instead of persisting it.
func blueprintInput(script *production.Script) blueprint.Input {
	b := script.Blueprint
	in := blueprint.Input{
		Script:            script.Text,
		Cues:              b.SentenceCues,
		TargetBPM:         b.Music.TargetBPM,
		Genre:             b.Music.Genre,
		Mood:              b.Music.Mood,
		Key:               b.Music.Key,
		AdDuration:        b.Context.DurationSeconds,
		ComposerDirection: b.Music.ComposerNotes,
		Instrumentation:   b.Music.Instrumentation,
		Arc:               b.Music.Arc,
		ButtonEnding:      b.Music.ButtonEnding,
		Structure:         b.Music.Structure,
	}
	if in.Key == "" {
		in.Key = b.Music.Structure.Key
	}
	if script.TTS != nil {
		in.Sentences = script.TTS.Sentences
		in.VoiceDuration = script.TTS.VoiceDuration
	}
	return in
}

// duckMultipliers extracts the per-sentence volume multipliers from the
// blueprint cues, padded to the sentence count.
func duckMultipliers(script *production.Script, sentences int) []float64 {
	out := make([]float64, sentences)
	for i := range out {
		out[i] = 1
		if i < len(script.Blueprint.SentenceCues) && script.Blueprint.SentenceCues[i].VolumeMultiplier > 0 {
			out[i] = script.Blueprint.SentenceCues[i].VolumeMultiplier
		}
	}
	return out
}
