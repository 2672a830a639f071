package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Unmesh28/voice-ad-sub002/internal/blueprint"
	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/internal/transcript"
	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
)

// ttsTargetMargin is subtracted from the ad duration to leave room for the
// pre-roll and the button when sizing the voice-over.
const ttsTargetMargin = 2.5

// Voice-phase duration enforcement engages only when the synthesised length
// is well off target.
const (
	ttsRatioLow  = 0.80
	ttsRatioHigh = 1.12
)

// handleVoice runs the voice stage: synthesize with character timestamps,
// extract sentence timings, enforce the voice duration, persist the asset,
// then build the musical blueprint and enqueue the music stage.
func (o *Orchestrator) handleVoice(ctx context.Context, job *queue.Job) ([]byte, error) {
	payload, err := decodePayload[stagePayload](job)
	if err != nil {
		return nil, err
	}
	prodID := payload.ProductionID

	if err := o.checkCancel(ctx, prodID); err != nil {
		if errors.Is(err, errCancelled) {
			return o.finishCancelled(prodID)
		}
		return nil, err
	}

	prod, err := o.productions.Get(ctx, prodID)
	if err != nil {
		return nil, err
	}
	script, err := o.productions.GetScript(ctx, prodID)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID,
			faults.Wrap(faults.KindValidation, "voice stage without script", err))
	}

	result, err := o.synthesize(ctx, prod, script.Text)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.resetStuck(prodID + "/" + string(job.Queue))

	workDir, err := o.ensureWorkDir(prodID)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	rawPath := filepath.Join(workDir, "voice_raw.mp3")
	if err := writeFileAtomic(rawPath, result.Audio); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusVoice, 30, "voice synthesised")

	sentences, duration, err := o.voiceTimings(ctx, prodID, script.Text, result, rawPath)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	finalVoice, sentences, duration, stretched, err := o.enforceVoiceDuration(
		ctx, prodID, prod.Settings.TargetDuration, rawPath, sentences, duration)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	if err := o.checkCancel(ctx, prodID); err != nil {
		if errors.Is(err, errCancelled) {
			return o.finishCancelled(prodID)
		}
		return nil, err
	}

	voicePath := o.voicePath(prodID)
	if err := moveFile(finalVoice, voicePath); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	assetID, err := o.productions.SaveAsset(ctx, &production.Asset{
		ProductionID:    prodID,
		Kind:            production.AssetVoice,
		Path:            voicePath,
		PublicURL:       o.publicURL(voicePath),
		DurationSeconds: duration,
	})
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	script.TTS = &production.TTSMetadata{
		Sentences:     sentences,
		VoiceDuration: duration,
		Stretched:     stretched,
	}
	if _, err := o.productions.SaveScript(ctx, script); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusVoice); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusVoice, 40, "voice ready")

	// The blueprint step is in-process and happens before the music job
	// exists, so the composition prompt rides in its payload.
	mb, err := blueprint.Build(blueprintInput(script))
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID,
			faults.Wrap(faults.KindValidation, "blueprint construction", err))
	}
	if err := o.enqueue(ctx, queue.KindMusicGeneration, musicPayload{
		ProductionID:    prodID,
		Prompt:          mb.CompositionPrompt,
		DurationSeconds: mb.TotalDuration,
	}); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	return json.Marshal(map[string]string{"voiceAssetId": assetID})
}

func (o *Orchestrator) synthesize(ctx context.Context, prod *production.Production, text string) (*tts.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, o.timeouts.TTS)
	defer cancel()

	var result *tts.Result
	err := o.ttsBreaker.Execute(func() error {
		var callErr error
		result, callErr = o.tts.Synthesize(cctx, tts.Request{
			VoiceID:        prod.Settings.VoiceID,
			Text:           text,
			WithTimestamps: true,
		})
		return callErr
	})
	if err != nil {
		return nil, mapProviderError("synthesize voice", err)
	}
	if len(result.Audio) == 0 {
		return nil, faults.New(faults.KindValidation, "tts returned empty audio")
	}
	return result, nil
}

// voiceTimings extracts sentence spans from the character alignment. A
// mismatched alignment degrades to a single span covering the whole take
// instead of failing the production.
func (o *Orchestrator) voiceTimings(ctx context.Context, prodID, text string, result *tts.Result, rawPath string) ([]transcript.Span, float64, error) {
	duration, err := o.proc.GetDuration(ctx, rawPath)
	if err != nil {
		return nil, 0, faults.Wrap(faults.KindTransientProvider, "probe voice duration", err)
	}

	chars := make([]transcript.CharTiming, len(result.Alignment))
	for i, c := range result.Alignment {
		chars[i] = transcript.CharTiming{Char: c.Char, Start: c.Start, End: c.End}
	}

	extracted, err := transcript.Extract(text, chars)
	if err != nil {
		o.warn(ctx, prodID, production.StatusVoice,
			"character alignment unusable, treating voice as one sentence")
		return []transcript.Span{{Text: text, Start: 0, End: duration}}, duration, nil
	}
	return extracted.Sentences, duration, nil
}

// enforceVoiceDuration applies the voice-phase duration contract: when the
// take is far off adDuration − 2.5 s, time-scale it toward the target. A take
// needing more scaling than the stretch clamp allows is scaled as far as the
// clamp permits so the mix-phase enforcer has less ground to cover. Sentence
// spans are rescaled with the audio.
func (o *Orchestrator) enforceVoiceDuration(ctx context.Context, prodID string, adDuration float64, rawPath string, sentences []transcript.Span, actual float64) (path string, spans []transcript.Span, duration float64, stretched bool, err error) {
	target := adDuration - ttsTargetMargin
	if target <= 0 || actual <= 0 {
		return rawPath, sentences, actual, false, nil
	}
	ratio := actual / target
	if ratio >= ttsRatioLow && ratio <= ttsRatioHigh {
		return rawPath, sentences, actual, false, nil
	}
	requested := clampStretchTarget(actual, target)
	if requested != target {
		o.warn(ctx, prodID, production.StatusVoice, fmt.Sprintf(
			"voice runs %.1fs against a %.1fs target, stretch clamped to %.1fs", actual, target, requested))
	}

	stretchedPath := filepath.Join(filepath.Dir(rawPath), "voice_scaled.mp3")
	cctx, cancel := context.WithTimeout(ctx, o.timeouts.Mix)
	defer cancel()
	if err := o.proc.StretchToDuration(cctx, rawPath, requested, stretchedPath); err != nil {
		if errors.Is(err, audio.ErrScalingRefused) {
			o.warn(ctx, prodID, production.StatusVoice, fmt.Sprintf(
				"voice runs %.1fs against a %.1fs target, stretch refused, keeping original", actual, requested))
			return rawPath, sentences, actual, false, nil
		}
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return "", nil, 0, false, faults.Wrap(faults.KindTimeout, "stretch voice", err)
		}
		return "", nil, 0, false, faults.Wrap(faults.KindTransientProvider, "stretch voice", err)
	}

	scale := requested / actual
	rescaled := make([]transcript.Span, len(sentences))
	for i, s := range sentences {
		rescaled[i] = transcript.Span{Text: s.Text, Start: s.Start * scale, End: s.End * scale}
	}
	o.log.Info("voice duration enforced",
		"production", prodID, "actual", actual, "target", target, "requested", requested)
	return stretchedPath, rescaled, requested, true, nil
}

// clampStretchTarget returns the closest achievable duration to target given
// the stretch clamp on the speed factor actual/target.
func clampStretchTarget(actual, target float64) float64 {
	switch ratio := actual / target; {
	case ratio > audio.StretchRatioMax:
		return actual / audio.StretchRatioMax
	case ratio < audio.StretchRatioMin:
		return actual / audio.StretchRatioMin
	}
	return target
}
