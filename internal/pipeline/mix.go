package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Unmesh28/voice-ad-sub002/internal/aligner"
	"github.com/Unmesh28/voice-ad-sub002/internal/blueprint"
	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
)

// Two-pass loudness: a first mix further than this from the target gets one
// corrective re-mix with the music volume scaled.
const (
	loudnessToleranceLU = 3.0
	musicTooLoudFactor  = 0.7
	musicTooSoftFactor  = 1.3
	musicVolumeFloor    = 0.05
	musicVolumeCeiling  = 0.5
)

// Post-mix duration enforcement engages when the final mix overshoots the
// ad duration by more than 5 %.
const mixOvershootRatio = 1.05

// mixGeometry is the resolved placement of the voice against the bed.
type mixGeometry struct {
	voiceDelay float64
	cutoff     float64
	segments   []audio.VolumeSegment
	tier3      bool
	score      float64
}

// handleMix runs the mixing stage: bar-align the bed, analyze and align,
// bake the duck curve, mix, converge on the loudness target, enforce the
// final duration, and finalize the production.
func (o *Orchestrator) handleMix(ctx context.Context, job *queue.Job) ([]byte, error) {
	payload, err := decodePayload[mixPayload](job)
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
	if err != nil || script.TTS == nil {
		return nil, o.stageFailure(ctx, job, prodID,
			faults.Wrap(faults.KindValidation, "mixing stage without voice timings", err))
	}

	mb, err := blueprint.Build(blueprintInput(script))
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID,
			faults.Wrap(faults.KindValidation, "blueprint construction", err))
	}

	workDir, err := o.ensureWorkDir(prodID)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	// Step 1: size the bed to the blueprint's total duration.
	bedPath, err := o.prepareBed(ctx, prodID, payload.BedPath, mb.TotalDuration, workDir)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusAnalyzing, 62, "bed sized to grid")

	// Step 2: beat-aware alignment, degrading to the blueprint's sentence
	// curve when the bed resists analysis.
	geo, bedPath, err := o.alignBed(ctx, prodID, script, mb, bedPath, workDir)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	// Step 3: bake the duck curve into the bed.
	duckedPath := filepath.Join(workDir, "bed_ducked.mp3")
	err = o.procCall(ctx, o.timeouts.Mix, "apply duck curve", func(cctx context.Context) error {
		return o.proc.ApplyVolumeCurve(cctx, bedPath, geo.segments, geo.cutoff, duckedPath)
	})
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusAligning, 75, "duck curve baked")

	if err := o.checkCancel(ctx, prodID); err != nil {
		if errors.Is(err, errCancelled) {
			return o.finishCancelled(prodID)
		}
		return nil, err
	}

	// Step 4: mix, then measure and correct once if asked to normalize.
	if err := o.productions.Advance(ctx, prodID, production.StatusMixing); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	mixed, first, final, err := o.mixAndConverge(ctx, prod, duckedPath, geo, workDir)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	// Step 5: post-mix duration enforcement.
	mixed, err = o.enforceMixDuration(ctx, prodID, prod.Settings.TargetDuration, mixed, workDir)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	// Step 6: finalize.
	outPath := filepath.Join(o.uploadDir, "productions",
		fmt.Sprintf("production_%s_%s.%s", prodID, uuid.NewString(), prod.Settings.OutputFormat))
	if err := moveFile(mixed, outPath); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	outDuration, err := o.proc.GetDuration(ctx, outPath)
	if err != nil {
		outDuration = prod.Settings.TargetDuration
	}
	outDuration = math.Round(outDuration*100) / 100

	assetID, err := o.productions.SaveAsset(ctx, &production.Asset{
		ProductionID:    prodID,
		Kind:            production.AssetMix,
		Path:            outPath,
		PublicURL:       o.publicURL(outPath),
		DurationSeconds: outDuration,
	})
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusCompleted); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusCompleted, 100, "production completed")
	o.cleanup(prodID)
	o.log.Info("production completed",
		"production", prodID, "output", outPath, "duration", outDuration, "score", geo.score)

	return json.Marshal(map[string]any{
		"mixAssetId":      assetID,
		"outputPath":      outPath,
		"durationSeconds": outDuration,
		"alignmentScore":  geo.score,
		"loudnessFirst":   first,
		"loudnessFinal":   final,
	})
}

// prepareBed trims or loop-extends the rendered bed so its length matches
// the blueprint's total duration.
func (o *Orchestrator) prepareBed(ctx context.Context, prodID, bedPath string, totalDuration float64, workDir string) (string, error) {
	bedDur, err := o.proc.GetDuration(ctx, bedPath)
	if err != nil {
		return "", faults.Wrap(faults.KindTransientProvider, "probe bed duration", err)
	}
	if math.Abs(bedDur-totalDuration) <= 0.01 {
		return bedPath, nil
	}

	prepared := filepath.Join(workDir, "bed_prepared.mp3")
	if bedDur < totalDuration {
		err = o.procCall(ctx, o.timeouts.Mix, "loop bed", func(cctx context.Context) error {
			return o.proc.ExtendByLoop(cctx, bedPath, totalDuration, prepared)
		})
	} else {
		err = o.procCall(ctx, o.timeouts.Mix, "trim bed", func(cctx context.Context) error {
			return o.proc.Trim(cctx, bedPath, totalDuration, prepared)
		})
	}
	if err != nil {
		return "", err
	}

	if _, err := o.productions.SaveAsset(ctx, &production.Asset{
		ProductionID:    prodID,
		Kind:            production.AssetMusic,
		Variant:         "prepared",
		Path:            prepared,
		PublicURL:       o.publicURL(prepared),
		DurationSeconds: totalDuration,
	}); err != nil {
		return "", err
	}
	return prepared, nil
}

// alignBed analyzes the bed and runs the aligner (Tier 3). Analysis or
// alignment failure degrades to the blueprint's sentence-based curve
// (Tier 1) with a warning instead of failing the production.
func (o *Orchestrator) alignBed(ctx context.Context, prodID string, script *production.Script, mb *blueprint.Blueprint, bedPath, workDir string) (mixGeometry, string, error) {
	if err := o.productions.Advance(ctx, prodID, production.StatusAnalyzing); err != nil {
		return mixGeometry{}, "", err
	}
	duckLevel := defaultDuckLevel
	if p, err := o.productions.Get(ctx, prodID); err == nil && p.Settings.DuckingAmount > 0 {
		duckLevel = p.Settings.DuckingAmount
	}

	an, err := o.analyzer.Analyze(ctx, bedPath, mb.FinalBPM, mb.TimeSignature)
	if err != nil {
		o.warn(ctx, prodID, production.StatusAnalyzing,
			"bed analysis failed, using sentence-based ducking")
		return o.tierOneGeometry(mb, duckLevel, mb.PreRollDuration), bedPath, nil
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusAligning); err != nil {
		return mixGeometry{}, "", err
	}
	o.progress(ctx, prodID, production.StatusAligning, 68, "bed analyzed")

	res, err := aligner.Align(aligner.Input{
		Analysis:        an,
		Sentences:       script.TTS.Sentences,
		PreRollDuration: mb.PreRollDuration,
		PostRollBars:    mb.PostRollBars,
		BarDuration:     mb.BarDuration,
		DuckLevel:       duckLevel,
		Multipliers:     duckMultipliers(script, len(script.TTS.Sentences)),
	})
	if err != nil {
		// The voice cannot fit even at zero delay; start it immediately and
		// keep the sentence curve.
		o.warn(ctx, prodID, production.StatusAligning,
			"alignment infeasible, voice enters at zero delay")
		return o.tierOneGeometry(mb, duckLevel, 0), bedPath, nil
	}

	geo := mixGeometry{
		voiceDelay: res.VoiceDelay,
		cutoff:     res.MusicCutoffTime,
		tier3:      true,
		score:      res.Score,
	}
	geo.segments = make([]audio.VolumeSegment, len(res.Segments))
	for i, s := range res.Segments {
		geo.segments[i] = audio.VolumeSegment{Start: s.Start, End: s.End, Multiplier: s.Level}
	}

	// Button ending: cut the bed at the aligned cutoff.
	if geo.cutoff < an.Duration-0.01 {
		buttoned := filepath.Join(workDir, "bed_buttoned.mp3")
		err = o.procCall(ctx, o.timeouts.Mix, "cut button ending", func(cctx context.Context) error {
			return o.proc.Trim(cctx, bedPath, geo.cutoff, buttoned)
		})
		if err != nil {
			return mixGeometry{}, "", err
		}
		bedPath = buttoned
	}
	return geo, bedPath, nil
}

// tierOneGeometry derives the mix geometry from the blueprint alone, used
// when beat-aware alignment is unavailable.
func (o *Orchestrator) tierOneGeometry(mb *blueprint.Blueprint, duckLevel, voiceDelay float64) mixGeometry {
	geo := mixGeometry{
		voiceDelay: voiceDelay,
		cutoff:     mb.TotalDuration,
	}
	for _, dp := range mb.MixingPlan.DuckingPoints {
		mult := dp.Multiplier
		if mult < 0.1 {
			mult = 0.1
		}
		if mult > 3.0 {
			mult = 3.0
		}
		level := duckLevel * mult
		if level < 0.05 {
			level = 0.05
		}
		if level > 1.0 {
			level = 1.0
		}
		start := dp.Start - mb.PreRollDuration + voiceDelay
		end := dp.End - mb.PreRollDuration + voiceDelay
		if end <= 0 {
			continue
		}
		if start < 0 {
			start = 0
		}
		geo.segments = append(geo.segments, audio.VolumeSegment{Start: start, End: end, Multiplier: level})
	}
	return geo
}

// mixAndConverge performs the mix and, when loudness normalization is
// requested, measures the result and re-mixes once with a corrected music
// volume if it landed more than 3 LU off target.
func (o *Orchestrator) mixAndConverge(ctx context.Context, prod *production.Production, bedPath string, geo mixGeometry, workDir string) (outPath string, firstLUFS, finalLUFS float64, err error) {
	prodID := prod.ID
	settings := prod.Settings
	musicVol := settings.MusicVolume
	normalize := settings.TargetLUFS != 0

	mixOnce := func(out string, vol float64) error {
		return o.procCall(ctx, o.timeouts.Mix, "mix", func(cctx context.Context) error {
			return o.proc.Mix(cctx, audio.MixOptions{
				VoicePath:          o.voicePath(prodID),
				MusicPath:          bedPath,
				VoiceDelay:         geo.voiceDelay,
				VoiceVolume:        settings.VoiceVolume,
				MusicVolume:        vol,
				FadeIn:             settings.FadeIn,
				FadeOut:            settings.FadeOut,
				FadeCurve:          audio.FadeCurve(settings.FadeCurve),
				NormalizeLoudness:  normalize,
				LoudnessTargetLUFS: settings.TargetLUFS,
				LoudnessTruePeak:   settings.TruePeakDB,
				MaxDuration:        geo.cutoff,
			}, out)
		})
	}

	first := filepath.Join(workDir, "mix_1.mp3")
	if err := mixOnce(first, musicVol); err != nil {
		return "", 0, 0, err
	}
	o.progress(ctx, prodID, production.StatusMixing, 80, "first mix rendered")

	if !normalize {
		return first, 0, 0, nil
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusMeasuring); err != nil {
		return "", 0, 0, err
	}
	measured, err := o.measure(ctx, first)
	if err != nil {
		o.warn(ctx, prodID, production.StatusMeasuring,
			"loudness measurement failed, keeping first mix")
		return first, 0, 0, nil
	}
	o.progress(ctx, prodID, production.StatusMeasuring, 85,
		fmt.Sprintf("measured %.1f LUFS against %.1f target", measured, settings.TargetLUFS))

	if math.Abs(measured-settings.TargetLUFS) <= loudnessToleranceLU {
		return first, measured, measured, nil
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusAdjusting); err != nil {
		return "", 0, 0, err
	}
	factor := musicTooLoudFactor
	if measured < settings.TargetLUFS {
		factor = musicTooSoftFactor
	}
	musicVol *= factor
	if musicVol < musicVolumeFloor {
		musicVol = musicVolumeFloor
	}
	if musicVol > musicVolumeCeiling {
		musicVol = musicVolumeCeiling
	}

	second := filepath.Join(workDir, "mix_2.mp3")
	if err := mixOnce(second, musicVol); err != nil {
		return "", 0, 0, err
	}
	remeasured, err := o.measure(ctx, second)
	if err != nil {
		remeasured = measured
	}
	o.progress(ctx, prodID, production.StatusAdjusting, 90,
		fmt.Sprintf("re-mixed at music volume %.2f, measured %.1f LUFS", musicVol, remeasured))
	o.log.Info("two-pass loudness",
		"production", prodID, "first", measured, "final", remeasured, "musicVolume", musicVol)
	return second, measured, remeasured, nil
}

func (o *Orchestrator) measure(ctx context.Context, path string) (float64, error) {
	var lufs float64
	err := o.procCall(ctx, o.timeouts.Measure, "measure loudness", func(cctx context.Context) error {
		var callErr error
		lufs, callErr = o.proc.MeasureLoudness(cctx, path)
		return callErr
	})
	if err != nil {
		return 0, faults.Wrap(faults.KindLoudnessMeasureFailed, "measure loudness", err)
	}
	return lufs, nil
}

// enforceMixDuration applies the mix-phase duration contract: a final mix
// overshooting the ad duration by more than 5 % is time-scaled back toward
// the target, as far as the stretch clamp permits.
func (o *Orchestrator) enforceMixDuration(ctx context.Context, prodID string, target float64, mixedPath, workDir string) (string, error) {
	if target <= 0 {
		return mixedPath, nil
	}
	actual, err := o.proc.GetDuration(ctx, mixedPath)
	if err != nil {
		return "", faults.Wrap(faults.KindTransientProvider, "probe mix duration", err)
	}
	if actual <= target*mixOvershootRatio {
		return mixedPath, nil
	}
	requested := clampStretchTarget(actual, target)
	if requested != target {
		o.warn(ctx, prodID, production.StatusAdjusting, fmt.Sprintf(
			"final mix runs %.1fs against a %.1fs target, stretch clamped to %.1fs", actual, target, requested))
	}

	scaled := filepath.Join(workDir, "mix_scaled.mp3")
	err = o.procCall(ctx, o.timeouts.Mix, "stretch mix", func(cctx context.Context) error {
		return o.proc.StretchToDuration(cctx, mixedPath, requested, scaled)
	})
	if err != nil {
		if errors.Is(err, audio.ErrScalingRefused) {
			o.warn(ctx, prodID, production.StatusAdjusting, fmt.Sprintf(
				"final mix runs %.1fs against a %.1fs target, stretch refused", actual, requested))
			return mixedPath, nil
		}
		return "", err
	}
	o.progress(ctx, prodID, production.StatusAdjusting, 95, "final duration enforced")
	return scaled, nil
}

// procCall wraps one audio toolchain invocation in its stage ceiling and
// classifies failures.
func (o *Orchestrator) procCall(ctx context.Context, ceiling time.Duration, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()
	if err := fn(cctx); err != nil {
		if errors.Is(err, audio.ErrScalingRefused) {
			return err
		}
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return faults.Wrap(faults.KindTimeout, op, err)
		}
		return faults.Wrap(faults.KindTransientProvider, op, err)
	}
	return nil
}
