// Package analysis detects the bar grid of a rendered music bed.
//
// Text-to-music providers do not honour a requested BPM exactly, so the
// aligner cannot trust the synthetic grid the blueprint was planned on. The
// analyzer decodes the bed to PCM, builds a low-frequency onset envelope, and
// searches integer BPMs around the target for the grid that best explains the
// onsets. The detected downbeats become the authoritative grid; the caller
// falls back to the synthetic grid when analysis fails.
package analysis

import (
	"context"
	"log/slog"
	"math"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/timing"
)

// Bar is one detected bar with its average energy.
type Bar struct {
	StartTime float64
	EndTime   float64
	EnergyDB  float64
}

// Analysis is the detected grid of a music bed.
type Analysis struct {
	DetectedBPM float64

	// Downbeats are the ordered bar-start times in seconds.
	Downbeats []float64

	Bars     []Bar
	Duration float64
}

// PCMDecoder decodes an audio file into mono 16-bit samples.
type PCMDecoder interface {
	DecodePCM(ctx context.Context, path string) (samples []int16, sampleRate int, err error)
}

// Analyzer detects bar grids. It never modifies the bed.
type Analyzer struct {
	dec PCMDecoder
	log *slog.Logger
}

// New returns an Analyzer reading PCM through dec.
func New(dec PCMDecoder, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{dec: dec, log: log}
}

const (
	// frameDuration is the envelope resolution.
	frameDuration = 0.01

	// bpmSearchRange bounds the integer BPM search around the target.
	bpmSearchRange = 10

	// lowpassCutoffHz keeps kicks and bass, drops voice-range content.
	lowpassCutoffHz = 150.0
)

// Analyze detects the bar grid of the bed at path. targetBPM anchors the
// search and breaks ties. Failures are reported as ANALYSIS_FAILED so callers
// can fall back to the synthetic grid.
func (a *Analyzer) Analyze(ctx context.Context, path string, targetBPM float64, ts timing.TimeSignature) (*Analysis, error) {
	if targetBPM <= 0 {
		return nil, faults.New(faults.KindAnalysisFailed, "target BPM must be positive")
	}
	samples, rate, err := a.dec.DecodePCM(ctx, path)
	if err != nil {
		return nil, faults.Wrap(faults.KindAnalysisFailed, "decode bed", err)
	}
	if rate <= 0 || len(samples) < rate {
		// Less than one second of audio cannot carry a bar grid.
		return nil, faults.New(faults.KindAnalysisFailed, "bed too short to analyze")
	}
	duration := float64(len(samples)) / float64(rate)

	envelope := lowFrequencyEnvelope(samples, rate)
	onsets := onsetStrength(envelope)
	if allZero(onsets) {
		return nil, faults.New(faults.KindAnalysisFailed, "bed carries no onset energy")
	}

	bpm, phase := bestGrid(onsets, duration, targetBPM, ts)
	barDur := timing.BarDuration(bpm, ts)

	var downbeats []float64
	for t := phase; t < duration-1e-9; t += barDur {
		downbeats = append(downbeats, t)
	}
	if len(downbeats) == 0 {
		return nil, faults.New(faults.KindAnalysisFailed, "no downbeats within bed duration")
	}

	res := &Analysis{
		DetectedBPM: bpm,
		Downbeats:   downbeats,
		Bars:        barEnergies(samples, rate, downbeats, barDur, duration),
		Duration:    duration,
	}
	a.log.Debug("bed analyzed",
		"path", path,
		"target_bpm", targetBPM,
		"detected_bpm", bpm,
		"downbeats", len(downbeats),
		"duration", duration)
	return res, nil
}

// lowFrequencyEnvelope low-passes the signal with a one-pole filter and
// reduces it to per-frame RMS values.
func lowFrequencyEnvelope(samples []int16, rate int) []float64 {
	rc := 1.0 / (2 * math.Pi * lowpassCutoffHz)
	dt := 1.0 / float64(rate)
	alpha := dt / (rc + dt)

	frameLen := int(float64(rate) * frameDuration)
	if frameLen < 1 {
		frameLen = 1
	}

	env := make([]float64, 0, len(samples)/frameLen+1)
	var filtered, sumSq float64
	count := 0
	for _, s := range samples {
		filtered += alpha * (float64(s) - filtered)
		sumSq += filtered * filtered
		count++
		if count == frameLen {
			env = append(env, math.Sqrt(sumSq/float64(count)))
			sumSq, count = 0, 0
		}
	}
	if count > 0 {
		env = append(env, math.Sqrt(sumSq/float64(count)))
	}
	return env
}

// onsetStrength is the half-wave rectified first difference of the envelope:
// energy rising, not energy present.
func onsetStrength(envelope []float64) []float64 {
	onsets := make([]float64, len(envelope))
	for i := 1; i < len(envelope); i++ {
		if d := envelope[i] - envelope[i-1]; d > 0 {
			onsets[i] = d
		}
	}
	return onsets
}

// bestGrid searches integer BPMs in [target−range, target+range] and, for
// each, the beat phase that collects the most onset energy. Ties break toward
// the target BPM.
func bestGrid(onsets []float64, duration, targetBPM float64, ts timing.TimeSignature) (bpm, phase float64) {
	bestBPM := targetBPM
	bestPhase := 0.0
	bestScore := -1.0
	bestDist := math.Inf(1)

	lo := int(math.Round(targetBPM)) - bpmSearchRange
	hi := int(math.Round(targetBPM)) + bpmSearchRange
	for cand := lo; cand <= hi; cand++ {
		if cand <= 0 {
			continue
		}
		beatDur := 60.0 / float64(cand)
		// Try phases at envelope resolution across one beat.
		for p := 0.0; p < beatDur; p += frameDuration {
			score := gridScore(onsets, duration, p, beatDur)
			dist := math.Abs(float64(cand) - targetBPM)
			if score > bestScore+1e-12 ||
				(math.Abs(score-bestScore) <= 1e-12 && dist < bestDist) {
				bestScore, bestBPM, bestPhase, bestDist = score, float64(cand), p, dist
			}
		}
	}

	// The downbeat phase is the strongest beat within the first bar.
	barDur := timing.BarDuration(bestBPM, ts)
	beatDur := 60.0 / bestBPM
	downPhase := bestPhase
	downScore := -1.0
	for p := bestPhase; p < bestPhase+barDur-1e-9 && p < duration; p += beatDur {
		score := gridScore(onsets, duration, p, barDur)
		if score > downScore {
			downScore, downPhase = score, p
		}
	}
	return bestBPM, downPhase
}

// gridScore sums onset strength at every grid line from phase with the given
// period.
func gridScore(onsets []float64, duration, phase, period float64) float64 {
	var sum float64
	for t := phase; t < duration; t += period {
		idx := int(t / frameDuration)
		if idx >= len(onsets) {
			break
		}
		sum += onsets[idx]
	}
	return sum
}

// barEnergies computes the average level of each detected bar in dBFS.
func barEnergies(samples []int16, rate int, downbeats []float64, barDur, duration float64) []Bar {
	bars := make([]Bar, 0, len(downbeats))
	for _, start := range downbeats {
		end := start + barDur
		if end > duration {
			end = duration
		}
		lo := int(start * float64(rate))
		hi := int(end * float64(rate))
		if hi > len(samples) {
			hi = len(samples)
		}
		var sumSq float64
		for _, s := range samples[lo:hi] {
			f := float64(s)
			sumSq += f * f
		}
		rms := 0.0
		if hi > lo {
			rms = math.Sqrt(sumSq / float64(hi-lo))
		}
		db := -96.0
		if rms > 0 {
			db = 20 * math.Log10(rms/32768.0)
		}
		bars = append(bars, Bar{StartTime: start, EndTime: end, EnergyDB: db})
	}
	return bars
}

func allZero(vs []float64) bool {
	for _, v := range vs {
		if v != 0 {
			return false
		}
	}
	return true
}
