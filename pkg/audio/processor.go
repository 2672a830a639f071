// Package audio defines the Processor interface over the audio toolchain.
//
// A Processor wraps an external audio engine (the shipped implementation uses
// ffmpeg, see the ffmpeg subpackage) and exposes the operations the production
// pipeline needs: duration probing, trimming, loop-extension, time-stretching,
// volume curves, loudness measurement, mixing, and mastering. Every operation
// that writes a file must do so atomically: the output path either holds the
// complete result or does not exist.
//
// Implementations must be safe for concurrent use.
package audio

import (
	"context"
	"errors"
)

// ErrScalingRefused is returned by StretchToDuration when the requested ratio
// falls outside the natural-sounding clamp. The caller keeps the original file.
var ErrScalingRefused = errors.New("audio: stretch ratio outside accepted range")

// StretchRatioMin and StretchRatioMax bound the time-scaling speed factor
// (source duration over requested duration). Outside this range speech sounds
// rushed or dragged, so implementations refuse rather than produce unnatural
// audio.
const (
	StretchRatioMin = 0.85
	StretchRatioMax = 1.25
)

// VolumeSegment is one piecewise-constant gain span for ApplyVolumeCurve.
// Outside all segments the gain is 1.
type VolumeSegment struct {
	Start      float64
	End        float64
	Multiplier float64
}

// FadeCurve selects the gain shape of mix fades.
type FadeCurve string

const (
	FadeLinear FadeCurve = "linear"
	FadeExp    FadeCurve = "exp"
	FadeQsin   FadeCurve = "qsin"
	FadeLog    FadeCurve = "log"
)

// MixOptions configures a Mix call. MusicPath is required; VoicePath is
// optional (a music-only render).
type MixOptions struct {
	VoicePath string
	MusicPath string

	// VoiceDelay shifts the voice into the bed, in seconds.
	VoiceDelay float64

	VoiceVolume float64
	MusicVolume float64

	// FadeIn is clamped to [0.02, 0.15] s and FadeOut to [0.5, 3.0] s.
	FadeIn    float64
	FadeOut   float64
	FadeCurve FadeCurve

	// AudioDucking enables sidechain attenuation keyed on voice presence.
	// Leave false when the music already carries a baked-in duck curve.
	AudioDucking  bool
	DuckingAmount float64

	NormalizeLoudness  bool
	LoudnessTargetLUFS float64
	LoudnessTruePeak   float64

	// MaxDuration, when positive, fades out and cuts the result.
	MaxDuration float64
}

// MasterPreset selects the EQ / compression / limiter chain.
type MasterPreset string

const (
	MasterBalanced      MasterPreset = "balanced"
	MasterVoiceEnhanced MasterPreset = "voiceenhanced"
	MasterMusicEnhanced MasterPreset = "musicenhanced"
)

// IsValid reports whether p is a recognised master preset.
func (p MasterPreset) IsValid() bool {
	switch p {
	case MasterBalanced, MasterVoiceEnhanced, MasterMusicEnhanced:
		return true
	}
	return false
}

// LoudnessPreset selects the delivery loudness target.
type LoudnessPreset string

const (
	LoudnessBroadcast     LoudnessPreset = "broadcast"
	LoudnessCrossPlatform LoudnessPreset = "crossPlatform"
)

// TargetLUFS returns the integrated loudness target of the preset.
func (p LoudnessPreset) TargetLUFS() float64 {
	if p == LoudnessBroadcast {
		return -24
	}
	return -16
}

// Processor is the abstraction over the audio toolchain.
type Processor interface {
	// GetDuration probes the duration of the file at path, in seconds.
	GetDuration(ctx context.Context, path string) (float64, error)

	// Trim writes a copy of path cut to duration seconds (tolerance 10 ms).
	Trim(ctx context.Context, path string, duration float64, out string) error

	// ExtendByLoop concatenates copies of path until duration is reached,
	// crossfading each join by 50 ms to avoid clicks.
	ExtendByLoop(ctx context.Context, path string, duration float64, out string) error

	// StretchToDuration time-scales path to duration without shifting pitch.
	// Speed factors outside [StretchRatioMin, StretchRatioMax] fail with
	// ErrScalingRefused.
	StretchToDuration(ctx context.Context, path string, duration float64, out string) error

	// ApplyVolumeCurve bakes the ordered gain segments into path. Boundaries
	// are smoothed over 20 ms.
	ApplyVolumeCurve(ctx context.Context, path string, segments []VolumeSegment, totalDuration float64, out string) error

	// MeasureLoudness returns the integrated loudness of path in LUFS.
	MeasureLoudness(ctx context.Context, path string) (float64, error)

	// Mix combines the voice and music inputs per opts.
	Mix(ctx context.Context, opts MixOptions, out string) error

	// Master applies the preset processing chain and normalizes to the
	// loudness preset.
	Master(ctx context.Context, path string, preset MasterPreset, loudness LoudnessPreset, out string) error

	// DecodePCM decodes path into mono 16-bit samples for analysis.
	DecodePCM(ctx context.Context, path string) (samples []int16, sampleRate int, err error)
}
