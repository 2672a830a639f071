// Package mock provides an in-memory mock implementation of
// [audio.Processor] for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts and arguments, and it exposes exported
// fields that the test can set to control return values. Write operations
// create the output file so path-existence checks in the code under test hold.
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
)

// TrimCall records the arguments of a single Trim invocation.
type TrimCall struct {
	Path     string
	Duration float64
	Out      string
}

// StretchCall records the arguments of a single StretchToDuration invocation.
type StretchCall struct {
	Path     string
	Duration float64
	Out      string
}

// VolumeCurveCall records the arguments of a single ApplyVolumeCurve invocation.
type VolumeCurveCall struct {
	Path          string
	Segments      []audio.VolumeSegment
	TotalDuration float64
	Out           string
}

// MixCall records the arguments of a single Mix invocation.
type MixCall struct {
	Opts audio.MixOptions
	Out  string
}

// MasterCall records the arguments of a single Master invocation.
type MasterCall struct {
	Path     string
	Preset   audio.MasterPreset
	Loudness audio.LoudnessPreset
	Out      string
}

// Processor is a mock implementation of [audio.Processor].
// Set the exported result fields before use; inspect the call slices after.
type Processor struct {
	mu sync.Mutex

	// Durations maps a path to the value GetDuration returns for it.
	// Paths not in the map return DurationResult.
	Durations      map[string]float64
	DurationResult float64
	DurationError  error

	// LoudnessResults is consumed front-to-back by MeasureLoudness; once
	// exhausted the last value repeats.
	LoudnessResults []float64
	LoudnessError   error

	// PCMSamples and PCMRate are returned by DecodePCM.
	PCMSamples []int16
	PCMRate    int
	PCMError   error

	TrimError    error
	LoopError    error
	StretchError error
	CurveError   error
	MixError     error
	MasterError  error

	TrimCalls     []TrimCall
	LoopCalls     []TrimCall
	StretchCalls  []StretchCall
	CurveCalls    []VolumeCurveCall
	MixCalls      []MixCall
	MasterCalls   []MasterCall
	MeasuredPaths []string
}

var _ audio.Processor = (*Processor)(nil)

// GetDuration implements [audio.Processor].
func (p *Processor) GetDuration(_ context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DurationError != nil {
		return 0, p.DurationError
	}
	if d, ok := p.Durations[path]; ok {
		return d, nil
	}
	return p.DurationResult, nil
}

// Trim implements [audio.Processor]. Records the call and touches out.
func (p *Processor) Trim(_ context.Context, path string, duration float64, out string) error {
	p.mu.Lock()
	p.TrimCalls = append(p.TrimCalls, TrimCall{Path: path, Duration: duration, Out: out})
	err := p.TrimError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return touch(out)
}

// ExtendByLoop implements [audio.Processor]. Records the call and touches out.
func (p *Processor) ExtendByLoop(_ context.Context, path string, duration float64, out string) error {
	p.mu.Lock()
	p.LoopCalls = append(p.LoopCalls, TrimCall{Path: path, Duration: duration, Out: out})
	err := p.LoopError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return touch(out)
}

// StretchToDuration implements [audio.Processor]. Records the call and touches out.
func (p *Processor) StretchToDuration(_ context.Context, path string, duration float64, out string) error {
	p.mu.Lock()
	p.StretchCalls = append(p.StretchCalls, StretchCall{Path: path, Duration: duration, Out: out})
	err := p.StretchError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return touch(out)
}

// ApplyVolumeCurve implements [audio.Processor]. Records the call and touches out.
func (p *Processor) ApplyVolumeCurve(_ context.Context, path string, segments []audio.VolumeSegment, totalDuration float64, out string) error {
	p.mu.Lock()
	segs := make([]audio.VolumeSegment, len(segments))
	copy(segs, segments)
	p.CurveCalls = append(p.CurveCalls, VolumeCurveCall{
		Path: path, Segments: segs, TotalDuration: totalDuration, Out: out,
	})
	err := p.CurveError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return touch(out)
}

// MeasureLoudness implements [audio.Processor]. Pops the next scripted value.
func (p *Processor) MeasureLoudness(_ context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MeasuredPaths = append(p.MeasuredPaths, path)
	if p.LoudnessError != nil {
		return 0, p.LoudnessError
	}
	if len(p.LoudnessResults) == 0 {
		return 0, nil
	}
	v := p.LoudnessResults[0]
	if len(p.LoudnessResults) > 1 {
		p.LoudnessResults = p.LoudnessResults[1:]
	}
	return v, nil
}

// Mix implements [audio.Processor]. Records the call and touches out.
func (p *Processor) Mix(_ context.Context, opts audio.MixOptions, out string) error {
	p.mu.Lock()
	p.MixCalls = append(p.MixCalls, MixCall{Opts: opts, Out: out})
	err := p.MixError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return touch(out)
}

// Master implements [audio.Processor]. Records the call and touches out.
func (p *Processor) Master(_ context.Context, path string, preset audio.MasterPreset, loudness audio.LoudnessPreset, out string) error {
	p.mu.Lock()
	p.MasterCalls = append(p.MasterCalls, MasterCall{Path: path, Preset: preset, Loudness: loudness, Out: out})
	err := p.MasterError
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return touch(out)
}

// DecodePCM implements [audio.Processor].
func (p *Processor) DecodePCM(context.Context, string) ([]int16, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PCMError != nil {
		return nil, 0, p.PCMError
	}
	rate := p.PCMRate
	if rate == 0 {
		rate = 16000
	}
	return p.PCMSamples, rate, nil
}

func touch(path string) error {
	return os.WriteFile(path, []byte("audio"), 0o644)
}
