package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/timing"
)

type stubDecoder struct {
	samples []int16
	rate    int
	err     error
}

func (d *stubDecoder) DecodePCM(context.Context, string) ([]int16, int, error) {
	return d.samples, d.rate, d.err
}

// clickTrack renders seconds of audio at rate with a short burst on every
// beat. Downbeats (every beatsPerBar-th beat) are accented.
func clickTrack(seconds float64, rate int, bpm float64, beatsPerBar int) []int16 {
	samples := make([]int16, int(seconds*float64(rate)))
	beatDur := 60.0 / bpm
	clickLen := int(0.03 * float64(rate))

	beat := 0
	for t := 0.0; t < seconds; t += beatDur {
		amp := int16(8000)
		if beat%beatsPerBar == 0 {
			amp = 16000
		}
		start := int(t * float64(rate))
		for i := start; i < start+clickLen && i < len(samples); i++ {
			samples[i] = amp
		}
		beat++
	}
	return samples
}

func TestAnalyzeDetectsClickTrackBPM(t *testing.T) {
	const rate = 8000
	dec := &stubDecoder{samples: clickTrack(10, rate, 120, 4), rate: rate}
	a := New(dec, nil)

	res, err := a.Analyze(context.Background(), "bed.mp3", 120, timing.CommonTime)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.DetectedBPM != 120 {
		t.Errorf("DetectedBPM = %v, want 120", res.DetectedBPM)
	}
	if math.Abs(res.Duration-10) > 0.01 {
		t.Errorf("Duration = %v, want 10", res.Duration)
	}

	if len(res.Downbeats) < 4 {
		t.Fatalf("got %d downbeats, want at least 4 over 10 s", len(res.Downbeats))
	}
	barDur := timing.BarDuration(120, timing.CommonTime) // 2 s
	for i := 1; i < len(res.Downbeats); i++ {
		gap := res.Downbeats[i] - res.Downbeats[i-1]
		if math.Abs(gap-barDur) > 0.02 {
			t.Errorf("downbeat gap %d = %v, want %v", i, gap, barDur)
		}
	}
	// The accented clicks sit on bar starts, so the grid must anchor within
	// the first beat.
	if res.Downbeats[0] > 0.5 {
		t.Errorf("first downbeat at %v, want within the first beat", res.Downbeats[0])
	}
}

func TestAnalyzeBarEnergies(t *testing.T) {
	const rate = 8000
	dec := &stubDecoder{samples: clickTrack(8, rate, 120, 4), rate: rate}
	a := New(dec, nil)

	res, err := a.Analyze(context.Background(), "bed.mp3", 120, timing.TimeSignature{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Bars) != len(res.Downbeats) {
		t.Fatalf("got %d bars for %d downbeats", len(res.Bars), len(res.Downbeats))
	}
	for i, b := range res.Bars {
		if b.EndTime <= b.StartTime {
			t.Errorf("bar %d has inverted span %v-%v", i, b.StartTime, b.EndTime)
		}
		if b.EnergyDB > 0 || b.EnergyDB < -96 {
			t.Errorf("bar %d energy %v dB outside [-96, 0]", i, b.EnergyDB)
		}
		if b.EnergyDB == -96 {
			t.Errorf("bar %d reported silent, click track is not", i)
		}
	}
}

func TestAnalyzeFailureModes(t *testing.T) {
	tests := []struct {
		name string
		dec  *stubDecoder
	}{
		{"decode error", &stubDecoder{err: errors.New("ffmpeg exited 1")}},
		{"too short", &stubDecoder{samples: make([]int16, 100), rate: 8000}},
		{"silence", &stubDecoder{samples: make([]int16, 80000), rate: 8000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dec, nil).Analyze(context.Background(), "bed.mp3", 100, timing.CommonTime)
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := faults.KindOf(err); kind != faults.KindAnalysisFailed {
				t.Errorf("kind = %v, want ANALYSIS_FAILED", kind)
			}
		})
	}
}

func TestAnalyzeRejectsBadTarget(t *testing.T) {
	dec := &stubDecoder{samples: clickTrack(5, 8000, 100, 4), rate: 8000}
	if _, err := New(dec, nil).Analyze(context.Background(), "bed.mp3", 0, timing.CommonTime); err == nil {
		t.Error("zero target BPM must fail")
	}
}
