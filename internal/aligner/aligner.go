// Package aligner snaps the voice-over and its ducking curve onto the
// detected grid of a rendered music bed.
//
// The blueprint plans against a synthetic grid; the bed that comes back from
// the text-to-music provider rarely matches it exactly. The aligner takes the
// analyzer's detected downbeats and decides where the voice actually enters,
// where the bed should cut off for the button ending, and where every ducking
// boundary lands so volume moves happen on beats instead of mid-phrase.
package aligner

import (
	"math"
	"sort"

	"github.com/Unmesh28/voice-ad-sub002/internal/analysis"
	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/transcript"
)

const (
	// entrySnapWindow is the half-bar fraction within which the voice entry
	// snaps to a detected downbeat.
	entrySnapFraction = 0.5

	// duckLeadIn and duckTail widen each ducking segment so attenuation is in
	// place before the first word and releases after the last.
	duckLeadIn = 0.080
	duckTail   = 0.120

	// beatSnapWindow is how far a ducking boundary may move to land on a beat.
	beatSnapWindow = 0.040

	// mergeGap joins ducking segments separated by less than this.
	mergeGap = 0.150

	minMultiplier = 0.1
	maxMultiplier = 3.0
	minDuckLevel  = 0.05
	maxDuckLevel  = 1.0
)

// Input carries everything Align needs. Sentences are voice-relative.
type Input struct {
	Analysis  *analysis.Analysis
	Sentences []transcript.Span

	// PreRollDuration is the blueprint's ideal voice entry point.
	PreRollDuration float64

	PostRollBars int
	BarDuration  float64

	// DuckLevel is the base music attenuation under speech.
	DuckLevel float64

	// Multipliers scale DuckLevel per sentence. Missing entries default to 1.
	Multipliers []float64
}

// Segment is one ducking span in bed time.
type Segment struct {
	Start float64
	End   float64
	Level float64
}

// Result is the aligned mix geometry.
type Result struct {
	// VoiceDelay is where the voice enters, in bed time.
	VoiceDelay float64

	// MusicCutoffTime is where the bed should end for the button ending.
	MusicCutoffTime float64

	// ButtonEndingBar is the 1-indexed bar of the cutoff.
	ButtonEndingBar int

	Segments []Segment

	// Score in [0, 1] reports alignment quality. Informational only.
	Score float64
}

// Align computes the aligned mix geometry. ALIGNMENT_INFEASIBLE means the
// voice cannot fit the bed even at zero delay; callers then mix with
// voiceDelay zero and the blueprint's sentence curve.
func Align(in Input) (*Result, error) {
	if in.Analysis == nil || len(in.Analysis.Downbeats) == 0 {
		return nil, faults.New(faults.KindAlignmentInfeasible, "no detected grid")
	}
	if len(in.Sentences) == 0 {
		return nil, faults.New(faults.KindAlignmentInfeasible, "no sentence timings")
	}
	if in.BarDuration <= 0 {
		return nil, faults.New(faults.KindAlignmentInfeasible, "bar duration must be positive")
	}

	postRoll := float64(in.PostRollBars) * in.BarDuration
	duration := in.Analysis.Duration

	delay, snapped := chooseVoiceDelay(in, postRoll, duration)
	if delay < 0 {
		return nil, faults.New(faults.KindAlignmentInfeasible,
			"voice does not fit the bed even at zero delay")
	}

	cutoff, buttonBar, buttonInside := buttonEnding(in, delay, postRoll, duration)
	segments := duckingSegments(in, delay, cutoff)

	return &Result{
		VoiceDelay:      delay,
		MusicCutoffTime: cutoff,
		ButtonEndingBar: buttonBar,
		Segments:        segments,
		Score:           score(in, delay, snapped, buttonInside, segments),
	}, nil
}

// chooseVoiceDelay snaps the blueprint's pre-roll to the nearest detected
// downbeat within half a bar, then backs off toward zero until the first
// sentence leaves room for the post-roll. A negative return means infeasible.
func chooseVoiceDelay(in Input, postRoll, duration float64) (delay float64, snapped bool) {
	delay = in.PreRollDuration

	window := in.BarDuration * entrySnapFraction
	if db, dist := nearest(in.Analysis.Downbeats, delay); dist <= window {
		delay = db
		snapped = true
	}

	firstEnd := in.Sentences[0].End
	if delay+firstEnd+postRoll > duration {
		delay = duration - postRoll - firstEnd
		snapped = false
	}
	return delay, snapped
}

// buttonEnding finds the first downbeat at or after the last word, adds the
// post-roll, and reports whether the cutoff landed inside the bed.
func buttonEnding(in Input, delay, postRoll, duration float64) (cutoff float64, bar int, inside bool) {
	lastEnd := delay + in.Sentences[len(in.Sentences)-1].End

	idx := sort.SearchFloat64s(in.Analysis.Downbeats, lastEnd-1e-9)
	if idx >= len(in.Analysis.Downbeats) {
		return duration, len(in.Analysis.Downbeats), false
	}
	cutoff = in.Analysis.Downbeats[idx] + postRoll
	bar = idx + 1 + in.PostRollBars
	if cutoff > duration {
		return duration, bar, false
	}
	return cutoff, bar, true
}

// duckingSegments builds the widened, beat-snapped, merged ducking list.
// Segments are clamped to [0, cutoff], ordered, and non-overlapping.
func duckingSegments(in Input, delay, cutoff float64) []Segment {
	beats := snapGrid(in.Analysis.Downbeats, in.BarDuration)

	raw := make([]Segment, 0, len(in.Sentences))
	for i, s := range in.Sentences {
		mult := 1.0
		if i < len(in.Multipliers) && in.Multipliers[i] > 0 {
			mult = clamp(in.Multipliers[i], minMultiplier, maxMultiplier)
		}
		level := clamp(in.DuckLevel*mult, minDuckLevel, maxDuckLevel)

		start := delay + s.Start - duckLeadIn
		end := delay + s.End + duckTail
		if b, dist := nearest(beats, start); dist <= beatSnapWindow {
			start = b
		}
		if b, dist := nearest(beats, end); dist <= beatSnapWindow {
			end = b
		}
		start = clamp(start, 0, cutoff)
		end = clamp(end, 0, cutoff)
		if end <= start {
			continue
		}
		raw = append(raw, Segment{Start: start, End: end, Level: level})
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].Start < raw[j].Start })

	var merged []Segment
	for _, seg := range raw {
		if len(merged) == 0 {
			merged = append(merged, seg)
			continue
		}
		last := &merged[len(merged)-1]
		if seg.Start-last.End < mergeGap {
			if seg.End > last.End {
				last.End = seg.End
			}
			// The deeper duck wins for the joined span.
			if seg.Level < last.Level {
				last.Level = seg.Level
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// snapGrid returns the downbeats plus their half-bar subdivisions, sorted.
func snapGrid(downbeats []float64, barDuration float64) []float64 {
	grid := make([]float64, 0, len(downbeats)*2)
	for _, db := range downbeats {
		grid = append(grid, db, db+barDuration/2)
	}
	sort.Float64s(grid)
	return grid
}

// score combines entry closeness, button placement, and duck coverage into a
// single informational number.
func score(in Input, delay float64, snapped, buttonInside bool, segments []Segment) float64 {
	entry := 0.0
	if snapped {
		entry = 1.0
	} else if _, dist := nearest(in.Analysis.Downbeats, delay); dist < in.BarDuration {
		entry = 1.0 - dist/in.BarDuration
	}

	button := 0.0
	if buttonInside {
		button = 1.0
	}

	var voiceTime, duckTime float64
	for _, s := range in.Sentences {
		voiceTime += s.End - s.Start
	}
	for _, seg := range segments {
		duckTime += seg.End - seg.Start
	}
	coverage := 0.0
	if voiceTime > 0 {
		coverage = math.Min(duckTime/voiceTime, 1.0)
	}

	return clamp(0.4*entry+0.3*button+0.3*coverage, 0, 1)
}

// nearest returns the closest grid value to t and its absolute distance.
// The grid must be sorted ascending and non-empty.
func nearest(grid []float64, t float64) (value, dist float64) {
	i := sort.SearchFloat64s(grid, t)
	best := grid[0]
	if i < len(grid) {
		best = grid[i]
	}
	if i > 0 && math.Abs(grid[i-1]-t) < math.Abs(best-t) {
		best = grid[i-1]
	}
	return best, math.Abs(best - t)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
