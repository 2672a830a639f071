// Package timing provides the pure bar/beat arithmetic underneath the musical
// blueprint and the voice-to-music aligner.
//
// All functions are deterministic, allocation-light, and operate on seconds
// and bar indices only — no audio I/O. Bars are 1-indexed unless a function
// documents otherwise.
package timing

import (
	"math"
	"strconv"
	"strings"
)

// TimeSignature describes the metre of the bed. Only the beats-per-bar count
// matters for grid arithmetic; the note value is carried for prompt text.
type TimeSignature struct {
	BeatsPerBar int
	NoteValue   int
}

// CommonTime is the 4/4 default used whenever a caller passes the zero value.
var CommonTime = TimeSignature{BeatsPerBar: 4, NoteValue: 4}

// String renders the signature as "4/4".
func (ts TimeSignature) String() string {
	ts = ts.orDefault()
	return strconv.Itoa(ts.BeatsPerBar) + "/" + strconv.Itoa(ts.NoteValue)
}

func (ts TimeSignature) orDefault() TimeSignature {
	if ts.BeatsPerBar <= 0 {
		return CommonTime
	}
	if ts.NoteValue <= 0 {
		ts.NoteValue = 4
	}
	return ts
}

// BarDuration returns the length of one bar in seconds at the given BPM.
func BarDuration(bpm float64, ts TimeSignature) float64 {
	ts = ts.orDefault()
	return (60.0 / bpm) * float64(ts.BeatsPerBar)
}

// BarGrid is a whole-bar grid covering at least a requested duration.
type BarGrid struct {
	BarDuration   float64
	TotalBars     int
	TotalDuration float64
}

// BuildBarGrid returns the smallest whole-bar grid whose total duration covers
// minDuration.
func BuildBarGrid(bpm, minDuration float64, ts TimeSignature) BarGrid {
	barDur := BarDuration(bpm, ts)
	totalBars := int(math.Ceil(minDuration / barDur))
	if totalBars < 1 {
		totalBars = 1
	}
	return BarGrid{
		BarDuration:   barDur,
		TotalBars:     totalBars,
		TotalDuration: float64(totalBars) * barDur,
	}
}

// OptimizeBPMForDuration searches integer BPMs in [target−rng, target+rng] for
// the one whose whole-bar grid lands closest to desiredDuration. Ties break
// toward the target BPM.
func OptimizeBPMForDuration(targetBPM, desiredDuration float64, rng int, ts TimeSignature) float64 {
	if rng < 0 {
		rng = 0
	}
	best := targetBPM
	bestErr := math.Abs(BuildBarGrid(targetBPM, desiredDuration, ts).TotalDuration - desiredDuration)
	bestDist := 0.0

	lo := int(math.Round(targetBPM)) - rng
	hi := int(math.Round(targetBPM)) + rng
	for bpm := lo; bpm <= hi; bpm++ {
		if bpm <= 0 {
			continue
		}
		candidate := float64(bpm)
		errAbs := math.Abs(BuildBarGrid(candidate, desiredDuration, ts).TotalDuration - desiredDuration)
		dist := math.Abs(candidate - targetBPM)
		if errAbs < bestErr-1e-9 || (math.Abs(errAbs-bestErr) <= 1e-9 && dist < bestDist) {
			best, bestErr, bestDist = candidate, errAbs, dist
		}
	}
	return best
}

// RollOptions tunes CalculatePrePostRoll.
type RollOptions struct {
	// Genre biases the pre-roll: ambient/cinematic beds breathe for 3 bars.
	Genre string

	// AdDuration is the target ad length in seconds. Ads of 15 s or less get a
	// single pre-roll bar.
	AdDuration float64

	TimeSignature TimeSignature
}

// Roll is the bed-only padding around the voice-over.
type Roll struct {
	PreRollBars        int
	PostRollBars       int
	PreRollDuration    float64
	PostRollDuration   float64
	TotalMusicDuration float64
}

// CalculatePrePostRoll sizes the bed-only bars before the voice enters and
// after it ends. Defaults: 2 bars pre-roll, 1 bar post-roll.
func CalculatePrePostRoll(voiceDuration, bpm float64, opts RollOptions) Roll {
	barDur := BarDuration(bpm, opts.TimeSignature)

	pre := 2
	if opts.AdDuration > 0 && opts.AdDuration <= 15 {
		pre = 1
	}
	if isSpaciousGenre(opts.Genre) {
		pre = 3
	}
	post := 1

	voiceBars := int(math.Ceil(voiceDuration / barDur))
	if voiceBars < 1 {
		voiceBars = 1
	}

	return Roll{
		PreRollBars:        pre,
		PostRollBars:       post,
		PreRollDuration:    float64(pre) * barDur,
		PostRollDuration:   float64(post) * barDur,
		TotalMusicDuration: float64(pre+voiceBars+post) * barDur,
	}
}

// isSpaciousGenre reports whether the genre description implies a slow build.
func isSpaciousGenre(genre string) bool {
	g := strings.ToLower(genre)
	return strings.Contains(g, "ambient") || strings.Contains(g, "cinematic")
}

// Downbeat locates the bar boundary nearest a point in time.
type Downbeat struct {
	// Time is the downbeat position in seconds.
	Time float64

	// Bar is the 0-indexed bar whose downbeat this is.
	Bar int

	// Offset is t − Time; negative when t precedes the downbeat.
	Offset float64
}

// NearestDownbeat returns the downbeat closest to t on a synthetic grid
// anchored at zero.
func NearestDownbeat(t, bpm float64, ts TimeSignature) Downbeat {
	barDur := BarDuration(bpm, ts)
	bar := int(math.Round(t / barDur))
	if bar < 0 {
		bar = 0
	}
	beatTime := float64(bar) * barDur
	return Downbeat{Time: beatTime, Bar: bar, Offset: t - beatTime}
}

// GenerateDownbeats returns the ordered downbeat times in [start, end].
func GenerateDownbeats(start, end, bpm float64, ts TimeSignature) []float64 {
	barDur := BarDuration(bpm, ts)
	if end < start || barDur <= 0 {
		return nil
	}
	first := math.Ceil(start/barDur-1e-9) * barDur
	var beats []float64
	for t := first; t <= end+1e-9; t += barDur {
		beats = append(beats, t)
	}
	return beats
}

// SnapToPhrase rounds a bar index to the nearest phrase boundary. The result
// is always at least one phrase length, so snapping never collapses to bar 0.
func SnapToPhrase(bar, phraseLen int) int {
	if phraseLen < 1 {
		phraseLen = 1
	}
	snapped := int(math.Round(float64(bar)/float64(phraseLen))) * phraseLen
	if snapped < phraseLen {
		snapped = phraseLen
	}
	return snapped
}
