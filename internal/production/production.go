// Package production holds the root entity of one pipeline run and its
// persistence.
//
// A Production is created on submission and then mutated only by the
// orchestrator. Its status walks a fixed forward-only ladder from PENDING to
// COMPLETED; FAILED and CANCELLED are terminal escape hatches reachable from
// any non-terminal state. The transition rules live in [Transition] so they
// can be checked without a store or a worker runtime.
package production

import (
	"fmt"
	"time"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/transcript"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// Status is the lifecycle state of a Production.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusScript    Status = "SCRIPT"
	StatusVoice     Status = "VOICE"
	StatusMusic     Status = "MUSIC"
	StatusAnalyzing Status = "ANALYZING"
	StatusAligning  Status = "ALIGNING"
	StatusMixing    Status = "MIXING"
	StatusMeasuring Status = "MEASURING"
	StatusAdjusting Status = "ADJUSTING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// statusRank orders the forward ladder. Terminal failure states sit outside
// the ladder and are handled separately.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusScript:    1,
	StatusVoice:     2,
	StatusMusic:     3,
	StatusAnalyzing: 4,
	StatusAligning:  5,
	StatusMixing:    6,
	StatusMeasuring: 7,
	StatusAdjusting: 8,
	StatusCompleted: 9,
}

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	if _, ok := statusRank[s]; ok {
		return true
	}
	return s == StatusFailed || s == StatusCancelled
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ProgressFloor is the minimum progress percentage implied by a status.
// Stores use it to keep progress monotonic when a stage reports late.
func (s Status) ProgressFloor() int {
	switch s {
	case StatusPending:
		return 0
	case StatusScript:
		return 5
	case StatusVoice:
		return 20
	case StatusMusic:
		return 40
	case StatusAnalyzing:
		return 55
	case StatusAligning:
		return 65
	case StatusMixing:
		return 75
	case StatusMeasuring:
		return 85
	case StatusAdjusting:
		return 90
	case StatusCompleted:
		return 100
	}
	return 0
}

// Transition validates a status change. Forward moves on the ladder are
// allowed, including skips (a skipped ADJUSTING pass is normal). FAILED and
// CANCELLED are reachable from any non-terminal state. Anything else is
// rejected.
func Transition(from, to Status) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("production: transition %s -> %s: unknown status", from, to)
	}
	if from.Terminal() {
		return fmt.Errorf("production: transition %s -> %s: %s is terminal", from, to, from)
	}
	if to == StatusFailed || to == StatusCancelled {
		return nil
	}
	if statusRank[to] <= statusRank[from] {
		return fmt.Errorf("production: transition %s -> %s: status may only advance", from, to)
	}
	return nil
}

// Settings are the user-provided knobs captured at submission time.
type Settings struct {
	Prompt         string
	VoiceID        string
	Tone           string
	TargetDuration float64
	VoiceVolume    float64
	MusicVolume    float64
	FadeIn         float64
	FadeOut        float64
	FadeCurve      types.FadeCurve
	DuckingAmount  float64
	OutputFormat   string
	TargetLUFS     float64
	TruePeakDB     float64
}

// Production is the root entity of one pipeline run.
type Production struct {
	ID      string
	OwnerID string

	Status   Status
	Progress int

	// ErrorKind and ErrorMessage carry the last terminal error. Soft
	// failures accumulate in Warnings instead.
	ErrorKind    faults.Kind
	ErrorMessage string
	Warnings     []string

	ScriptID     string
	VoiceAssetID string
	MusicAssetID string
	FinalMixID   string

	Settings Settings

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Script is the generated ad copy plus the blueprint metadata the rest of
// the pipeline consumes.
type Script struct {
	ID           string
	ProductionID string
	Text         string
	Blueprint    types.AdBlueprint

	// TTS is filled by the voice stage once synthesis and timing extraction
	// have run.
	TTS *TTSMetadata

	CreatedAt time.Time
}

// TTSMetadata records the voice synthesis outcome for a script.
type TTSMetadata struct {
	Sentences     []transcript.Span
	VoiceDuration float64

	// Stretched is set when voice-phase duration enforcement rescaled the
	// audio.
	Stretched bool
}

// AssetKind classifies a stored audio artifact.
type AssetKind string

const (
	AssetVoice AssetKind = "voice"
	AssetMusic AssetKind = "music"
	AssetMix   AssetKind = "mix"
)

// IsValid reports whether k is a recognised asset kind.
func (k AssetKind) IsValid() bool {
	return k == AssetVoice || k == AssetMusic || k == AssetMix
}

// Asset is one stored audio file belonging to a Production.
type Asset struct {
	ID           string
	ProductionID string
	Kind         AssetKind

	// Variant distinguishes multiple assets of one kind, for example the
	// music bed before and after looping.
	Variant string

	// Path is the absolute location on disk; PublicURL is Path with the
	// upload root stripped.
	Path      string
	PublicURL string

	DurationSeconds float64
	CreatedAt       time.Time
}
