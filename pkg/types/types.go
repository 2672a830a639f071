// Package types defines the shared types used across the ad-production
// pipeline.
//
// These types form the lingua franca between the LLM blueprint generator, the
// musical blueprint builder, the aligner, and the orchestrator. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports. String
// enums validate with IsValid; unknown values are rejected at the provider
// boundary.
package types

import "strconv"

// MusicalFunction classifies what a sentence does inside the ad's musical arc.
type MusicalFunction string

const (
	FunctionHook       MusicalFunction = "hook"
	FunctionBuild      MusicalFunction = "build"
	FunctionPeak       MusicalFunction = "peak"
	FunctionResolve    MusicalFunction = "resolve"
	FunctionTransition MusicalFunction = "transition"
	FunctionPause      MusicalFunction = "pause"
)

// IsValid reports whether f is a recognised musical function.
func (f MusicalFunction) IsValid() bool {
	switch f {
	case FunctionHook, FunctionBuild, FunctionPeak, FunctionResolve,
		FunctionTransition, FunctionPause:
		return true
	}
	return false
}

// EndingType selects how the bed closes under the last words.
type EndingType string

const (
	// EndingButton is a definitive, non-fading close on a downbeat.
	EndingButton EndingType = "button"

	EndingSustain EndingType = "sustain"
	EndingStinger EndingType = "stinger"
	EndingDecay   EndingType = "decay"
)

// IsValid reports whether e is a recognised ending type.
func (e EndingType) IsValid() bool {
	switch e {
	case EndingButton, EndingSustain, EndingStinger, EndingDecay:
		return true
	}
	return false
}

// Direction describes the energy trajectory of a blueprint section.
type Direction string

const (
	DirectionBuilding   Direction = "building"
	DirectionSustaining Direction = "sustaining"
	DirectionResolving  Direction = "resolving"
	DirectionPeak       Direction = "peak"
)

// IsValid reports whether d is a recognised direction.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionBuilding, DirectionSustaining, DirectionResolving, DirectionPeak:
		return true
	}
	return false
}

// FadeCurve selects the gain curve for mix fades.
type FadeCurve string

const (
	FadeLinear FadeCurve = "linear"
	FadeExp    FadeCurve = "exp"
	FadeQsin   FadeCurve = "qsin"
	FadeLog    FadeCurve = "log"
)

// IsValid reports whether c is a recognised fade curve.
func (c FadeCurve) IsValid() bool {
	switch c {
	case FadeLinear, FadeExp, FadeQsin, FadeLog:
		return true
	}
	return false
}

// ArcSegment is one movement of the ad's dramatic arc as planned by the LLM.
type ArcSegment struct {
	// Label names the segment ("hook", "proof", "cta").
	Label string `json:"label"`

	// StartSeconds and EndSeconds bound the segment in ad time.
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`

	// Energy is the 1–10 intensity level for this stretch.
	Energy int `json:"energy"`

	// MusicPrompt is free text describing the bed during this segment.
	MusicPrompt string `json:"musicPrompt"`
}

// SentenceCue is the LLM's per-sentence mixing guidance.
type SentenceCue struct {
	// VolumeMultiplier scales the duck level under this sentence. 1.0 leaves
	// the configured duck level unchanged.
	VolumeMultiplier float64 `json:"volumeMultiplier"`

	// Function is the sentence's musical role.
	Function MusicalFunction `json:"function"`
}

// MusicalStructure is the LLM's explicit song-form request.
type MusicalStructure struct {
	IntroType    string     `json:"introType"`
	IntroBars    int        `json:"introBars"`
	BodyFeel     string     `json:"bodyFeel"`
	PeakMoment   string     `json:"peakMoment"`
	EndingType   EndingType `json:"endingType"`
	OutroBars    int        `json:"outroBars"`
	Key          string     `json:"key"`
	PhraseLength int        `json:"phraseLength"`
}

// FadeSettings bounds the mix fades. FadeIn is clamped by the processor to
// [0.02, 0.15] s and FadeOut to [0.5, 3.0] s.
type FadeSettings struct {
	FadeIn  float64   `json:"fadeIn"`
	FadeOut float64   `json:"fadeOut"`
	Curve   FadeCurve `json:"curve"`
}

// VolumeSettings carries the relative input levels for the mix.
type VolumeSettings struct {
	Voice float64 `json:"voice"`
	Music float64 `json:"music"`
}

// MusicPlan is the music half of the ad-production blueprint.
type MusicPlan struct {
	TargetBPM       float64          `json:"targetBPM"`
	Genre           string           `json:"genre"`
	Mood            string           `json:"mood"`
	Key             string           `json:"key,omitempty"`
	Arc             []ArcSegment     `json:"arc"`
	ButtonEnding    bool             `json:"buttonEnding"`
	Structure       MusicalStructure `json:"musicalStructure"`
	Instrumentation []string         `json:"instrumentation,omitempty"`
	ComposerNotes   string           `json:"composerNotes,omitempty"`
}

// AdContext is the brief-derived metadata attached to the blueprint.
type AdContext struct {
	DurationSeconds float64 `json:"durationSeconds"`
	AdCategory      string  `json:"adCategory"`
	Tone            string  `json:"tone,omitempty"`
}

// AdBlueprint is the structured ad-production plan emitted by the LLM (or the
// deterministic fallback): the voice-over script plus everything the musical
// blueprint builder needs.
type AdBlueprint struct {
	Script       string         `json:"script"`
	Context      AdContext      `json:"context"`
	Music        MusicPlan      `json:"music"`
	SentenceCues []SentenceCue  `json:"sentenceCues,omitempty"`
	Fades        FadeSettings   `json:"fades"`
	Volume       VolumeSettings `json:"volume"`
}

// Validate rejects enum values the pipeline does not understand. It is called
// at the provider boundary so malformed LLM output never reaches the builder.
func (b *AdBlueprint) Validate() error {
	for i := range b.SentenceCues {
		if f := b.SentenceCues[i].Function; f != "" && !f.IsValid() {
			return &InvalidEnumError{Field: "sentenceCues.function", Value: string(f)}
		}
	}
	if e := b.Music.Structure.EndingType; e != "" && !e.IsValid() {
		return &InvalidEnumError{Field: "musicalStructure.endingType", Value: string(e)}
	}
	if c := b.Fades.Curve; c != "" && !c.IsValid() {
		return &InvalidEnumError{Field: "fades.curve", Value: string(c)}
	}
	if pl := b.Music.Structure.PhraseLength; pl != 0 && (pl < 2 || pl > 4) {
		return &InvalidEnumError{Field: "musicalStructure.phraseLength", Value: strconv.Itoa(pl)}
	}
	return nil
}

// InvalidEnumError reports a value outside the accepted vocabulary.
type InvalidEnumError struct {
	Field string
	Value string
}

func (e *InvalidEnumError) Error() string {
	return "invalid value " + strconv.Quote(e.Value) + " for " + e.Field
}
