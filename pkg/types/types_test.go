package types

import (
	"errors"
	"testing"
)

func TestEnumValidity(t *testing.T) {
	if !FunctionHook.IsValid() || !FunctionPause.IsValid() {
		t.Error("known musical functions reported invalid")
	}
	if MusicalFunction("crescendo").IsValid() {
		t.Error("unknown musical function reported valid")
	}
	if !EndingButton.IsValid() || EndingType("fade").IsValid() {
		t.Error("ending type validity wrong")
	}
	if !FadeQsin.IsValid() || FadeCurve("cosine").IsValid() {
		t.Error("fade curve validity wrong")
	}
	if !DirectionPeak.IsValid() || Direction("falling").IsValid() {
		t.Error("direction validity wrong")
	}
}

func TestAdBlueprintValidate(t *testing.T) {
	ok := &AdBlueprint{
		Script: "Try it today.",
		SentenceCues: []SentenceCue{
			{VolumeMultiplier: 1, Function: FunctionHook},
		},
		Music: MusicPlan{
			Structure: MusicalStructure{EndingType: EndingButton, PhraseLength: 2},
		},
		Fades: FadeSettings{Curve: FadeQsin},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid blueprint rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AdBlueprint)
	}{
		{"bad cue function", func(b *AdBlueprint) { b.SentenceCues[0].Function = "swell" }},
		{"bad ending", func(b *AdBlueprint) { b.Music.Structure.EndingType = "fade" }},
		{"bad curve", func(b *AdBlueprint) { b.Fades.Curve = "cosine" }},
		{"bad phrase length", func(b *AdBlueprint) { b.Music.Structure.PhraseLength = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *ok
			bad.SentenceCues = []SentenceCue{ok.SentenceCues[0]}
			tt.mutate(&bad)
			err := bad.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ie *InvalidEnumError
			if !errors.As(err, &ie) {
				t.Errorf("err = %T, want *InvalidEnumError", err)
			}
		})
	}
}

func TestAdBlueprintValidateAllowsEmptyEnums(t *testing.T) {
	b := &AdBlueprint{Script: "x"}
	if err := b.Validate(); err != nil {
		t.Errorf("zero enums must be accepted (defaults apply later): %v", err)
	}
}
