package pipeline

import (
	"strings"

	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// fallbackBlueprint builds a deterministic blueprint from the brief alone.
// It is used when the LLM cannot deliver a usable one (quota, auth-free
// schema failures) so the production can still finish with sensible
// defaults: a hook/build/peak/cta arc, 2 bars pre-roll, 1 bar post-roll,
// modern corporate at 100 BPM.
func fallbackBlueprint(prompt, tone string, durationSeconds float64) types.AdBlueprint {
	script := fallbackScript(prompt)
	return types.AdBlueprint{
		Script: script,
		Context: types.AdContext{
			DurationSeconds: durationSeconds,
			AdCategory:      "general",
			Tone:            tone,
		},
		Music: types.MusicPlan{
			TargetBPM:    100,
			Genre:        "modern corporate",
			Mood:         fallbackMood(tone),
			Arc:          fallbackArc(durationSeconds),
			ButtonEnding: true,
			Structure: types.MusicalStructure{
				IntroType:  "instrumental build",
				IntroBars:  2,
				BodyFeel:   "steady and confident",
				EndingType: types.EndingButton,
				OutroBars:  1,
			},
		},
		Fades: types.FadeSettings{
			FadeIn:  defaultFadeIn,
			FadeOut: defaultFadeOut,
			Curve:   types.FadeQsin,
		},
		Volume: types.VolumeSettings{
			Voice: defaultVoiceVolume,
			Music: defaultMusicVolume,
		},
	}
}

// fallbackScript turns the brief into speakable copy. Without an LLM the
// best available text is the brief itself, normalised to end like a
// sentence.
func fallbackScript(prompt string) string {
	s := strings.TrimSpace(prompt)
	if s == "" {
		return "Discover something new today."
	}
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

func fallbackMood(tone string) string {
	switch strings.ToLower(strings.TrimSpace(tone)) {
	case "warm", "friendly":
		return "warm and inviting"
	case "energetic", "upbeat":
		return "bright and driving"
	case "serious", "premium":
		return "confident and polished"
	}
	return "uplifting and professional"
}

// fallbackArc spreads the default hook/build/peak/cta dramatic arc over the
// ad duration.
func fallbackArc(durationSeconds float64) []types.ArcSegment {
	bounds := []struct {
		label  string
		from   float64
		to     float64
		energy int
	}{
		{"hook", 0.00, 0.20, 6},
		{"build", 0.20, 0.55, 7},
		{"peak", 0.55, 0.80, 9},
		{"cta", 0.80, 1.00, 8},
	}

	out := make([]types.ArcSegment, 0, len(bounds))
	for _, b := range bounds {
		out = append(out, types.ArcSegment{
			Label:        b.label,
			StartSeconds: b.from * durationSeconds,
			EndSeconds:   b.to * durationSeconds,
			Energy:       b.energy,
			MusicPrompt:  "steady " + b.label + " energy under the voice",
		})
	}
	return out
}
