package openai

import (
	"errors"
	"strings"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
)

const validBlueprintJSON = `{
	"script": "Introducing Solace Coffee. Try it today.",
	"context": {"durationSeconds": 30, "adCategory": "beverage", "tone": "warm"},
	"music": {
		"targetBPM": 100,
		"genre": "acoustic folk",
		"mood": "warm",
		"arc": [{"label": "hook", "startSeconds": 0, "endSeconds": 10, "energy": 6, "musicPrompt": "gentle guitar"}],
		"buttonEnding": true,
		"musicalStructure": {"endingType": "button", "phraseLength": 2}
	},
	"sentenceCues": [
		{"volumeMultiplier": 1.0, "function": "hook"},
		{"volumeMultiplier": 1.2, "function": "peak"}
	],
	"fades": {"fadeIn": 0.05, "fadeOut": 1.5, "curve": "qsin"},
	"volume": {"voice": 1.0, "music": 0.25}
}`

func TestParseBlueprint(t *testing.T) {
	bp, err := parseBlueprint([]byte(validBlueprintJSON))
	if err != nil {
		t.Fatalf("parseBlueprint: %v", err)
	}
	if bp.Music.TargetBPM != 100 {
		t.Errorf("TargetBPM = %v, want 100", bp.Music.TargetBPM)
	}
	if len(bp.SentenceCues) != 2 {
		t.Errorf("got %d cues, want 2", len(bp.SentenceCues))
	}
	if !bp.Music.ButtonEnding {
		t.Error("ButtonEnding lost in parsing")
	}
}

func TestParseBlueprintRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `the script is: hello`},
		{"no script", `{"music": {"targetBPM": 100}}`},
		{"no bpm", `{"script": "x", "music": {}}`},
		{"bad enum", `{"script": "x", "music": {"targetBPM": 100, "musicalStructure": {"endingType": "fadeaway"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBlueprint([]byte(tt.json))
			if !errors.Is(err, llm.ErrInvalidResponse) {
				t.Errorf("err = %v, want ErrInvalidResponse", err)
			}
		})
	}
}

func TestUserPrompt(t *testing.T) {
	got := userPrompt(llm.BlueprintRequest{
		Prompt:          "a calm coffee brand ad",
		DurationSeconds: 30,
		Tone:            "warm",
	})
	for _, want := range []string{"30 second", "Tone: warm", "a calm coffee brand ad"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("empty API key must be rejected")
	}
}
