package blueprint

import (
	"strings"

	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// classification is the musical role assigned to one sentence.
type classification struct {
	Label     string
	Energy    int
	Direction types.Direction
}

// roleTable maps a label to its energy level and direction. Labels come from
// explicit cues, text heuristics, or the positional fallback.
var roleTable = map[string]classification{
	"hook":       {Label: "hook", Energy: 6, Direction: types.DirectionBuilding},
	"build":      {Label: "build", Energy: 7, Direction: types.DirectionBuilding},
	"peak":       {Label: "peak", Energy: 9, Direction: types.DirectionPeak},
	"resolve":    {Label: "resolve", Energy: 4, Direction: types.DirectionResolving},
	"transition": {Label: "transition", Energy: 5, Direction: types.DirectionSustaining},
	"pause":      {Label: "pause", Energy: 2, Direction: types.DirectionSustaining},
	"warm":       {Label: "warm", Energy: 5, Direction: types.DirectionSustaining},
	"cta":        {Label: "cta", Energy: 8, Direction: types.DirectionPeak},
	"opening":    {Label: "opening", Energy: 6, Direction: types.DirectionBuilding},
	"body":       {Label: "body", Energy: 6, Direction: types.DirectionSustaining},
	"resolution": {Label: "resolution", Energy: 4, Direction: types.DirectionResolving},
}

// textHeuristics are keyword probes applied to the sentence text when no
// explicit cue function is present. First match wins.
var textHeuristics = []struct {
	label string
	words []string
}{
	{"hook", []string{"introducing", "welcome", "meet", "imagine", "discover"}},
	{"peak", []string{"best", "most", "revolutionary", "incredible", "unmatched"}},
	{"cta", []string{"try", "get", "start", "order", "call", "visit", "download", "subscribe", "join", "shop", "sign up"}},
	{"build", []string{"because", "with", "featuring", "powered", "crafted"}},
	{"warm", []string{"love", "enjoy", "relax", "comfort", "home"}},
	{"resolve", []string{"finally", "simple", "easy", "done"}},
}

// classifySentence resolves the musical role of sentence i of n.
// Priority: explicit cue > text heuristics > positional fallback.
func classifySentence(text string, cue *types.SentenceCue, i, n int) classification {
	if cue != nil && cue.Function != "" && cue.Function.IsValid() {
		return roleTable[string(cue.Function)]
	}

	lower := strings.ToLower(text)
	for _, h := range textHeuristics {
		for _, w := range h.words {
			if strings.Contains(lower, w) {
				return roleTable[h.label]
			}
		}
	}

	// Positional fallback by fraction of the script.
	frac := 0.0
	if n > 1 {
		frac = float64(i) / float64(n-1)
	}
	switch {
	case frac < 0.2:
		return roleTable["opening"]
	case frac < 0.6:
		return roleTable["body"]
	case frac < 0.8:
		return roleTable["peak"]
	case frac < 1.0:
		return roleTable["resolution"]
	default:
		return roleTable["cta"]
	}
}

// landmarkKind identifies why a sentence anchors a sync point.
type landmarkKind string

const (
	landmarkBrand landmarkKind = "brand_mention"
	landmarkCTA   landmarkKind = "cta"
	landmarkFinal landmarkKind = "final_words"
)

var brandWords = []string{"introducing", "welcome", "meet", "discover"}

var ctaWords = []string{
	"try", "get", "start", "order", "call", "visit",
	"download", "subscribe", "join", "shop", "sign up", "learn more",
}

// detectLandmarks finds the sentences that deserve downbeat-snapped sync
// points: a brand cue in the first 40% of sentences, a call to action in the
// last 40%, and always the final sentence.
func detectLandmarks(sentences []string) map[int]landmarkKind {
	marks := make(map[int]landmarkKind)
	n := len(sentences)
	if n == 0 {
		return marks
	}

	for i, s := range sentences {
		lower := strings.ToLower(s)
		frac := 0.0
		if n > 1 {
			frac = float64(i) / float64(n-1)
		}
		if frac <= 0.4 {
			for _, w := range brandWords {
				if strings.Contains(lower, w) {
					marks[i] = landmarkBrand
					break
				}
			}
		}
		if _, taken := marks[i]; !taken && frac >= 0.6 {
			for _, w := range ctaWords {
				if strings.Contains(lower, w) {
					marks[i] = landmarkCTA
					break
				}
			}
		}
	}

	if _, taken := marks[n-1]; !taken {
		marks[n-1] = landmarkFinal
	}
	return marks
}

// musicAction describes what the bed should do at a landmark.
func musicAction(kind landmarkKind) string {
	switch kind {
	case landmarkBrand:
		return "accent hit under brand mention"
	case landmarkCTA:
		return "lift energy into call to action"
	default:
		return "prepare button ending"
	}
}
