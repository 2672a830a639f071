// Package blueprint builds the bar-aligned composition plan for one ad.
//
// Given the script's sentence timings, the LLM's cues, and a target BPM, Build
// produces a [Blueprint]: the refined BPM and bar grid, pre/post-roll sizing,
// phrase-snapped sections covering the whole bed, downbeat-snapped sync points
// for the script's landmarks, the composition prompt handed to the
// text-to-music provider, and the mixing plan the orchestrator starts from.
//
// Build is deterministic: identical inputs always yield an identical plan,
// including the composition prompt text.
package blueprint

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Unmesh28/voice-ad-sub002/internal/timing"
	"github.com/Unmesh28/voice-ad-sub002/internal/transcript"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// maxPromptLen bounds the composition prompt accepted by TTM providers.
const maxPromptLen = 1000

// sentenceGapBreak is the silence between consecutive sentences that forces a
// new section even when labels match.
const sentenceGapBreak = 0.4

// Input carries everything Build needs. Sentences are voice-relative.
type Input struct {
	Script        string
	Sentences     []transcript.Span
	Cues          []types.SentenceCue
	TargetBPM     float64
	Genre         string
	Mood          string
	Key           string
	VoiceDuration float64
	AdDuration    float64

	ComposerDirection string
	Instrumentation   []string
	Arc               []types.ArcSegment
	ButtonEnding      bool
	Structure         types.MusicalStructure
	TimeSignature     timing.TimeSignature
}

// Section is a phrase-aligned stretch of the bed with one musical intent.
type Section struct {
	Name                 string
	StartBar             int
	EndBar               int
	StartTime            float64
	EndTime              float64
	EnergyLevel          int
	Direction            types.Direction
	InstrumentationNotes string

	// VoiceSentences indexes Input.Sentences covered by this section.
	// Empty for the intro and outro.
	VoiceSentences []int
}

// SyncPoint snaps a script landmark to the bar grid.
type SyncPoint struct {
	Type            string
	VoiceTimestamp  float64
	NearestDownbeat float64
	Bar             int
	Beat            int
	Offset          float64
	MusicAction     string
}

// DuckingPoint is one sentence span in music time, pre-alignment.
type DuckingPoint struct {
	Start      float64
	End        float64
	Multiplier float64
}

// MixingPlan seeds the orchestrator's mix before beat-aware alignment runs.
type MixingPlan struct {
	VoiceDelaySeconds float64
	MusicTrimDuration float64
	DuckingPoints     []DuckingPoint
}

// Blueprint is the complete bar-aligned composition plan.
type Blueprint struct {
	FinalBPM      float64
	TimeSignature timing.TimeSignature
	BarDuration   float64
	TotalBars     int
	TotalDuration float64

	PreRollBars      int
	PreRollDuration  float64
	PostRollBars     int
	PostRollDuration float64

	// VoiceEntryPoint is where the voice enters, in bed time (seconds).
	VoiceEntryPoint float64

	Sections          []Section
	SyncPoints        []SyncPoint
	CompositionPrompt string
	MixingPlan        MixingPlan
}

// Build computes the blueprint. It never performs I/O.
func Build(in Input) (*Blueprint, error) {
	if in.TargetBPM <= 0 {
		return nil, fmt.Errorf("blueprint: target BPM must be positive, got %v", in.TargetBPM)
	}
	if in.VoiceDuration <= 0 && len(in.Sentences) > 0 {
		in.VoiceDuration = in.Sentences[len(in.Sentences)-1].End
	}
	if in.VoiceDuration <= 0 {
		return nil, fmt.Errorf("blueprint: voice duration must be positive")
	}
	ts := in.TimeSignature

	// Preliminary roll at the target BPM fixes the bar counts.
	roll := timing.CalculatePrePostRoll(in.VoiceDuration, in.TargetBPM, timing.RollOptions{
		Genre:         in.Genre,
		AdDuration:    in.AdDuration,
		TimeSignature: ts,
	})

	// Refine the BPM so whole bars land closest to the desired total, then
	// recompute every grid quantity at the final BPM.
	finalBPM := timing.OptimizeBPMForDuration(in.TargetBPM, roll.TotalMusicDuration, 5, ts)
	barDur := timing.BarDuration(finalBPM, ts)

	pre, post := roll.PreRollBars, roll.PostRollBars
	if in.Structure.IntroBars > 0 {
		pre = in.Structure.IntroBars
	}
	if in.Structure.OutroBars > 0 {
		post = in.Structure.OutroBars
	}

	voiceBars := int(math.Ceil(in.VoiceDuration / barDur))
	if voiceBars < 1 {
		voiceBars = 1
	}
	totalBars := pre + voiceBars + post
	preDur := float64(pre) * barDur

	bp := &Blueprint{
		FinalBPM:         finalBPM,
		TimeSignature:    ts,
		BarDuration:      barDur,
		TotalBars:        totalBars,
		TotalDuration:    float64(totalBars) * barDur,
		PreRollBars:      pre,
		PreRollDuration:  preDur,
		PostRollBars:     post,
		PostRollDuration: float64(post) * barDur,
		VoiceEntryPoint:  preDur,
	}

	phraseLen := in.Structure.PhraseLength
	if phraseLen < 2 || phraseLen > 4 {
		phraseLen = 2
	}

	bp.Sections = buildSections(in, bp, phraseLen)
	bp.SyncPoints = buildSyncPoints(in, bp)
	bp.CompositionPrompt = buildPrompt(in, bp)
	bp.MixingPlan = buildMixingPlan(in, bp)
	return bp, nil
}

// buildSections classifies and groups sentences, snaps the groups to phrase
// boundaries, and brackets them with the intro and outro.
func buildSections(in Input, bp *Blueprint, phraseLen int) []Section {
	type group struct {
		class     classification
		start     float64 // voice time
		end       float64
		sentences []int

		// pauseBefore marks a detected silence between this group and the
		// previous one. Only such groups may leave a bar gap behind them.
		pauseBefore bool
	}

	n := len(in.Sentences)
	var groups []group
	for i, s := range in.Sentences {
		var cue *types.SentenceCue
		if i < len(in.Cues) {
			cue = &in.Cues[i]
		}
		class := classifySentence(s.Text, cue, i, n)

		pause := false
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if last.class.Label == class.Label && s.Start-last.end < sentenceGapBreak {
				last.end = s.End
				last.sentences = append(last.sentences, i)
				continue
			}
			pause = s.Start-last.end >= sentenceGapBreak
		}
		groups = append(groups, group{class: class, start: s.Start, end: s.End, sentences: []int{i}, pauseBefore: pause})
	}

	bodyLo := bp.PreRollBars + 1             // first bar after the intro
	bodyHi := bp.TotalBars - bp.PostRollBars // last body bar

	sections := make([]Section, 0, len(groups)+2)
	sections = append(sections, Section{
		Name:                 "intro",
		StartBar:             1,
		EndBar:               bp.PreRollBars,
		EnergyLevel:          3,
		Direction:            types.DirectionBuilding,
		InstrumentationNotes: "low energy, setting the scene before the voice enters",
	})

	prevEnd := bp.PreRollBars
	for gi, g := range groups {
		startBar := int(math.Floor((bp.PreRollDuration+g.start)/bp.BarDuration)) + 1
		endBar := int(math.Ceil((bp.PreRollDuration + g.end) / bp.BarDuration))

		// Snap to phrase boundaries, then clamp into the body range and keep
		// sections strictly ordered.
		startBar = timing.SnapToPhrase(startBar-1, phraseLen) + 1
		endBar = timing.SnapToPhrase(endBar, phraseLen)
		if startBar < bodyLo {
			startBar = bodyLo
		}
		if startBar <= prevEnd {
			startBar = prevEnd + 1
		}
		if startBar > bodyHi {
			if prevEnd >= bodyHi {
				// No body bars left; fold into the previous section.
				lastIdx := len(sections) - 1
				sections[lastIdx].VoiceSentences = append(sections[lastIdx].VoiceSentences, g.sentences...)
				continue
			}
			// Phrase snapping overshot the body; pull back to the free bars.
			startBar = prevEnd + 1
			if startBar < bodyLo {
				startBar = bodyLo
			}
		}
		if gi == len(groups)-1 || endBar > bodyHi {
			endBar = bodyHi
		}
		if endBar < startBar {
			endBar = startBar
		}
		if startBar > prevEnd+1 && !g.pauseBefore {
			// Snapping opened bars no detected pause accounts for; stretch
			// the previous section to keep the bed contiguous.
			sections[len(sections)-1].EndBar = startBar - 1
		}

		sections = append(sections, Section{
			Name:                 g.class.Label,
			StartBar:             startBar,
			EndBar:               endBar,
			EnergyLevel:          g.class.Energy,
			Direction:            g.class.Direction,
			InstrumentationNotes: notesFor(g.class.Label, in),
			VoiceSentences:       g.sentences,
		})
		prevEnd = endBar
	}

	sections = append(sections, Section{
		Name:                 "outro",
		StartBar:             bp.TotalBars - bp.PostRollBars + 1,
		EndBar:               bp.TotalBars,
		EnergyLevel:          3,
		Direction:            types.DirectionResolving,
		InstrumentationNotes: "clean button ending",
	})

	for i := range sections {
		sections[i].StartTime = float64(sections[i].StartBar-1) * bp.BarDuration
		sections[i].EndTime = float64(sections[i].EndBar) * bp.BarDuration
	}
	return sections
}

// notesFor derives instrumentation notes for a body section from the LLM arc
// when one matches the label, otherwise from the palette.
func notesFor(label string, in Input) string {
	for _, seg := range in.Arc {
		if strings.EqualFold(seg.Label, label) && seg.MusicPrompt != "" {
			return seg.MusicPrompt
		}
	}
	if len(in.Instrumentation) > 0 {
		return "feature " + strings.Join(in.Instrumentation, ", ")
	}
	return ""
}

// buildSyncPoints snaps each landmark sentence's start to the nearest
// downbeat of the synthetic grid.
func buildSyncPoints(in Input, bp *Blueprint) []SyncPoint {
	texts := make([]string, len(in.Sentences))
	for i, s := range in.Sentences {
		texts[i] = s.Text
	}
	marks := detectLandmarks(texts)

	points := make([]SyncPoint, 0, len(marks))
	for idx, kind := range marks {
		voiceT := in.Sentences[idx].Start
		db := timing.NearestDownbeat(bp.PreRollDuration+voiceT, bp.FinalBPM, bp.TimeSignature)
		points = append(points, SyncPoint{
			Type:            string(kind),
			VoiceTimestamp:  voiceT,
			NearestDownbeat: db.Time,
			Bar:             db.Bar + 1,
			Beat:            1,
			Offset:          db.Offset,
			MusicAction:     musicAction(kind),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].VoiceTimestamp < points[j].VoiceTimestamp
	})
	return points
}

// buildPrompt renders the composition prompt for the TTM provider. The body
// (per-section lines) is trimmed first if the prompt would exceed the
// provider limit; the ending directive and the continuity line always survive.
func buildPrompt(in Input, bp *Blueprint) string {
	var head strings.Builder
	fmt.Fprintf(&head, "%.0f BPM, %s", bp.FinalBPM, bp.TimeSignature)
	if in.Mood != "" {
		fmt.Fprintf(&head, ", %s mood", in.Mood)
	}
	if in.Key != "" {
		fmt.Fprintf(&head, ", key of %s", in.Key)
	}
	fmt.Fprintf(&head, ". %d bars, %.1f seconds total. ", bp.TotalBars, bp.TotalDuration)
	if in.Genre != "" {
		fmt.Fprintf(&head, "%s. ", in.Genre)
	}
	head.WriteString("Instrumental only, no vocals. ")
	if len(in.Instrumentation) > 0 {
		fmt.Fprintf(&head, "Instrumentation: %s. ", strings.Join(in.Instrumentation, ", "))
	}
	head.WriteString("Leave 1-4 kHz clear for voice.\n")

	var sectionLines []string
	for _, s := range bp.Sections {
		line := fmt.Sprintf("Bars %d-%d: %s. %s energy, %s.",
			s.StartBar, s.EndBar, s.Name, energyWord(s.EnergyLevel), s.Direction)
		if s.InstrumentationNotes != "" {
			line += " " + s.InstrumentationNotes
		}
		sectionLines = append(sectionLines, line)
	}

	var tail strings.Builder
	if in.ComposerDirection != "" {
		tail.WriteString(in.ComposerDirection + "\n")
	}
	tail.WriteString(endingDirective(in.Structure.EndingType, in.ButtonEnding))
	tail.WriteString("\nContinuous flowing music. Smooth transitions between sections.")

	// Assemble, trimming section lines from the end until the prompt fits.
	for keep := len(sectionLines); keep >= 0; keep-- {
		prompt := head.String() + strings.Join(sectionLines[:keep], "\n")
		if keep > 0 {
			prompt += "\n"
		}
		prompt += tail.String()
		if len(prompt) <= maxPromptLen {
			return prompt
		}
	}

	// Head + tail alone are over budget; hard-trim the head.
	prompt := head.String() + tail.String()
	if len(prompt) > maxPromptLen {
		prompt = prompt[:maxPromptLen]
	}
	return prompt
}

// energyWord maps a 1–10 level onto prompt vocabulary.
func energyWord(level int) string {
	switch {
	case level <= 3:
		return "low"
	case level <= 5:
		return "moderate"
	case level <= 7:
		return "high"
	default:
		return "maximum"
	}
}

// endingDirective renders the explicit ending instruction.
func endingDirective(ending types.EndingType, buttonPreferred bool) string {
	if ending == "" {
		if buttonPreferred {
			ending = types.EndingButton
		} else {
			ending = types.EndingDecay
		}
	}
	switch ending {
	case types.EndingButton:
		return "End with a definitive button: a final accented hit on the last downbeat, then silence."
	case types.EndingSustain:
		return "End on a sustained chord held through the final bar."
	case types.EndingStinger:
		return "End with a short stinger accent after the final bar."
	default:
		return "End with a natural decay over the final bar."
	}
}

// buildMixingPlan seeds the orchestrator's pre-alignment mix: voice delayed by
// the pre-roll, bed trimmed to the grid, one ducking point per sentence.
func buildMixingPlan(in Input, bp *Blueprint) MixingPlan {
	points := make([]DuckingPoint, 0, len(in.Sentences))
	for i, s := range in.Sentences {
		mult := 1.0
		if i < len(in.Cues) && in.Cues[i].VolumeMultiplier > 0 {
			mult = in.Cues[i].VolumeMultiplier
		}
		points = append(points, DuckingPoint{
			Start:      bp.PreRollDuration + s.Start,
			End:        bp.PreRollDuration + s.End,
			Multiplier: mult,
		})
	}
	return MixingPlan{
		VoiceDelaySeconds: bp.PreRollDuration,
		MusicTrimDuration: bp.TotalDuration,
		DuckingPoints:     points,
	}
}
