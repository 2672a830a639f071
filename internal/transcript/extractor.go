// Package transcript turns character-level TTS alignment into sentence and
// word spans.
//
// The TTS provider reports one [CharTiming] per character of the synthesised
// text. This package segments the text into sentences, walks the character
// array alongside the segments, and derives a start/end time for every
// sentence and word. The resulting spans are what the blueprint builder and
// the aligner consume.
package transcript

import (
	"strings"
	"unicode"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
)

// CharTiming is one character of synthesised speech with its time span.
type CharTiming struct {
	Char  string
	Start float64
	End   float64
}

// Span is a timed slice of the voice-over, in voice-relative seconds.
type Span struct {
	Text  string
	Start float64
	End   float64
}

// Result carries the extracted sentence and word spans.
type Result struct {
	Sentences []Span
	Words     []Span

	// Duration is the end time of the last character.
	Duration float64
}

// abbreviations that must not terminate a sentence even though they end with
// a period. Compared case-insensitively against the token before the period.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"inc": true, "ltd": true, "co": true, "corp": true, "no": true,
	"approx": true, "dept": true, "est": true,
}

// Extract derives sentence and word timings from text and its character
// alignment. The alignment must cover every character of text; a shorter
// array fails with ALIGNMENT_MISMATCH so the caller can fall back to
// no-timing output.
func Extract(text string, chars []CharTiming) (*Result, error) {
	runes := []rune(text)
	if len(chars) < len(runes) {
		return nil, faults.New(faults.KindAlignmentMismatch,
			"character alignment shorter than text")
	}

	res := &Result{}
	if len(runes) == 0 {
		return res, nil
	}
	res.Duration = chars[len(runes)-1].End

	for _, seg := range splitSentences(runes) {
		if span, ok := timeSpan(runes, chars, seg.start, seg.end); ok {
			res.Sentences = append(res.Sentences, span)
		}
	}
	for _, seg := range splitWords(runes) {
		if span, ok := timeSpan(runes, chars, seg.start, seg.end); ok {
			res.Words = append(res.Words, span)
		}
	}
	return res, nil
}

// segment is a half-open rune index range [start, end).
type segment struct {
	start, end int
}

// splitSentences segments runes at terminal punctuation (.!?), optionally
// followed by closing quotes, while protecting decimal numbers and common
// abbreviations. Text without terminal punctuation falls back to a single
// greedy segment.
func splitSentences(runes []rune) []segment {
	var segs []segment
	start := 0
	n := len(runes)

	for i := 0; i < n; i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && isDecimalPoint(runes, i) {
			continue
		}
		// A period glued to a following letter ("U.S.A.", "solace.coffee") is
		// never a boundary.
		if r == '.' && i+1 < n && unicode.IsLetter(runes[i+1]) {
			continue
		}
		if r == '.' && isAbbreviation(runes, start, i) {
			continue
		}
		// Consume runs of terminal punctuation ("?!", "...") and trailing
		// closing quotes.
		end := i + 1
		for end < n && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
			end++
		}
		for end < n && isClosingQuote(runes[end]) {
			end++
		}
		segs = append(segs, segment{start: start, end: end})
		i = end - 1
		start = end
	}

	if start < n && hasContent(runes[start:n]) {
		segs = append(segs, segment{start: start, end: n})
	}
	return segs
}

// splitWords segments runes on whitespace.
func splitWords(runes []rune) []segment {
	var segs []segment
	start := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				segs = append(segs, segment{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		segs = append(segs, segment{start: start, end: len(runes)})
	}
	return segs
}

// timeSpan maps a rune range onto the character timings. Start is the first
// non-whitespace character's start; end is the last non-whitespace
// character's end. Whitespace-only segments report ok=false.
func timeSpan(runes []rune, chars []CharTiming, start, end int) (Span, bool) {
	first, last := -1, -1
	for i := start; i < end; i++ {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return Span{}, false
	}
	return Span{
		Text:  strings.TrimSpace(string(runes[start:end])),
		Start: chars[first].Start,
		End:   chars[last].End,
	}, true
}

// isDecimalPoint reports whether the period at index i sits between two
// digits ("3.5").
func isDecimalPoint(runes []rune, i int) bool {
	return i > 0 && i+1 < len(runes) &&
		unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

// isAbbreviation reports whether the token ending at the period at index i is
// a known abbreviation or a single-letter initialism ("J. Smith", "U.S.A.").
func isAbbreviation(runes []rune, segStart, i int) bool {
	tokenStart := i
	for tokenStart > segStart {
		r := runes[tokenStart-1]
		if unicode.IsLetter(r) || r == '.' {
			tokenStart--
			continue
		}
		break
	}
	raw := string(runes[tokenStart:i])
	token := strings.ToLower(strings.ReplaceAll(raw, ".", ""))
	if token == "" {
		return false
	}
	if strings.Contains(raw, ".") {
		// Dotted initialism ("U.S.A."): the final period closes the sentence
		// only when what follows reads like a new one.
		return !startsNewSentence(runes, i+1)
	}
	if len([]rune(token)) == 1 {
		// Initial before a name ("J. Smith"). Only end-of-text terminates.
		return i+1 < len(runes)
	}
	return abbreviations[token]
}

// startsNewSentence reports whether the text from index i reads like the
// beginning of a new sentence: optional space/quotes then an uppercase letter
// or digit, or end of text.
func startsNewSentence(runes []rune, i int) bool {
	for ; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) || isClosingQuote(runes[i]) {
			continue
		}
		return unicode.IsUpper(runes[i]) || unicode.IsDigit(runes[i])
	}
	return true
}

func isClosingQuote(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']':
		return true
	}
	return false
}

func hasContent(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
