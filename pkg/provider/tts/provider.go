// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform request/response interface. The pipeline always asks for
// character-level timestamps; the alignment array is what sentence and word
// timings are derived from downstream.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// Sentinel errors implementations wrap so callers can classify failures
// without depending on a concrete backend.
var (
	// ErrAuth means the credentials were rejected. Not retryable.
	ErrAuth = errors.New("tts: authentication failed")

	// ErrQuota means the account is out of character quota. Not retryable.
	ErrQuota = errors.New("tts: quota exhausted")

	// ErrInvalidResponse means the backend returned an unusable payload.
	ErrInvalidResponse = errors.New("tts: invalid response")

	// ErrUnavailable means a transient backend failure. Retryable.
	ErrUnavailable = errors.New("tts: backend unavailable")
)

// VoiceSettings tunes the synthesis.
type VoiceSettings struct {
	// Stability in [0, 1]; lower values give more expressive reads.
	Stability float64

	// SimilarityBoost in [0, 1].
	SimilarityBoost float64

	// Speed scales the speaking rate; 1.0 is the voice's natural pace.
	Speed float64
}

// Request is one synthesis call.
type Request struct {
	VoiceID  string
	Text     string
	Settings VoiceSettings

	// WithTimestamps requests character-level alignment. Pipeline runs always
	// set this; ad-hoc previews may skip it for a cheaper call.
	WithTimestamps bool
}

// CharTiming is one character of the synthesised text with its time span.
type CharTiming struct {
	Char  string
	Start float64
	End   float64
}

// Result is the synthesised audio plus optional alignment.
type Result struct {
	// Audio is the encoded audio payload (mp3 unless the implementation
	// documents otherwise).
	Audio []byte

	// Alignment has one entry per character of the request text. Empty when
	// WithTimestamps was false.
	Alignment []CharTiming
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders the request text as speech. When req.WithTimestamps
	// is set, the result carries a character alignment covering the full
	// text. Errors wrap one of the package sentinels.
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
