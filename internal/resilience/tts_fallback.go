package resilience

import (
	"context"
	"log/slog"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] across a chain of TTS backends. A
// stand-in may not honour the requested voice ID; operators should register
// stand-ins carrying an equivalent voice.
type TTSFallback struct {
	chain *FallbackChain[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback wraps primary. Stand-ins are registered with Add.
func NewTTSFallback(primaryName string, primary tts.Provider, cb CircuitBreakerConfig, log *slog.Logger) *TTSFallback {
	return &TTSFallback{chain: NewFallbackChain("tts", primaryName, primary, cb, log)}
}

// Add registers a stand-in TTS backend.
func (f *TTSFallback) Add(name string, p tts.Provider) { f.chain.Add(name, p) }

// Synthesize renders the voice-over with the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	return Try(f.chain, func(p tts.Provider) (*tts.Result, error) {
		return p.Synthesize(ctx, req)
	})
}
