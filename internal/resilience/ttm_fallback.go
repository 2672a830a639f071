package resilience

import (
	"context"
	"log/slog"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
)

// TTMFallback implements [ttm.Provider] across a chain of text-to-music
// backends.
type TTMFallback struct {
	chain *FallbackChain[ttm.Provider]
}

var _ ttm.Provider = (*TTMFallback)(nil)

// NewTTMFallback wraps primary. Stand-ins are registered with Add.
func NewTTMFallback(primaryName string, primary ttm.Provider, cb CircuitBreakerConfig, log *slog.Logger) *TTMFallback {
	return &TTMFallback{chain: NewFallbackChain("ttm", primaryName, primary, cb, log)}
}

// Add registers a stand-in TTM backend.
func (f *TTMFallback) Add(name string, p ttm.Provider) { f.chain.Add(name, p) }

// Compose renders the music bed with the first healthy backend.
func (f *TTMFallback) Compose(ctx context.Context, req ttm.Request) ([]byte, error) {
	return Try(f.chain, func(p ttm.Provider) ([]byte, error) {
		return p.Compose(ctx, req)
	})
}
