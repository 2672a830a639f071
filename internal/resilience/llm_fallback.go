package resilience

import (
	"context"
	"log/slog"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// LLMFallback implements [llm.Provider] across a chain of LLM backends so the
// script stage survives an outage of the configured primary.
type LLMFallback struct {
	chain *FallbackChain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback wraps primary. Stand-ins are registered with Add.
func NewLLMFallback(primaryName string, primary llm.Provider, cb CircuitBreakerConfig, log *slog.Logger) *LLMFallback {
	return &LLMFallback{chain: NewFallbackChain("llm", primaryName, primary, cb, log)}
}

// Add registers a stand-in LLM backend.
func (f *LLMFallback) Add(name string, p llm.Provider) { f.chain.Add(name, p) }

// GenerateBlueprint asks the first healthy backend for a blueprint.
func (f *LLMFallback) GenerateBlueprint(ctx context.Context, req llm.BlueprintRequest) (*types.AdBlueprint, error) {
	return Try(f.chain, func(p llm.Provider) (*types.AdBlueprint, error) {
		return p.GenerateBlueprint(ctx, req)
	})
}
