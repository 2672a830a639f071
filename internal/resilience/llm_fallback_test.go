package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	llmmock "github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm/mock"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

func TestLLMFallbackPrefersPrimary(t *testing.T) {
	primary := &llmmock.Provider{Blueprint: &types.AdBlueprint{Script: "from primary"}}
	standin := &llmmock.Provider{Blueprint: &types.AdBlueprint{Script: "from standin"}}

	fb := NewLLMFallback("primary", primary, CircuitBreakerConfig{MaxFailures: 3}, nil)
	fb.Add("standin", standin)

	bp, err := fb.GenerateBlueprint(context.Background(), llm.BlueprintRequest{})
	if err != nil {
		t.Fatalf("GenerateBlueprint: %v", err)
	}
	if bp.Script != "from primary" {
		t.Errorf("script = %q, want from primary", bp.Script)
	}
	if primary.CallCount() != 1 || standin.CallCount() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.CallCount(), standin.CallCount())
	}
}

func TestLLMFallbackAdvancesOnFailure(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	standin := &llmmock.Provider{Blueprint: &types.AdBlueprint{Script: "from standin"}}

	fb := NewLLMFallback("primary", primary, CircuitBreakerConfig{MaxFailures: 3}, nil)
	fb.Add("standin", standin)

	bp, err := fb.GenerateBlueprint(context.Background(), llm.BlueprintRequest{})
	if err != nil {
		t.Fatalf("GenerateBlueprint: %v", err)
	}
	if bp.Script != "from standin" {
		t.Errorf("script = %q, want from standin", bp.Script)
	}
}

func TestLLMFallbackExhausted(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	standin := &llmmock.Provider{Err: llm.ErrQuota}

	fb := NewLLMFallback("primary", primary, CircuitBreakerConfig{MaxFailures: 3}, nil)
	fb.Add("standin", standin)

	_, err := fb.GenerateBlueprint(context.Background(), llm.BlueprintRequest{})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
	// The orchestrator's quota handling keys off the provider sentinel, so it
	// must survive the chain wrap.
	if !errors.Is(err, llm.ErrQuota) {
		t.Errorf("err = %v, quota sentinel lost in the wrap", err)
	}
}
