// Package mock provides an in-memory mock implementation of [llm.Provider]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every request so tests can
// assert on call counts and arguments, and exposes exported fields controlling
// the returned blueprint or error.
package mock

import (
	"context"
	"sync"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// Provider is a mock implementation of [llm.Provider].
// Set Blueprint and Err before use; inspect Requests after.
type Provider struct {
	mu sync.Mutex

	// Blueprint is returned by GenerateBlueprint when Err is nil.
	Blueprint *types.AdBlueprint

	// Err, when set, is returned by every call.
	Err error

	// Requests records all GenerateBlueprint invocations in order.
	Requests []llm.BlueprintRequest
}

var _ llm.Provider = (*Provider)(nil)

// GenerateBlueprint implements [llm.Provider].
func (p *Provider) GenerateBlueprint(_ context.Context, req llm.BlueprintRequest) (*types.AdBlueprint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Blueprint, nil
}

// CallCount returns how many times GenerateBlueprint was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
