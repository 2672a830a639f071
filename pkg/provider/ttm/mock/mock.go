// Package mock provides an in-memory mock implementation of [ttm.Provider]
// for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
)

// Provider is a mock implementation of [ttm.Provider].
// Set Audio and Err before use; inspect Requests after.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Compose when Err is nil. Defaults to a small
	// non-empty payload.
	Audio []byte

	// Err, when set, is returned by every call.
	Err error

	// Requests records all Compose invocations in order.
	Requests []ttm.Request
}

var _ ttm.Provider = (*Provider)(nil)

// Compose implements [ttm.Provider].
func (p *Provider) Compose(_ context.Context, req ttm.Request) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Audio == nil {
		return []byte("mock bed"), nil
	}
	return p.Audio, nil
}

// CallCount returns how many times Compose was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
