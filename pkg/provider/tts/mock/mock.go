// Package mock provides an in-memory mock implementation of [tts.Provider]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every request so tests can
// assert on call counts and arguments. The default result is a small audio
// payload with a uniform character alignment derived from the request text,
// so downstream timing extraction has something real to chew on.
package mock

import (
	"context"
	"sync"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
)

// Provider is a mock implementation of [tts.Provider].
type Provider struct {
	mu sync.Mutex

	// Result, when non-nil, is returned as-is.
	Result *tts.Result

	// Err, when set, is returned by every call.
	Err error

	// CharDuration is the per-character duration of the synthetic alignment
	// generated when Result is nil. Defaults to 60 ms.
	CharDuration float64

	// Requests records all Synthesize invocations in order.
	Requests []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements [tts.Provider]. When Result is nil it fabricates
// audio plus a uniform alignment covering req.Text.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		return p.Result, nil
	}

	step := p.CharDuration
	if step <= 0 {
		step = 0.06
	}
	res := &tts.Result{Audio: []byte("mock audio")}
	if req.WithTimestamps {
		runes := []rune(req.Text)
		res.Alignment = make([]tts.CharTiming, len(runes))
		for i, r := range runes {
			res.Alignment[i] = tts.CharTiming{
				Char:  string(r),
				Start: float64(i) * step,
				End:   float64(i+1) * step,
			}
		}
	}
	return res, nil
}

// CallCount returns how many times Synthesize was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
