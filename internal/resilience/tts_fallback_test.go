package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
	ttsmock "github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts/mock"
)

func TestTTSFallbackPrefersPrimary(t *testing.T) {
	primary := &ttsmock.Provider{Result: &tts.Result{Audio: []byte("primary audio")}}
	standin := &ttsmock.Provider{Result: &tts.Result{Audio: []byte("standin audio")}}

	fb := NewTTSFallback("primary", primary, CircuitBreakerConfig{MaxFailures: 3}, nil)
	fb.Add("standin", standin)

	res, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "primary audio" {
		t.Errorf("audio = %q, want primary audio", res.Audio)
	}
	if primary.CallCount() != 1 || standin.CallCount() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.CallCount(), standin.CallCount())
	}
}

func TestTTSFallbackAdvancesOnFailure(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("primary down")}
	standin := &ttsmock.Provider{Result: &tts.Result{Audio: []byte("standin audio")}}

	fb := NewTTSFallback("primary", primary, CircuitBreakerConfig{MaxFailures: 3}, nil)
	fb.Add("standin", standin)

	res, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "standin audio" {
		t.Errorf("audio = %q, want standin audio", res.Audio)
	}
}

func TestTTSFallbackExhausted(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("primary down")}
	standin := &ttsmock.Provider{Err: errors.New("standin down")}

	fb := NewTTSFallback("primary", primary, CircuitBreakerConfig{MaxFailures: 3}, nil)
	fb.Add("standin", standin)

	_, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}
