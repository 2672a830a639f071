package elevenlabs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCompose(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/music" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req composeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.MusicLengthMs != 16800 {
			t.Errorf("music_length_ms = %d, want 16800", req.MusicLengthMs)
		}
		if req.Prompt == "" {
			t.Error("prompt missing")
		}
		w.Write([]byte("bed audio"))
	})

	audio, err := p.Compose(t.Context(), ttm.Request{
		Prompt:          "100 BPM, 4/4. Instrumental only.",
		DurationSeconds: 16.8,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if string(audio) != "bed audio" {
		t.Errorf("audio = %q", audio)
	}
}

func TestComposeStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ttm.ErrAuth},
		{http.StatusTooManyRequests, ttm.ErrQuota},
		{http.StatusServiceUnavailable, ttm.ErrUnavailable},
		{http.StatusBadRequest, ttm.ErrInvalidResponse},
	}
	for _, tt := range tests {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := p.Compose(t.Context(), ttm.Request{Prompt: "x", DurationSeconds: 20})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestLengthMsClamps(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{16.8, 16800},
		{2, minLengthMs},
		{600, maxLengthMs},
	}
	for _, tt := range tests {
		if got := lengthMs(tt.seconds); got != tt.want {
			t.Errorf("lengthMs(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}
