package elevenlabs

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
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

func TestSynthesizeWithTimestamps(t *testing.T) {
	audio := []byte("mp3 bytes")
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/with-timestamps") {
			t.Errorf("path = %s, want with-timestamps endpoint", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Text != "Hi." {
			t.Errorf("text = %q", req.Text)
		}

		resp := timestampsResponse{AudioBase64: base64.StdEncoding.EncodeToString(audio)}
		resp.Alignment.Characters = []string{"H", "i", "."}
		resp.Alignment.CharacterStartTimes = []float64{0, 0.1, 0.2}
		resp.Alignment.CharacterEndTimes = []float64{0.1, 0.2, 0.3}
		json.NewEncoder(w).Encode(resp)
	})

	res, err := p.Synthesize(t.Context(), tts.Request{
		VoiceID:        "voice-1",
		Text:           "Hi.",
		WithTimestamps: true,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != string(audio) {
		t.Error("audio bytes corrupted")
	}
	if len(res.Alignment) != 3 {
		t.Fatalf("got %d alignment entries, want 3", len(res.Alignment))
	}
	if res.Alignment[2].Char != "." || res.Alignment[2].Start != 0.2 || res.Alignment[2].End != 0.3 {
		t.Errorf("alignment[2] = %+v", res.Alignment[2])
	}
}

func TestSynthesizePlain(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "with-timestamps") {
			t.Error("plain request hit the timestamps endpoint")
		}
		w.Write([]byte("raw audio"))
	})

	res, err := p.Synthesize(t.Context(), tts.Request{VoiceID: "v", Text: "x"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "raw audio" {
		t.Errorf("audio = %q", res.Audio)
	}
	if len(res.Alignment) != 0 {
		t.Error("plain synthesis must not carry alignment")
	}
}

func TestSynthesizeStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, tts.ErrAuth},
		{http.StatusTooManyRequests, tts.ErrQuota},
		{http.StatusBadGateway, tts.ErrUnavailable},
		{http.StatusUnprocessableEntity, tts.ErrInvalidResponse},
	}
	for _, tt := range tests {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := p.Synthesize(t.Context(), tts.Request{VoiceID: "v", Text: "x", WithTimestamps: true})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestSynthesizeRejectsMismatchedAlignment(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		resp := timestampsResponse{AudioBase64: base64.StdEncoding.EncodeToString([]byte("a"))}
		resp.Alignment.Characters = []string{"H", "i"}
		resp.Alignment.CharacterStartTimes = []float64{0}
		resp.Alignment.CharacterEndTimes = []float64{0.1, 0.2}
		json.NewEncoder(w).Encode(resp)
	})
	_, err := p.Synthesize(t.Context(), tts.Request{VoiceID: "v", Text: "Hi", WithTimestamps: true})
	if !errors.Is(err, tts.ErrInvalidResponse) {
		t.Errorf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestBuildPayloadOmitsZeroSettings(t *testing.T) {
	payload := buildPayload(tts.Request{Text: "x"}, "model-a")
	if payload.VoiceSettings != nil {
		t.Error("zero settings must be omitted so voice defaults apply")
	}
	payload = buildPayload(tts.Request{Text: "x", Settings: tts.VoiceSettings{Stability: 0.4}}, "model-a")
	if payload.VoiceSettings == nil || payload.VoiceSettings.Stability != 0.4 {
		t.Errorf("settings lost: %+v", payload.VoiceSettings)
	}
}
