// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// REST with-timestamps API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesisRequest is the JSON payload for both endpoints.
type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// timestampsResponse is the with-timestamps endpoint payload. Audio is base64;
// the alignment arrays are index-parallel.
type timestampsResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   struct {
		Characters          []string  `json:"characters"`
		CharacterStartTimes []float64 `json:"character_start_times_seconds"`
		CharacterEndTimes   []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

// Synthesize implements tts.Provider. With timestamps it calls the
// with-timestamps endpoint and decodes the base64 payload; without, it calls
// the plain endpoint and returns the raw body.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	if req.Text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		p.baseURL, req.VoiceID, p.outputFormat)
	if req.WithTimestamps {
		endpoint = fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps?output_format=%s",
			p.baseURL, req.VoiceID, p.outputFormat)
	}

	body, err := json.Marshal(buildPayload(req, p.model))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %v: %w", err, tts.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	if !req.WithTimestamps {
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
		}
		return &tts.Result{Audio: audio}, nil
	}

	var tr timestampsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode response: %v: %w", err, tts.ErrInvalidResponse)
	}
	return parseTimestamps(&tr)
}

// buildPayload constructs the request body. Settings are omitted when zero so
// the voice's stored defaults apply.
func buildPayload(req tts.Request, model string) synthesisRequest {
	payload := synthesisRequest{Text: req.Text, ModelID: model}
	if req.Settings != (tts.VoiceSettings{}) {
		payload.VoiceSettings = &voiceSettings{
			Stability:       req.Settings.Stability,
			SimilarityBoost: req.Settings.SimilarityBoost,
			Speed:           req.Settings.Speed,
		}
	}
	return payload
}

// parseTimestamps decodes the base64 audio and zips the parallel alignment
// arrays into CharTiming values.
func parseTimestamps(tr *timestampsResponse) (*tts.Result, error) {
	audio, err := base64.StdEncoding.DecodeString(tr.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: decode audio: %v: %w", err, tts.ErrInvalidResponse)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio: %w", tts.ErrInvalidResponse)
	}

	chars := tr.Alignment.Characters
	starts := tr.Alignment.CharacterStartTimes
	ends := tr.Alignment.CharacterEndTimes
	if len(chars) != len(starts) || len(chars) != len(ends) {
		return nil, fmt.Errorf("elevenlabs: alignment arrays disagree (%d/%d/%d): %w",
			len(chars), len(starts), len(ends), tts.ErrInvalidResponse)
	}

	alignment := make([]tts.CharTiming, len(chars))
	for i := range chars {
		alignment[i] = tts.CharTiming{Char: chars[i], Start: starts[i], End: ends[i]}
	}
	return &tts.Result{Audio: audio, Alignment: alignment}, nil
}

// statusError maps an HTTP status onto the tts sentinels.
func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("elevenlabs: status %d: %w", code, tts.ErrAuth)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("elevenlabs: status %d: %w", code, tts.ErrQuota)
	case code >= 500:
		return fmt.Errorf("elevenlabs: status %d: %w", code, tts.ErrUnavailable)
	default:
		return fmt.Errorf("elevenlabs: status %d: %w", code, tts.ErrInvalidResponse)
	}
}
