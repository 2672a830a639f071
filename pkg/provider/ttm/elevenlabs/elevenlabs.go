// Package elevenlabs provides an ElevenLabs-backed music generation provider
// using the REST music API. It implements the ttm.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "music_v1"

	// Service limits on requested length.
	minLengthMs = 10_000
	maxLengthMs = 300_000
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the music model ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
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

// Provider implements ttm.Provider backed by the ElevenLabs music API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ ttm.Provider = (*Provider)(nil)

// New creates a new ElevenLabs music Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// composeRequest is the JSON payload for POST /v1/music.
type composeRequest struct {
	Prompt        string `json:"prompt"`
	MusicLengthMs int    `json:"music_length_ms"`
	ModelID       string `json:"model_id"`
}

// Compose implements ttm.Provider.
func (p *Provider) Compose(ctx context.Context, req ttm.Request) ([]byte, error) {
	if req.Prompt == "" {
		return nil, errors.New("elevenlabs: prompt must not be empty")
	}

	body, err := json.Marshal(composeRequest{
		Prompt:        req.Prompt,
		MusicLengthMs: lengthMs(req.DurationSeconds),
		ModelID:       p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/music", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %v: %w", err, ttm.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio: %w", ttm.ErrInvalidResponse)
	}
	return audio, nil
}

// lengthMs converts seconds to the service's millisecond field, clamped to
// its accepted range.
func lengthMs(seconds float64) int {
	ms := int(math.Round(seconds * 1000))
	if ms < minLengthMs {
		return minLengthMs
	}
	if ms > maxLengthMs {
		return maxLengthMs
	}
	return ms
}

// statusError maps an HTTP status onto the ttm sentinels.
func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("elevenlabs: status %d: %w", code, ttm.ErrAuth)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("elevenlabs: status %d: %w", code, ttm.ErrQuota)
	case code >= 500:
		return fmt.Errorf("elevenlabs: status %d: %w", code, ttm.ErrUnavailable)
	default:
		return fmt.Errorf("elevenlabs: status %d: %w", code, ttm.ErrInvalidResponse)
	}
}
