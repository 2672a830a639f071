// Package openai provides a blueprint-generating LLM provider backed by the
// OpenAI API. It implements the llm.Provider interface using JSON-mode chat
// completions.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

const defaultModel = "gpt-4o-mini"

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI blueprint provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

var _ llm.Provider = (*Provider)(nil)

// GenerateBlueprint implements llm.Provider.
func (p *Provider) GenerateBlueprint(ctx context.Context, req llm.BlueprintRequest) (*types.AdBlueprint, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(userPrompt(req)),
		},
		Temperature: param.NewOpt(0.7),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices: %w", llm.ErrInvalidResponse)
	}

	bp, err := parseBlueprint([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	return bp, nil
}

// parseBlueprint decodes and validates the model's JSON output.
func parseBlueprint(data []byte) (*types.AdBlueprint, error) {
	var bp types.AdBlueprint
	if err := json.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("openai: parse blueprint: %v: %w", err, llm.ErrInvalidResponse)
	}
	if bp.Script == "" {
		return nil, fmt.Errorf("openai: blueprint has no script: %w", llm.ErrInvalidResponse)
	}
	if bp.Music.TargetBPM <= 0 {
		return nil, fmt.Errorf("openai: blueprint has no target BPM: %w", llm.ErrInvalidResponse)
	}
	if err := bp.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %v: %w", err, llm.ErrInvalidResponse)
	}
	return &bp, nil
}

// classify maps SDK errors onto the llm package sentinels.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("openai: %v: %w", err, llm.ErrAuth)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("openai: %v: %w", err, llm.ErrQuota)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("openai: %v: %w", err, llm.ErrUnavailable)
		}
		return fmt.Errorf("openai: %w", err)
	}
	return fmt.Errorf("openai: %v: %w", err, llm.ErrUnavailable)
}

const systemPrompt = `You are an audio advertising producer. Respond with a single JSON object describing a complete ad production blueprint with these fields:
"script": the full voice-over text, timed to fit the requested duration when read at a natural pace.
"context": {"durationSeconds": number, "adCategory": string, "tone": string}.
"music": {"targetBPM": number, "genre": string, "mood": string, "key": string, "arc": [{"label", "startSeconds", "endSeconds", "energy" 1-10, "musicPrompt"}], "buttonEnding": boolean, "musicalStructure": {"introType", "introBars", "bodyFeel", "peakMoment", "endingType" one of button|sustain|stinger|decay, "outroBars", "key", "phraseLength" 2-4}, "instrumentation": [strings], "composerNotes": string}.
"sentenceCues": one entry per script sentence, each {"volumeMultiplier": number, "function": one of hook|build|peak|resolve|transition|pause}.
"fades": {"fadeIn": seconds, "fadeOut": seconds, "curve": one of linear|exp|qsin|log}.
"volume": {"voice": number, "music": number}.
Output JSON only.`

// userPrompt renders the brief.
func userPrompt(req llm.BlueprintRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce a %.0f second audio ad.\n", req.DurationSeconds)
	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", req.Tone)
	}
	b.WriteString("Brief: ")
	b.WriteString(req.Prompt)
	return b.String()
}
