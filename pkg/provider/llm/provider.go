// Package llm defines the Provider interface for blueprint-generating
// language model backends.
//
// An LLM provider wraps a remote model API (e.g., OpenAI) and exposes a
// single structured operation: turning an ad brief into a complete
// [types.AdBlueprint]. Implementations must validate the model's output
// before returning it, so callers never see a schema-invalid blueprint.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// Sentinel errors implementations wrap so callers can classify failures
// without depending on a concrete backend.
var (
	// ErrAuth means the credentials were rejected. Not retryable.
	ErrAuth = errors.New("llm: authentication failed")

	// ErrQuota means the account is out of quota or rate limited past
	// recovery. Not retryable; callers fall back to a deterministic blueprint.
	ErrQuota = errors.New("llm: quota exhausted")

	// ErrInvalidResponse means the model returned output that does not parse
	// or validate as a blueprint. Not retryable.
	ErrInvalidResponse = errors.New("llm: response is not a valid blueprint")

	// ErrUnavailable means a transient backend failure. Retryable.
	ErrUnavailable = errors.New("llm: backend unavailable")
)

// BlueprintRequest is the ad brief handed to the model.
type BlueprintRequest struct {
	// Prompt is the free-text description of the ad to produce.
	Prompt string

	// DurationSeconds is the target ad length.
	DurationSeconds float64

	// Tone optionally steers the script's voice ("warm", "urgent").
	Tone string
}

// Provider is the abstraction over any blueprint-generating LLM backend.
type Provider interface {
	// GenerateBlueprint produces a validated ad-production blueprint for the
	// brief. Errors wrap one of the package sentinels.
	GenerateBlueprint(ctx context.Context, req BlueprintRequest) (*types.AdBlueprint, error)
}
