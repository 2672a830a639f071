// Package ttm defines the Provider interface for Text-to-Music backends.
//
// A TTM provider wraps a music generation service and renders an instrumental
// bed from a composition prompt. The bed's musical grid is not trusted; the
// pipeline re-detects it after rendering.
//
// Implementations must be safe for concurrent use.
package ttm

import (
	"context"
	"errors"
)

// Sentinel errors implementations wrap so callers can classify failures
// without depending on a concrete backend.
var (
	// ErrAuth means the credentials were rejected. Not retryable.
	ErrAuth = errors.New("ttm: authentication failed")

	// ErrQuota means the account is out of generation quota. Not retryable.
	ErrQuota = errors.New("ttm: quota exhausted")

	// ErrInvalidResponse means the backend returned an unusable payload.
	ErrInvalidResponse = errors.New("ttm: invalid response")

	// ErrUnavailable means a transient backend failure. Retryable.
	ErrUnavailable = errors.New("ttm: backend unavailable")
)

// Request is one composition call.
type Request struct {
	// Prompt is the composition prompt (BPM, structure, instrumentation).
	Prompt string

	// DurationSeconds is the requested bed length.
	DurationSeconds float64
}

// Provider is the abstraction over any TTM backend.
type Provider interface {
	// Compose renders an instrumental bed for the prompt and returns the
	// encoded audio. Errors wrap one of the package sentinels.
	Compose(ctx context.Context, req Request) ([]byte, error)
}
