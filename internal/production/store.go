package production

import (
	"context"
	"errors"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
)

// ErrNotFound is returned for operations on unknown IDs.
var ErrNotFound = errors.New("production: not found")

// Store persists Productions, Scripts, and Assets. Implementations must be
// safe for concurrent use and must enforce [Transition] on every status
// change.
type Store interface {
	// Create persists a new Production in PENDING and returns its ID.
	Create(ctx context.Context, p *Production) (string, error)

	// Get returns a snapshot of the production.
	Get(ctx context.Context, id string) (*Production, error)

	// Advance moves the production to a later status. Progress is raised to
	// the new status's floor, never lowered.
	Advance(ctx context.Context, id string, to Status) error

	// SetProgress raises the production's progress. Decreases are ignored.
	SetProgress(ctx context.Context, id string, percent int) error

	// Fail moves the production to FAILED with the terminal error.
	Fail(ctx context.Context, id string, kind faults.Kind, message string) error

	// Cancel moves the production to CANCELLED. Terminal productions are
	// left alone.
	Cancel(ctx context.Context, id string) error

	// AddWarning appends a soft-failure note.
	AddWarning(ctx context.Context, id string, note string) error

	// SaveScript persists the generated script and links it to its
	// production.
	SaveScript(ctx context.Context, s *Script) (string, error)

	// GetScript returns the script attached to a production.
	GetScript(ctx context.Context, productionID string) (*Script, error)

	// SaveAsset persists an audio artifact and updates the production's
	// reference for the asset's kind.
	SaveAsset(ctx context.Context, a *Asset) (string, error)

	// ListAssets returns all assets of a production in creation order.
	ListAssets(ctx context.Context, productionID string) ([]Asset, error)
}
