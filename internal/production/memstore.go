package production

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
)

// MemStore is an in-memory Store for tests and single-process runs.
// It is safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	productions map[string]*Production
	scripts     map[string]*Script
	assets      map[string][]Asset

	// now is replaceable for tests.
	now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		productions: make(map[string]*Production),
		scripts:     make(map[string]*Script),
		assets:      make(map[string][]Asset),
		now:         time.Now,
	}
}

// Create implements Store.
func (s *MemStore) Create(_ context.Context, p *Production) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.ID = uuid.NewString()
	cp.Status = StatusPending
	cp.Progress = 0
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt
	s.productions[cp.ID] = &cp
	return cp.ID, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id string) (*Production, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshotProduction(p), nil
}

// Advance implements Store.
func (s *MemStore) Advance(_ context.Context, id string, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[id]
	if !ok {
		return ErrNotFound
	}
	if err := Transition(p.Status, to); err != nil {
		return err
	}
	p.Status = to
	if floor := to.ProgressFloor(); floor > p.Progress {
		p.Progress = floor
	}
	p.UpdatedAt = s.now()
	return nil
}

// SetProgress implements Store.
func (s *MemStore) SetProgress(_ context.Context, id string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[id]
	if !ok {
		return ErrNotFound
	}
	if percent > 100 {
		percent = 100
	}
	if !p.Status.Terminal() && percent > p.Progress {
		p.Progress = percent
		p.UpdatedAt = s.now()
	}
	return nil
}

// Fail implements Store.
func (s *MemStore) Fail(_ context.Context, id string, kind faults.Kind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[id]
	if !ok {
		return ErrNotFound
	}
	if err := Transition(p.Status, StatusFailed); err != nil {
		return err
	}
	p.Status = StatusFailed
	p.ErrorKind = kind
	p.ErrorMessage = message
	p.UpdatedAt = s.now()
	return nil
}

// Cancel implements Store.
func (s *MemStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status.Terminal() {
		return nil
	}
	p.Status = StatusCancelled
	p.UpdatedAt = s.now()
	return nil
}

// AddWarning implements Store.
func (s *MemStore) AddWarning(_ context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[id]
	if !ok {
		return ErrNotFound
	}
	p.Warnings = append(p.Warnings, note)
	p.UpdatedAt = s.now()
	return nil
}

// SaveScript implements Store.
func (s *MemStore) SaveScript(_ context.Context, script *Script) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[script.ProductionID]
	if !ok {
		return "", ErrNotFound
	}

	cp := *script
	cp.ID = uuid.NewString()
	cp.CreatedAt = s.now()
	s.scripts[cp.ProductionID] = &cp
	p.ScriptID = cp.ID
	p.UpdatedAt = cp.CreatedAt
	return cp.ID, nil
}

// GetScript implements Store.
func (s *MemStore) GetScript(_ context.Context, productionID string) (*Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	script, ok := s.scripts[productionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *script
	return &cp, nil
}

// SaveAsset implements Store.
func (s *MemStore) SaveAsset(_ context.Context, a *Asset) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.productions[a.ProductionID]
	if !ok {
		return "", ErrNotFound
	}

	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = s.now()
	s.assets[cp.ProductionID] = append(s.assets[cp.ProductionID], cp)

	switch cp.Kind {
	case AssetVoice:
		p.VoiceAssetID = cp.ID
	case AssetMusic:
		p.MusicAssetID = cp.ID
	case AssetMix:
		p.FinalMixID = cp.ID
	}
	p.UpdatedAt = cp.CreatedAt
	return cp.ID, nil
}

// ListAssets implements Store.
func (s *MemStore) ListAssets(_ context.Context, productionID string) ([]Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.productions[productionID]; !ok {
		return nil, ErrNotFound
	}
	return append([]Asset(nil), s.assets[productionID]...), nil
}

// snapshotProduction copies a production so callers cannot mutate store
// state.
func snapshotProduction(p *Production) *Production {
	cp := *p
	cp.Warnings = append([]string(nil), p.Warnings...)
	return &cp
}
