package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
)

// Schema is the SQL DDL for the production tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS productions (
    id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    owner_id       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'PENDING',
    progress       INT NOT NULL DEFAULT 0,
    error_kind     TEXT NOT NULL DEFAULT '',
    error_message  TEXT NOT NULL DEFAULT '',
    warnings       TEXT[] NOT NULL DEFAULT '{}',
    script_id      TEXT NOT NULL DEFAULT '',
    voice_asset_id TEXT NOT NULL DEFAULT '',
    music_asset_id TEXT NOT NULL DEFAULT '',
    final_mix_id   TEXT NOT NULL DEFAULT '',
    settings       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_productions_owner ON productions(owner_id, created_at);

CREATE TABLE IF NOT EXISTS scripts (
    id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    production_id TEXT NOT NULL REFERENCES productions(id) ON DELETE CASCADE,
    text          TEXT NOT NULL,
    blueprint     JSONB NOT NULL,
    tts           JSONB NOT NULL DEFAULT 'null'::jsonb,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (production_id)
);

CREATE TABLE IF NOT EXISTS assets (
    id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    production_id TEXT NOT NULL REFERENCES productions(id) ON DELETE CASCADE,
    kind          TEXT NOT NULL,
    variant       TEXT NOT NULL DEFAULT '',
    path          TEXT NOT NULL,
    public_url    TEXT NOT NULL DEFAULT '',
    duration_s    DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_assets_production ON assets(production_id, created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate]
// before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the tables and indexes if they
// do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("production: migrate: %w", err)
	}
	return nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, p *Production) (string, error) {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return "", fmt.Errorf("production: create: encode settings: %w", err)
	}

	const query = `
		INSERT INTO productions (owner_id, settings)
		VALUES ($1, $2)
		RETURNING id`

	var id string
	if err := s.db.QueryRow(ctx, query, p.OwnerID, settings).Scan(&id); err != nil {
		return "", fmt.Errorf("production: create: %w", err)
	}
	return id, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Production, error) {
	const query = `
		SELECT id, owner_id, status, progress, error_kind, error_message,
		       warnings, script_id, voice_asset_id, music_asset_id,
		       final_mix_id, settings, created_at, updated_at
		FROM productions WHERE id = $1`

	var p Production
	var status, errorKind string
	var settings []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.OwnerID, &status, &p.Progress, &errorKind, &p.ErrorMessage,
		&p.Warnings, &p.ScriptID, &p.VoiceAssetID, &p.MusicAssetID,
		&p.FinalMixID, &settings, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("production: get %s: %w", id, err)
	}
	p.Status = Status(status)
	p.ErrorKind = faults.Kind(errorKind)
	if err := json.Unmarshal(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("production: get %s: decode settings: %w", id, err)
	}
	return &p, nil
}

// Advance implements Store. The transition is validated in Go against the
// current status and applied with an optimistic guard, so a concurrent
// writer makes the update miss instead of corrupting the ladder.
func (s *PostgresStore) Advance(ctx context.Context, id string, to Status) error {
	from, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if err := Transition(from, to); err != nil {
		return err
	}

	const query = `
		UPDATE productions
		SET status = $3, progress = GREATEST(progress, $4), updated_at = now()
		WHERE id = $1 AND status = $2`

	tag, err := s.db.Exec(ctx, query, id, string(from), string(to), to.ProgressFloor())
	if err != nil {
		return fmt.Errorf("production: advance %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("production: advance %s to %s: concurrent status change", id, to)
	}
	return nil
}

// SetProgress implements Store.
func (s *PostgresStore) SetProgress(ctx context.Context, id string, percent int) error {
	if percent > 100 {
		percent = 100
	}

	const query = `
		UPDATE productions
		SET progress = GREATEST(progress, $2), updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

	if _, err := s.db.Exec(ctx, query, id, percent); err != nil {
		return fmt.Errorf("production: progress %s: %w", id, err)
	}
	return s.exists(ctx, id)
}

// Fail implements Store.
func (s *PostgresStore) Fail(ctx context.Context, id string, kind faults.Kind, message string) error {
	from, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if err := Transition(from, StatusFailed); err != nil {
		return err
	}

	const query = `
		UPDATE productions
		SET status = 'FAILED', error_kind = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

	if _, err := s.db.Exec(ctx, query, id, string(kind), message); err != nil {
		return fmt.Errorf("production: fail %s: %w", id, err)
	}
	return nil
}

// Cancel implements Store.
func (s *PostgresStore) Cancel(ctx context.Context, id string) error {
	const query = `
		UPDATE productions SET status = 'CANCELLED', updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("production: cancel %s: %w", id, err)
	}
	return s.exists(ctx, id)
}

// AddWarning implements Store.
func (s *PostgresStore) AddWarning(ctx context.Context, id string, note string) error {
	const query = `
		UPDATE productions
		SET warnings = array_append(warnings, $2), updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, note)
	if err != nil {
		return fmt.Errorf("production: warn %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveScript implements Store.
func (s *PostgresStore) SaveScript(ctx context.Context, script *Script) (string, error) {
	blueprint, err := json.Marshal(script.Blueprint)
	if err != nil {
		return "", fmt.Errorf("production: save script: encode blueprint: %w", err)
	}
	tts, err := json.Marshal(script.TTS)
	if err != nil {
		return "", fmt.Errorf("production: save script: encode tts metadata: %w", err)
	}

	const query = `
		INSERT INTO scripts (production_id, text, blueprint, tts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (production_id) DO UPDATE
		SET text = EXCLUDED.text, blueprint = EXCLUDED.blueprint, tts = EXCLUDED.tts
		RETURNING id`

	var id string
	if err := s.db.QueryRow(ctx, query, script.ProductionID, script.Text, blueprint, tts).Scan(&id); err != nil {
		if isForeignKeyError(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("production: save script: %w", err)
	}

	const link = `UPDATE productions SET script_id = $2, updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, link, script.ProductionID, id); err != nil {
		return "", fmt.Errorf("production: link script: %w", err)
	}
	return id, nil
}

// GetScript implements Store.
func (s *PostgresStore) GetScript(ctx context.Context, productionID string) (*Script, error) {
	const query = `
		SELECT id, production_id, text, blueprint, tts, created_at
		FROM scripts WHERE production_id = $1`

	var script Script
	var blueprint, tts []byte
	err := s.db.QueryRow(ctx, query, productionID).Scan(
		&script.ID, &script.ProductionID, &script.Text, &blueprint, &tts, &script.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("production: get script for %s: %w", productionID, err)
	}
	if err := json.Unmarshal(blueprint, &script.Blueprint); err != nil {
		return nil, fmt.Errorf("production: get script for %s: decode blueprint: %w", productionID, err)
	}
	if err := json.Unmarshal(tts, &script.TTS); err != nil {
		return nil, fmt.Errorf("production: get script for %s: decode tts metadata: %w", productionID, err)
	}
	return &script, nil
}

// SaveAsset implements Store.
func (s *PostgresStore) SaveAsset(ctx context.Context, a *Asset) (string, error) {
	const query = `
		INSERT INTO assets (production_id, kind, variant, path, public_url, duration_s)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id string
	err := s.db.QueryRow(ctx, query,
		a.ProductionID, string(a.Kind), a.Variant, a.Path, a.PublicURL, a.DurationSeconds,
	).Scan(&id)
	if err != nil {
		if isForeignKeyError(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("production: save asset: %w", err)
	}

	column := ""
	switch a.Kind {
	case AssetVoice:
		column = "voice_asset_id"
	case AssetMusic:
		column = "music_asset_id"
	case AssetMix:
		column = "final_mix_id"
	}
	if column != "" {
		link := fmt.Sprintf(`UPDATE productions SET %s = $2, updated_at = now() WHERE id = $1`, column)
		if _, err := s.db.Exec(ctx, link, a.ProductionID, id); err != nil {
			return "", fmt.Errorf("production: link asset: %w", err)
		}
	}
	return id, nil
}

// ListAssets implements Store.
func (s *PostgresStore) ListAssets(ctx context.Context, productionID string) ([]Asset, error) {
	if err := s.exists(ctx, productionID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, production_id, kind, variant, path, public_url, duration_s, created_at
		FROM assets WHERE production_id = $1
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, productionID)
	if err != nil {
		return nil, fmt.Errorf("production: list assets for %s: %w", productionID, err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var a Asset
		var kind string
		if err := rows.Scan(&a.ID, &a.ProductionID, &kind, &a.Variant,
			&a.Path, &a.PublicURL, &a.DurationSeconds, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("production: list assets for %s: %w", productionID, err)
		}
		a.Kind = AssetKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("production: list assets for %s: %w", productionID, err)
	}
	return out, nil
}

func (s *PostgresStore) currentStatus(ctx context.Context, id string) (Status, error) {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM productions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("production: lookup %s: %w", id, err)
	}
	return Status(status), nil
}

func (s *PostgresStore) exists(ctx context.Context, id string) error {
	_, err := s.currentStatus(ctx, id)
	return err
}

// isForeignKeyError reports whether err is a foreign key violation, meaning
// the referenced production does not exist.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
