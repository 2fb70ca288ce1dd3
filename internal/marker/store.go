package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/reelpoint/reelpoint/internal/database"
)

// DefaultThreshold is the confidence floor applied before a viewer has ever
// adjusted the slider.
const DefaultThreshold = 0.5

const thresholdSetting = "confidence_threshold"

// Store persists per-asset marker state: the user-marker snapshot
// (overwritten wholesale on every mutation), the semantic override map, and
// one global confidence threshold. Implementations return zero values plus
// an error on failure; the engine treats every error as "empty/default".
type Store interface {
	LoadUserMarkers(ctx context.Context, assetID string) ([]Marker, error)
	SaveUserMarkers(ctx context.Context, assetID string, markers []Marker) error
	ClearUserMarkers(ctx context.Context, assetID string) error
	LoadOverrides(ctx context.Context, assetID string) (map[string]Override, error)
	SaveOverrides(ctx context.Context, assetID string, overrides map[string]Override) error
	Clear(ctx context.Context, assetID string) error
	Threshold(ctx context.Context) (float64, error)
	SetThreshold(ctx context.Context, threshold float64) error
}

// PGStore keeps marker state in Postgres as JSON-encoded collections keyed
// by asset id.
type PGStore struct {
	db database.DBTX
}

func NewPGStore(db database.DBTX) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) LoadUserMarkers(ctx context.Context, assetID string) ([]Marker, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT markers FROM asset_markers WHERE asset_id = $1`, assetID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user markers: %w", err)
	}
	var markers []Marker
	if err := json.Unmarshal(raw, &markers); err != nil {
		return nil, fmt.Errorf("decode user markers: %w", err)
	}
	return markers, nil
}

func (s *PGStore) SaveUserMarkers(ctx context.Context, assetID string, markers []Marker) error {
	raw, err := json.Marshal(markers)
	if err != nil {
		return fmt.Errorf("encode user markers: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO asset_markers (asset_id, markers) VALUES ($1, $2)
		 ON CONFLICT (asset_id) DO UPDATE SET markers = EXCLUDED.markers, updated_at = now()`,
		assetID, raw,
	)
	if err != nil {
		return fmt.Errorf("save user markers: %w", err)
	}
	return nil
}

func (s *PGStore) ClearUserMarkers(ctx context.Context, assetID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM asset_markers WHERE asset_id = $1`, assetID,
	); err != nil {
		return fmt.Errorf("clear user markers: %w", err)
	}
	return nil
}

func (s *PGStore) LoadOverrides(ctx context.Context, assetID string) (map[string]Override, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT overrides FROM marker_overrides WHERE asset_id = $1`, assetID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	overrides := make(map[string]Override)
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	return overrides, nil
}

func (s *PGStore) SaveOverrides(ctx context.Context, assetID string, overrides map[string]Override) error {
	if len(overrides) == 0 {
		if _, err := s.db.Exec(ctx,
			`DELETE FROM marker_overrides WHERE asset_id = $1`, assetID,
		); err != nil {
			return fmt.Errorf("clear overrides: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO marker_overrides (asset_id, overrides) VALUES ($1, $2)
		 ON CONFLICT (asset_id) DO UPDATE SET overrides = EXCLUDED.overrides, updated_at = now()`,
		assetID, raw,
	)
	if err != nil {
		return fmt.Errorf("save overrides: %w", err)
	}
	return nil
}

// Clear removes both persisted collections for an asset.
func (s *PGStore) Clear(ctx context.Context, assetID string) error {
	if err := s.ClearUserMarkers(ctx, assetID); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx,
		`DELETE FROM marker_overrides WHERE asset_id = $1`, assetID,
	); err != nil {
		return fmt.Errorf("clear overrides: %w", err)
	}
	return nil
}

func (s *PGStore) Threshold(ctx context.Context) (float64, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT value FROM player_settings WHERE name = $1`, thresholdSetting,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultThreshold, nil
	}
	if err != nil {
		return DefaultThreshold, fmt.Errorf("load threshold: %w", err)
	}
	var threshold float64
	if err := json.Unmarshal(raw, &threshold); err != nil {
		return DefaultThreshold, fmt.Errorf("decode threshold: %w", err)
	}
	return threshold, nil
}

func (s *PGStore) SetThreshold(ctx context.Context, threshold float64) error {
	raw, err := json.Marshal(threshold)
	if err != nil {
		return fmt.Errorf("encode threshold: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO player_settings (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		thresholdSetting, raw,
	)
	if err != nil {
		return fmt.Errorf("save threshold: %w", err)
	}
	return nil
}
