package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// ModelRegistryRepository persists model registry rows. At most one row may
// be is_active=true per (model_type, symbol, timeframe); Activate enforces
// this atomically.
type ModelRegistryRepository struct {
	db *DB
}

// NewModelRegistryRepository constructs a ModelRegistryRepository.
func NewModelRegistryRepository(db *DB) *ModelRegistryRepository {
	return &ModelRegistryRepository{db: db}
}

// Active returns the active row for (modelType, symbol, timeframe), or
// sql.ErrNoRows if none is registered.
func (r *ModelRegistryRepository) Active(ctx context.Context, modelType types.ModelKind, symbol, timeframe string) (*types.ModelRegistryEntry, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, model_type, symbol, timeframe, version, artifact_path, metrics, is_active, created_at
		FROM model_registry
		WHERE model_type = ? AND symbol = ? AND timeframe = ? AND is_active = 1
		ORDER BY created_at DESC LIMIT 1
	`, string(modelType), symbol, timeframe)
	return scanRegistryEntry(row)
}

// Activate inserts a new entry and atomically deactivates any previous active
// row for the same (model_type, symbol, timeframe).
func (r *ModelRegistryRepository) Activate(ctx context.Context, e types.ModelRegistryEntry) error {
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin activate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE model_registry SET is_active = 0
		WHERE model_type = ? AND symbol = ? AND timeframe = ? AND is_active = 1
	`, string(e.ModelType), e.Symbol, e.Timeframe); err != nil {
		return fmt.Errorf("store: deactivating previous entry: %w", err)
	}

	metricsJSON, _ := json.Marshal(e.Metrics)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO model_registry (id, model_type, symbol, timeframe, version, artifact_path, metrics, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, e.ID, string(e.ModelType), e.Symbol, e.Timeframe, e.Version, e.ArtifactPath, string(metricsJSON), e.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("store: inserting active entry: %w", err)
	}

	return tx.Commit()
}

func scanRegistryEntry(row *sql.Row) (*types.ModelRegistryEntry, error) {
	var e types.ModelRegistryEntry
	var modelType string
	var metricsJSON string
	var isActive int
	var createdMs int64
	if err := row.Scan(&e.ID, &modelType, &e.Symbol, &e.Timeframe, &e.Version, &e.ArtifactPath, &metricsJSON, &isActive, &createdMs); err != nil {
		return nil, err
	}
	e.ModelType = types.ModelKind(modelType)
	e.IsActive = isActive != 0
	e.CreatedAt = msToTime(createdMs)
	_ = json.Unmarshal([]byte(metricsJSON), &e.Metrics)
	return &e, nil
}
