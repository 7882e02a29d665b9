package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
	"github.com/ekaya-inc/contract-nlq/pkg/database"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
)

// SnapshotRepository persists plan snapshots. Every save appends a row; the
// latest row per request id is the live snapshot, older rows are audit
// history.
type SnapshotRepository interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Latest(ctx context.Context, requestID uuid.UUID) (*models.Snapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type snapshotRepository struct {
	db *database.DB
}

var _ SnapshotRepository = (*snapshotRepository)(nil)

// NewSnapshotRepository creates a PostgreSQL-backed snapshot repository.
func NewSnapshotRepository(db *database.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap.RequestID == uuid.Nil {
		return fmt.Errorf("failed to save snapshot: missing request id")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	intentJSON, err := json.Marshal(snap.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	bindsJSON, err := json.Marshal(snap.Binds)
	if err != nil {
		return fmt.Errorf("failed to marshal binds: %w", err)
	}

	query := `
		INSERT INTO planner_snapshots (request_id, question, intent, sql_text, binds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query,
		snap.RequestID,
		snap.Question,
		intentJSON,
		snap.SQL,
		bindsJSON,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepository) Latest(ctx context.Context, requestID uuid.UUID) (*models.Snapshot, error) {
	query := `
		SELECT request_id, question, intent, sql_text, binds, created_at
		FROM planner_snapshots
		WHERE request_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var (
		snap       models.Snapshot
		intentJSON []byte
		bindsJSON  []byte
	)
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&snap.RequestID,
		&snap.Question,
		&intentJSON,
		&snap.SQL,
		&bindsJSON,
		&snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal(intentJSON, &snap.Intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}
	if err := json.Unmarshal(bindsJSON, &snap.Binds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binds: %w", err)
	}
	return &snap, nil
}

func (r *snapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM planner_snapshots WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
