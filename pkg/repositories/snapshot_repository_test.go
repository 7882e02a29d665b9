package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
	"github.com/ekaya-inc/contract-nlq/pkg/testhelpers"
)

func testSnapshot(id uuid.UUID, sqlText string, createdAt time.Time) *models.Snapshot {
	return &models.Snapshot{
		RequestID: id,
		Question:  "contracts last month",
		Intent: &models.Intent{
			Question:       "contracts last month",
			SortDescending: true,
		},
		SQL:       sqlText,
		Binds:     map[string]any{"eq_1": "Active", "top_n": float64(5)},
		CreatedAt: createdAt,
	}
}

func TestSnapshotRepository_SaveAndLatest(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewSnapshotRepository(db.DB)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, repo.Save(ctx, testSnapshot(id, "SELECT 1", time.Now().UTC())))

	got, err := repo.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.RequestID)
	assert.Equal(t, "SELECT 1", got.SQL)
	assert.Equal(t, "contracts last month", got.Question)
	require.NotNil(t, got.Intent)
	assert.True(t, got.Intent.SortDescending)
	assert.Equal(t, "Active", got.Binds["eq_1"])
}

func TestSnapshotRepository_LatestPicksMostRecent(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewSnapshotRepository(db.DB)
	ctx := context.Background()
	id := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Save(ctx, testSnapshot(id, "SELECT 1", base)))
	require.NoError(t, repo.Save(ctx, testSnapshot(id, "SELECT 2", base.Add(time.Minute))))

	got, err := repo.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", got.SQL)
}

func TestSnapshotRepository_LatestUnknownID(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewSnapshotRepository(db.DB)

	_, err := repo.Latest(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrSnapshotNotFound)
}

func TestSnapshotRepository_SaveRejectsMissingID(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewSnapshotRepository(db.DB)

	err := repo.Save(context.Background(), &models.Snapshot{})
	require.Error(t, err)
}

func TestSnapshotRepository_DeleteOlderThan(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewSnapshotRepository(db.DB)
	ctx := context.Background()

	oldID := uuid.New()
	freshID := uuid.New()
	require.NoError(t, repo.Save(ctx, testSnapshot(oldID, "SELECT old", time.Now().UTC().Add(-48*time.Hour))))
	require.NoError(t, repo.Save(ctx, testSnapshot(freshID, "SELECT fresh", time.Now().UTC())))

	n, err := repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = repo.Latest(ctx, oldID)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotNotFound)

	got, err := repo.Latest(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, "SELECT fresh", got.SQL)
}
