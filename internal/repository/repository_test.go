package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrox/internal/model"
)

func repositories(t *testing.T) map[string]DiagnosisRepository {
	t.Helper()
	sqliteRepo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "agrox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.Close() })

	return map[string]DiagnosisRepository{
		"memory": NewMemoryRepository(),
		"sqlite": sqliteRepo,
	}
}

func TestCreateAndGet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := &model.Diagnosis{
				DiseaseID:   "Tomato__Late_blight",
				DiseaseName: "Tomato → Late_blight",
				Confidence:  97.31,
				ImagePath:   "uploads/abc_leaf.jpg",
			}
			require.NoError(t, repo.Create(ctx, d))
			assert.NotEqual(t, uuid.Nil, d.ID)
			assert.False(t, d.CreatedAt.IsZero())

			got, err := repo.GetByID(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, d.DiseaseID, got.DiseaseID)
			assert.Equal(t, d.DiseaseName, got.DiseaseName)
			assert.InDelta(t, 97.31, got.Confidence, 1e-9)
			assert.Equal(t, d.ImagePath, got.ImagePath)

			_, err = repo.GetByID(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListRecentOrderAndPaging(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
			ids := []string{"Apple__Apple_scab", "Potato__Early_blight", "Tomato__healthy"}
			for i, id := range ids {
				require.NoError(t, repo.Create(ctx, &model.Diagnosis{
					DiseaseID:   id,
					DiseaseName: id,
					CreatedAt:   base.Add(time.Duration(i) * time.Minute),
				}))
			}

			all, err := repo.ListRecent(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "Tomato__healthy", all[0].DiseaseID)
			assert.Equal(t, "Apple__Apple_scab", all[2].DiseaseID)

			page, err := repo.ListRecent(ctx, 1, 1)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "Potato__Early_blight", page[0].DiseaseID)

			empty, err := repo.ListRecent(ctx, 10, 5)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestCountByDisease(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"Tomato__healthy", "Tomato__healthy", "Corn_(maize)__Common_rust_"} {
				require.NoError(t, repo.Create(ctx, &model.Diagnosis{DiseaseID: id, DiseaseName: id}))
			}

			counts, err := repo.CountByDisease(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{
				"Tomato__healthy":            2,
				"Corn_(maize)__Common_rust_": 1,
			}, counts)
		})
	}
}

func TestMemoryRepositoryIsBounded(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < maxMemoryRecords+10; i++ {
		require.NoError(t, repo.Create(ctx, &model.Diagnosis{DiseaseID: "Tomato__healthy"}))
	}
	all, err := repo.ListRecent(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, maxMemoryRecords)
}

func TestMemoryRepositoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewMemoryRepository().Create(ctx, &model.Diagnosis{}), context.Canceled)
}
