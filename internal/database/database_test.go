package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func f64(v float64) *float64 { return &v }

func sampleFeatures() scoring.RawFeatures {
	crop := "wheat"
	return scoring.RawFeatures{
		LandArea:        f64(2.5),
		CropType:        &crop,
		PastKCCDefaults: f64(0),
		NDVIMean:        f64(0.62),
	}
}

func TestNewDB_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := NewDB(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(dir, DBFileName))
	assert.NoError(t, err)

	stats := db.GetPoolStats()
	assert.Equal(t, 25, stats["max_open_connections"])

	_, err = db.GetPreparedStatement("missing")
	assert.Error(t, err)
}

func TestFarmerLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	farmer := NewFarmer("FARM001", "Ramesh Kumar", "+919876543210", sampleFeatures(), true)
	farmer.State = "Punjab"
	farmer.Latitude = f64(30.9)
	require.NoError(t, repo.CreateFarmer(ctx, farmer))

	got, err := repo.GetFarmer(ctx, "FARM001")
	require.NoError(t, err)
	assert.Equal(t, farmer.ID, got.ID)
	assert.Equal(t, "Punjab", got.State)
	assert.Empty(t, got.District)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, 30.9, *got.Latitude)
	assert.Nil(t, got.Longitude)
	assert.True(t, got.ConsentGiven)
	assert.NotNil(t, got.ConsentDate)
	require.NotNil(t, got.Features.CropType)
	assert.Equal(t, "wheat", *got.Features.CropType)
	assert.Nil(t, got.Features.UPITxnFreq)

	err = repo.CreateFarmer(ctx, NewFarmer("FARM001", "Someone Else", "+919876543211", scoring.RawFeatures{}, true))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = repo.GetFarmer(ctx, "NOPE00")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestListFarmers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	farmers, err := repo.ListFarmers(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, farmers)

	ids := []string{"FARM101", "FARM102", "FARM103"}
	for _, id := range ids {
		require.NoError(t, repo.CreateFarmer(ctx, NewFarmer(id, "Farmer "+id, "9876543210", sampleFeatures(), true)))
	}

	tests := []struct {
		name          string
		offset, limit int
		expected      []string
	}{
		{"first page", 0, 2, []string{"FARM101", "FARM102"}},
		{"second page", 2, 2, []string{"FARM103"}},
		{"past the end", 5, 2, nil},
		{"negative offset starts at zero", -3, 1, []string{"FARM101"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			farmers, err := repo.ListFarmers(ctx, tt.offset, tt.limit)
			require.NoError(t, err)

			var got []string
			for _, f := range farmers {
				got = append(got, f.FarmerID)
			}
			assert.Equal(t, tt.expected, got)
		})
	}

	farmers, err = repo.ListFarmers(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, farmers, 1)
	assert.Equal(t, 2.5, *farmers[0].Features.LandArea)
}

func TestScoresNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateFarmer(ctx, NewFarmer("FARM002", "Sita Devi", "9876543210", sampleFeatures(), true)))

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		result := scoring.Deterministic(sampleFeatures())
		rec := NewScoreRecord("FARM002", sampleFeatures(), result)
		rec.Score = float64(40 + i)
		rec.ComputedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.InsertScore(ctx, rec))
	}

	records, err := repo.ListScores(ctx, "FARM002", 0)
	require.NoError(t, err)
	require.Len(t, records, DefaultHistoryLimit)
	assert.Equal(t, 51.0, records[0].Score)
	assert.Equal(t, 42.0, records[9].Score)
	assert.Equal(t, "deterministic", records[0].ModelType)
	require.NotEmpty(t, records[0].Drivers)
	assert.NotEmpty(t, records[0].Drivers[0].Explanation)

	records, err = repo.ListScores(ctx, "FARM002", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = repo.ListScores(ctx, "UNKNOWN", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsertScore_UnknownFarmerRejected(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewScoreRecord("GHOST1", scoring.RawFeatures{}, scoring.Deterministic(scoring.RawFeatures{}))

	err := repo.InsertScore(context.Background(), rec)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryStorage))
}

func TestDeleteFarmer(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateFarmer(ctx, NewFarmer("FARM003", "Anil", "9876543210", scoring.RawFeatures{}, true)))
	for i := 0; i < 2; i++ {
		rec := NewScoreRecord("FARM003", scoring.RawFeatures{}, scoring.Deterministic(scoring.RawFeatures{}))
		require.NoError(t, repo.InsertScore(ctx, rec))
	}

	removed, err := repo.DeleteFarmer(ctx, "FARM003")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = repo.GetFarmer(ctx, "FARM003")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))

	_, err = repo.DeleteFarmer(ctx, "FARM003")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestJobLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := NewJob(JobTypeBatchScore, []string{"FARM001", "FARM002"})
	require.NoError(t, repo.CreateJob(ctx, job))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, got.Status)
	assert.Equal(t, []string{"FARM001", "FARM002"}, got.Input)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Output)

	now := time.Now().UTC()
	job.Status = JobCompleted
	job.Progress = 100
	job.StartedAt = &now
	job.CompletedAt = &now
	job.Output = map[string]any{"scored": 2}
	require.NoError(t, repo.UpdateJob(ctx, job))

	got, err = repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, float64(2), got.Output["scored"])

	_, err = repo.GetJob(ctx, "missing")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))

	missing := NewJob(JobTypeBatchScore, nil)
	err = repo.UpdateJob(ctx, missing)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}
