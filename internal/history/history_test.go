package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/cache"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

type memStore struct {
	records   map[string][]database.ScoreRecord
	listCalls int
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{records: map[string][]database.ScoreRecord{}}
}

func (m *memStore) InsertScore(_ context.Context, s *database.ScoreRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records[s.FarmerID] = append([]database.ScoreRecord{*s}, m.records[s.FarmerID]...)
	return nil
}

func (m *memStore) ListScores(_ context.Context, farmerID string, limit int) ([]database.ScoreRecord, error) {
	m.listCalls++
	recs := m.records[farmerID]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return append([]database.ScoreRecord(nil), recs...), nil
}

func record(farmerID string, score float64) *database.ScoreRecord {
	rec := database.NewScoreRecord(farmerID, scoring.RawFeatures{}, scoring.Deterministic(scoring.RawFeatures{}))
	rec.Score = score
	return rec
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(500))
}

func TestHistory_CachesAndInvalidates(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, cache.NewCache[[]database.ScoreRecord](time.Minute))
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, record("FARM001", 50)))

	got, err := svc.History(ctx, "FARM001", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = svc.History(ctx, "FARM001", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls, "second read should be served from cache")

	require.NoError(t, svc.Record(ctx, record("FARM001", 61.5)))
	got, err = svc.History(ctx, "FARM001", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 61.5, got[0].Score)
	assert.Equal(t, 2, store.listCalls)
}

func TestHistory_OtherFarmersStayCached(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, cache.NewCache[[]database.ScoreRecord](time.Minute))
	ctx := context.Background()

	_, err := svc.History(ctx, "FARM002", 5)
	require.NoError(t, err)
	require.NoError(t, svc.Record(ctx, record("FARM001", 40)))

	_, err = svc.History(ctx, "FARM002", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)
}

func TestHistory_ReturnedSliceIsACopy(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, cache.NewCache[[]database.ScoreRecord](time.Minute))
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, record("FARM001", 50)))

	got, err := svc.History(ctx, "FARM001", 10)
	require.NoError(t, err)
	got[0].Score = 99

	again, err := svc.History(ctx, "FARM001", 10)
	require.NoError(t, err)
	assert.Equal(t, 50.0, again[0].Score)
}

func TestRecord_PropagatesStoreError(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	store.insertErr = errors.New("disk full")

	err := svc.Record(context.Background(), record("FARM001", 50))
	assert.EqualError(t, err, "disk full")
}
