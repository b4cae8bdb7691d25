package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/monitoring"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

type memJobs struct {
	mu      sync.Mutex
	jobs    map[string]database.Job
	updates int
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]database.Job{}}
}

func (m *memJobs) CreateJob(_ context.Context, j *database.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = *j
	return nil
}

func (m *memJobs) UpdateJob(_ context.Context, j *database.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = *j
	m.updates++
	return nil
}

func (m *memJobs) GetJob(_ context.Context, id string) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("job", id)
	}
	return &j, nil
}

func fixedScorer(failing ...string) ScoreFunc {
	fail := map[string]bool{}
	for _, id := range failing {
		fail[id] = true
	}
	return func(_ context.Context, farmerID string) (scoring.ScoreResult, error) {
		if fail[farmerID] {
			return scoring.ScoreResult{}, apperrors.NewConsentError("Farmer consent not given")
		}
		return scoring.Deterministic(scoring.RawFeatures{}), nil
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(make([]string, MaxFarmers+1)))
	assert.Error(t, Validate([]string{"FARM001", "  "}))
	assert.NoError(t, Validate([]string{"FARM001"}))

	err := Validate(nil)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}

func TestSubmit_CompletesWithPerFarmerFailures(t *testing.T) {
	store := newMemJobs()
	metrics := monitoring.NewMetrics()
	r := NewRunner(store, fixedScorer("FARM002"), WithWorkers(2), WithMetrics(metrics))

	job, err := r.Submit(context.Background(), []string{"FARM001", "FARM002", "FARM003"})
	require.NoError(t, err)
	assert.Equal(t, database.JobPending, job.Status)
	assert.Equal(t, database.JobTypeBatchScore, job.JobType)

	r.Wait()

	got, err := r.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 3, got.Output["total"])
	assert.Equal(t, 2, got.Output["scored"])
	assert.Equal(t, 1, got.Output["failed"])

	failures := got.Output["errors"].(map[string]string)
	assert.Contains(t, failures["FARM002"], "consent")

	results := got.Output["results"].([]Result)
	for _, res := range results {
		assert.Equal(t, 49.2, res.Score)
		assert.Equal(t, "deterministic", res.ModelType)
	}

	assert.Equal(t, int64(1), metrics.BatchJobsSubmitted)
	assert.Equal(t, int64(0), metrics.BatchJobsFailed)
}

func TestSubmit_RespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	score := func(_ context.Context, _ string) (scoring.ScoreResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return scoring.Deterministic(scoring.RawFeatures{}), nil
	}

	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("FARM%03d", i)
	}

	r := NewRunner(newMemJobs(), score, WithWorkers(3))
	_, err := r.Submit(context.Background(), ids)
	require.NoError(t, err)
	r.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestShutdown_FailsInFlightJob(t *testing.T) {
	store := newMemJobs()
	started := make(chan struct{})
	var once sync.Once
	score := func(ctx context.Context, _ string) (scoring.ScoreResult, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return scoring.ScoreResult{}, ctx.Err()
	}

	metrics := monitoring.NewMetrics()
	r := NewRunner(store, score, WithWorkers(1), WithMetrics(metrics))
	job, err := r.Submit(context.Background(), []string{"FARM001", "FARM002"})
	require.NoError(t, err)

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "batch interrupted")
	assert.Equal(t, int64(1), metrics.BatchJobsFailed)
}

func TestSubmit_InvalidRequestCreatesNoJob(t *testing.T) {
	store := newMemJobs()
	r := NewRunner(store, fixedScorer())

	_, err := r.Submit(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, store.jobs)
}
