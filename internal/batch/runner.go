package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/monitoring"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

const (
	MaxFarmers     = 1000
	DefaultWorkers = 4
)

// Store persists job state
type Store interface {
	CreateJob(ctx context.Context, j *database.Job) error
	UpdateJob(ctx context.Context, j *database.Job) error
	GetJob(ctx context.Context, id string) (*database.Job, error)
}

// ScoreFunc scores and records one farmer
type ScoreFunc func(ctx context.Context, farmerID string) (scoring.ScoreResult, error)

// Result is the per-farmer line of a completed job's output
type Result struct {
	FarmerID  string  `json:"farmer_id"`
	Score     float64 `json:"score"`
	Band      string  `json:"score_band"`
	ModelType string  `json:"model_type"`
}

// Runner executes batch scoring jobs in the background
type Runner struct {
	store   Store
	score   ScoreFunc
	workers int
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Runner
type Option func(*Runner)

// WithWorkers bounds how many farmers of one job are scored concurrently
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger for job transitions
func WithLogger(l *monitoring.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics counts submitted and failed jobs
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner. Call Shutdown to stop in-flight jobs.
func NewRunner(store Store, score ScoreFunc, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:   store,
		score:   score,
		workers: DefaultWorkers,
		logger:  monitoring.NewLoggerWithWriter(io.Discard, slog.LevelInfo),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks a batch request
func Validate(farmerIDs []string) error {
	if len(farmerIDs) == 0 || len(farmerIDs) > MaxFarmers {
		return apperrors.NewValidationError(
			fmt.Sprintf("farmer_ids must contain between 1 and %d entries", MaxFarmers), len(farmerIDs))
	}
	for i, id := range farmerIDs {
		if strings.TrimSpace(id) == "" {
			return apperrors.NewValidationError("farmer_ids must not contain blank entries", i)
		}
	}
	return nil
}

// Submit records a pending job and starts scoring it in the background
func (r *Runner) Submit(ctx context.Context, farmerIDs []string) (*database.Job, error) {
	if err := Validate(farmerIDs); err != nil {
		return nil, err
	}

	job := database.NewJob(database.JobTypeBatchScore, farmerIDs)
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.IncrementBatchSubmitted()
	}
	r.logger.BatchLogger(job.ID, string(job.Status), 0, len(farmerIDs))

	snapshot := *job
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job)
	}()
	return &snapshot, nil
}

// Get returns the current state of a job
func (r *Runner) Get(ctx context.Context, id string) (*database.Job, error) {
	return r.store.GetJob(ctx, id)
}

// Wait blocks until every submitted job has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels in-flight jobs and waits for them, or for ctx
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) persist(job *database.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.UpdateJob(ctx, job); err != nil {
		r.logger.Error("Failed to update batch job", "job_id", job.ID, "error", err.Error())
	}
}

func (r *Runner) run(job *database.Job) {
	total := len(job.Input)
	started := time.Now().UTC()
	job.Status = database.JobRunning
	job.StartedAt = &started
	r.persist(job)
	r.logger.BatchLogger(job.ID, string(job.Status), 0, total)

	var (
		mu        sync.Mutex
		processed int
		results   = make([]Result, 0, total)
		failures  = make(map[string]string)
	)

	g, gctx := errgroup.WithContext(r.ctx)
	g.SetLimit(r.workers)

	for _, farmerID := range job.Input {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.score(gctx, farmerID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[farmerID] = err.Error()
			} else {
				results = append(results, Result{
					FarmerID:  farmerID,
					Score:     res.Score,
					Band:      string(res.Band),
					ModelType: string(res.ModelType),
				})
			}

			processed++
			if progress := processed * 100 / total; progress != job.Progress && processed < total {
				job.Progress = progress
				r.persist(job)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = r.ctx.Err()
	}

	finished := time.Now().UTC()
	job.CompletedAt = &finished
	job.Output = map[string]any{
		"total":   total,
		"scored":  len(results),
		"failed":  len(failures),
		"results": results,
		"errors":  failures,
	}

	if err != nil {
		job.Status = database.JobFailed
		job.ErrorMessage = fmt.Sprintf("batch interrupted: %v", err)
		if r.metrics != nil {
			r.metrics.IncrementBatchFailed()
		}
	} else {
		job.Status = database.JobCompleted
		job.Progress = 100
	}

	r.persist(job)
	r.logger.BatchLogger(job.ID, string(job.Status), processed, total)
}
