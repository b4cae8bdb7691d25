package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/batch"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/cache"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/config"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/history"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/model"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/monitoring"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/privacy"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/ratelimit"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/resilience"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

const (
	version             = "1.0.0"
	databaseServiceName = "database"
)

// app holds every long-lived component the HTTP handlers use
type app struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	db           *database.DB
	repo         *database.Repository
	handle       *scoring.ModelHandle
	scorer       *scoring.Service
	historyCache *cache.Cache[[]database.ScoreRecord]
	history      *history.Service
	privacy      *privacy.PrivacyService
	runner       *batch.Runner

	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	breakers *resilience.CircuitBreakerRegistry
	health   *resilience.DegradationManager
}

func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  monitoring.NewMetrics(),
		db:       db,
		repo:     database.NewRepository(db),
		breakers: resilience.NewCircuitBreakerRegistry(),
		health:   resilience.NewDegradationManager(resilience.DefaultDegradationConfig()),
	}

	a.health.RegisterService(databaseServiceName, a.repo.Ping)

	a.handle = scoring.NewModelHandle(model.NewLoader(cfg.ModelPath))
	if cfg.ModelPath != "" {
		a.health.RegisterService(scoring.ModelServiceName, func(context.Context) error {
			_, err := a.handle.Get()
			return err
		})
	}
	adapter := scoring.NewModelAdapter(a.handle,
		scoring.WithCircuitBreaker(a.breakers.GetOrCreate(scoring.ModelServiceName, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
		})),
		scoring.WithHealthRecorder(a.health),
	)
	a.scorer = scoring.NewService(adapter,
		scoring.WithFallbackHook(func(reason error) {
			a.metrics.IncrementModelFallback()
			logger.FallbackLogger(reason)
		}),
	)

	a.historyCache = cache.NewCache[[]database.ScoreRecord](cfg.HistoryCacheTTL,
		cache.WithRecorder[[]database.ScoreRecord](a.metrics),
		cache.WithCleanupInterval[[]database.ScoreRecord](time.Minute),
	)
	a.history = history.NewService(a.repo, a.historyCache)
	a.privacy = privacy.NewService(a.repo, logger.Logger, a.history.Invalidate)

	a.runner = batch.NewRunner(a.repo, a.scoreForBatch,
		batch.WithWorkers(cfg.BatchWorkers),
		batch.WithLogger(logger),
		batch.WithMetrics(a.metrics),
	)

	a.redis, err = ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting will use in-memory fallback", "error", err)
	}
	if a.redis.IsEnabled() {
		a.health.RegisterService(ratelimit.RedisServiceName, a.redis.HealthCheck)
	}

	limits := ratelimit.DefaultConfig()
	limits.IPLimitPerMin = cfg.RateLimitPerMin
	a.limiter = ratelimit.NewRateLimiter(a.redis, limits, a.metrics)

	return a, nil
}

// policy returns the caller's policy, or the configured one when empty
func (a *app) policy(requested string) (scoring.Policy, error) {
	if requested == "" {
		return a.cfg.Policy(), nil
	}
	p, err := scoring.ParsePolicy(requested)
	if err != nil {
		return "", apperrors.NewValidationErrorWithMap(map[string]string{
			"policy": "must be deterministic_only or prefer_model",
		})
	}
	return p, nil
}

// scoreFarmer scores a registered, consenting farmer and records the result.
// override, when set, replaces the matching stored features for this call.
func (a *app) scoreFarmer(ctx context.Context, farmerID string, override *scoring.RawFeatures, policy scoring.Policy) (*database.ScoreRecord, error) {
	start := time.Now()

	farmer, err := a.repo.GetFarmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	if err := privacy.RequireConsent(farmer); err != nil {
		return nil, err
	}

	raw := farmer.Features
	if override != nil {
		raw = raw.Overlay(*override)
	}

	result := a.scorer.Compute(raw, policy)
	rec := database.NewScoreRecord(farmer.FarmerID, raw, result)
	err = a.history.Record(ctx, rec)

	a.metrics.RecordScore(string(result.ModelType), string(result.Band))
	a.logger.ScoringLogger(privacy.Ref(farmerID), string(result.ModelType), string(result.Band), result.Score, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *app) scoreForBatch(ctx context.Context, farmerID string) (scoring.ScoreResult, error) {
	rec, err := a.scoreFarmer(ctx, farmerID, nil, a.cfg.Policy())
	if err != nil {
		return scoring.ScoreResult{}, err
	}
	return scoring.ScoreResult{
		Score:        rec.Score,
		Band:         scoring.Band(rec.Band),
		Drivers:      rec.Drivers,
		ModelType:    scoring.ModelType(rec.ModelType),
		ModelVersion: rec.ModelVersion,
	}, nil
}

// close stops background work and releases storage. Running batch jobs get
// until ctx expires to finish.
func (a *app) close(ctx context.Context) {
	if err := a.runner.Shutdown(ctx); err != nil {
		slog.Warn("Batch jobs interrupted by shutdown", "error", err)
	}
	a.limiter.Close()
	a.historyCache.Close()
	apperrors.SafeClose(a.redis, "redis")
	apperrors.SafeClose(a.db, "database")
}
