package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/farmer-credit-score/docs"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/batch"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/history"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/monitoring"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/resilience"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/security"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/types"
)

func newRouter(a *app) *gin.Engine {
	r := gin.New()

	// Monitoring first so it sees every request, including rejected ones
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(a.limiter.IPRateLimitMiddleware())

	sec := security.NewMiddleware(security.Config{
		RequestTimeout: a.cfg.RequestTimeout,
		EnableHSTS:     a.cfg.EnableHSTS,
		DocsPrefix:     "/swagger",
	})
	r.Use(sec.Headers, sec.ValidateContentType, sec.LimitBody, sec.RequestTimeout)

	r.GET("/health", a.handleHealth)
	r.GET("/health/services", a.handleServiceHealth)
	r.GET("/metrics", a.handleMetrics)
	r.GET("/ratelimit/status", a.limiter.HandleRateLimitStatus())

	r.POST("/farmers", a.handleCreateFarmer)
	r.GET("/farmers", a.handleListFarmers)
	r.GET("/farmers/:farmer_id", a.handleGetFarmer)
	r.DELETE("/farmers/:farmer_id", a.handleDeleteFarmer)

	r.POST("/score", a.handleScore)
	r.POST("/score/preview", a.handlePreview)
	r.GET("/score/:farmer_id/history", a.handleHistory)
	r.POST("/score/batch", a.limiter.EndpointRateLimitMiddleware("batch", a.limiter.Config().BatchLimitPerMin), a.handleBatch)
	r.GET("/jobs/:job_id", a.handleGetJob)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// handleHealth godoc
// @Summary Service health
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (a *app) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbErr := a.repo.Ping(ctx)
	a.health.RecordRequest(databaseServiceName, dbErr == nil)

	services := a.health.GetAllServiceHealth()
	response := gin.H{
		"status":       "healthy",
		"timestamp":    time.Now().Format(time.RFC3339),
		"version":      version,
		"model_loaded": a.handle.Loaded(),
		"services":     services,
	}

	if dbErr != nil {
		response["status"] = "unhealthy"
		response["error"] = "database unavailable"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	// Scoring always has the deterministic path, so trouble elsewhere only degrades
	for _, service := range services {
		if service.Level == resilience.LevelEmergency {
			response["status"] = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleServiceHealth reports degradation levels and circuit breaker state
func (a *app) handleServiceHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"services":         a.health.GetAllServiceHealth(),
		"circuit_breakers": a.breakers.GetStats(),
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

func (a *app) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":    a.metrics.GetStats(),
		"rate_limit": a.limiter.GetStats(),
		"database":   a.db.GetPoolStats(),
		"cache":      a.historyCache.Stats(),
		"retention":  a.privacy.GetDataRetentionInfo(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// bind decodes the JSON body, turning decode failures into a validation error
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apperrors.Abort(c, apperrors.NewValidationError("Invalid request body", err.Error()))
		return false
	}
	return true
}

// handleCreateFarmer godoc
// @Summary Register a farmer
// @Tags farmers
// @Accept json
// @Produce json
// @Param farmer body types.FarmerCreate true "Farmer"
// @Success 201 {object} types.FarmerResponse
// @Failure 400 {object} map[string]interface{}
// @Router /farmers [post]
func (a *app) handleCreateFarmer(c *gin.Context) {
	var req types.FarmerCreate
	if !bind(c, &req) {
		return
	}
	if problems := req.Validate(); problems != nil {
		apperrors.Abort(c, apperrors.NewValidationErrorWithMap(problems))
		return
	}

	farmer := req.Farmer()
	if err := a.repo.CreateFarmer(c.Request.Context(), farmer); err != nil {
		apperrors.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.FarmerResponse{Farmer: farmer})
}

// handleGetFarmer godoc
// @Summary Get a farmer with their latest score
// @Tags farmers
// @Produce json
// @Param farmer_id path string true "Farmer ID"
// @Success 200 {object} types.FarmerResponse
// @Failure 404 {object} map[string]interface{}
// @Router /farmers/{farmer_id} [get]
func (a *app) handleGetFarmer(c *gin.Context) {
	ctx := c.Request.Context()
	farmerID := c.Param("farmer_id")

	farmer, err := a.repo.GetFarmer(ctx, farmerID)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	resp := types.FarmerResponse{Farmer: farmer}
	latest, err := a.history.History(ctx, farmerID, 1)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	if len(latest) > 0 {
		resp.LatestScore = &latest[0].Score
	}

	c.JSON(http.StatusOK, resp)
}

const (
	defaultFarmerPage = 100
	maxFarmerPage     = 1000
)

// handleListFarmers godoc
// @Summary List farmers with their latest score
// @Tags farmers
// @Produce json
// @Param skip query int false "Farmers to skip" default(0)
// @Param limit query int false "Maximum farmers" default(100)
// @Success 200 {array} types.FarmerResponse
// @Failure 400 {object} map[string]interface{}
// @Router /farmers [get]
func (a *app) handleListFarmers(c *gin.Context) {
	ctx := c.Request.Context()

	problems := map[string]string{}
	skip, ok := queryInt(c, "skip", 0, 0)
	if !ok {
		problems["skip"] = "must be a non-negative integer"
	}
	limit, ok := queryInt(c, "limit", defaultFarmerPage, 1)
	if !ok {
		problems["limit"] = "must be a positive integer"
	}
	if len(problems) > 0 {
		apperrors.Abort(c, apperrors.NewValidationErrorWithMap(problems))
		return
	}
	if limit > maxFarmerPage {
		limit = maxFarmerPage
	}

	farmers, err := a.repo.ListFarmers(ctx, skip, limit)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	resp := make([]types.FarmerResponse, 0, len(farmers))
	for i := range farmers {
		item := types.FarmerResponse{Farmer: &farmers[i]}
		latest, err := a.history.History(ctx, farmers[i].FarmerID, 1)
		if err != nil {
			apperrors.Abort(c, err)
			return
		}
		if len(latest) > 0 {
			item.LatestScore = &latest[0].Score
		}
		resp = append(resp, item)
	}

	c.JSON(http.StatusOK, resp)
}

// queryInt reads an optional integer query parameter no smaller than floor
func queryInt(c *gin.Context, name string, def, floor int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < floor {
		return def, false
	}
	return n, true
}

// handleDeleteFarmer godoc
// @Summary Erase a farmer and every score recorded for them
// @Tags farmers
// @Produce json
// @Param farmer_id path string true "Farmer ID"
// @Success 200 {object} types.DeleteResponse
// @Failure 404 {object} map[string]interface{}
// @Router /farmers/{farmer_id} [delete]
func (a *app) handleDeleteFarmer(c *gin.Context) {
	farmerID := c.Param("farmer_id")

	removed, err := a.privacy.DeleteFarmerData(c.Request.Context(), farmerID)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DeleteResponse{
		FarmerID:      farmerID,
		ScoresDeleted: removed,
		Message:       "Farmer data deleted",
	})
}

// handleScore godoc
// @Summary Score a registered farmer
// @Tags scoring
// @Accept json
// @Produce json
// @Param request body types.ScoreRequest true "Score request"
// @Success 200 {object} types.ScoreResponse
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /score [post]
func (a *app) handleScore(c *gin.Context) {
	var req types.ScoreRequest
	if !bind(c, &req) {
		return
	}
	policy, err := a.policy(req.Policy)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	rec, err := a.scoreFarmer(c.Request.Context(), strings.TrimSpace(req.FarmerID), req.Features, policy)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, types.NewScoreResponse(*rec))
}

// handlePreview godoc
// @Summary Score raw features without persisting anything
// @Tags scoring
// @Accept json
// @Produce json
// @Param request body types.PreviewRequest true "Features"
// @Success 200 {object} map[string]interface{}
// @Router /score/preview [post]
func (a *app) handlePreview(c *gin.Context) {
	var req types.PreviewRequest
	if !bind(c, &req) {
		return
	}
	policy, err := a.policy(req.Policy)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	start := time.Now()
	result := a.scorer.Compute(req.Features, policy)
	a.metrics.RecordScore(string(result.ModelType), string(result.Band))
	a.logger.ScoringLogger("preview", string(result.ModelType), string(result.Band), result.Score, time.Since(start), false)

	c.JSON(http.StatusOK, result)
}

// handleHistory godoc
// @Summary Score history for a farmer, newest first
// @Tags scoring
// @Produce json
// @Param farmer_id path string true "Farmer ID"
// @Param limit query int false "Maximum records" default(10)
// @Success 200 {object} types.ScoreHistoryResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /score/{farmer_id}/history [get]
func (a *app) handleHistory(c *gin.Context) {
	ctx := c.Request.Context()
	farmerID := c.Param("farmer_id")

	limit, ok := queryInt(c, "limit", history.DefaultLimit, 1)
	if !ok {
		apperrors.Abort(c, apperrors.NewValidationErrorWithMap(map[string]string{
			"limit": "must be a positive integer",
		}))
		return
	}

	if _, err := a.repo.GetFarmer(ctx, farmerID); err != nil {
		apperrors.Abort(c, err)
		return
	}

	records, err := a.history.History(ctx, farmerID, limit)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	resp := types.ScoreHistoryResponse{FarmerID: farmerID, Scores: make([]types.ScoreResponse, 0, len(records))}
	for _, rec := range records {
		resp.Scores = append(resp.Scores, types.NewScoreResponse(rec))
	}
	c.JSON(http.StatusOK, resp)
}

// handleBatch godoc
// @Summary Submit a batch scoring job
// @Tags scoring
// @Accept json
// @Produce json
// @Param request body types.BatchScoreRequest true "Farmer IDs"
// @Success 202 {object} types.BatchScoreResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /score/batch [post]
func (a *app) handleBatch(c *gin.Context) {
	var req types.BatchScoreRequest
	if !bind(c, &req) {
		return
	}
	if err := batch.Validate(req.FarmerIDs); err != nil {
		apperrors.Abort(c, err)
		return
	}

	job, err := a.runner.Submit(c.Request.Context(), req.FarmerIDs)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	c.JSON(http.StatusAccepted, types.NewBatchScoreResponse(job))
}

// handleGetJob godoc
// @Summary Batch job status
// @Tags scoring
// @Produce json
// @Param job_id path string true "Job ID"
// @Success 200 {object} database.Job
// @Failure 404 {object} map[string]interface{}
// @Router /jobs/{job_id} [get]
func (a *app) handleGetJob(c *gin.Context) {
	job, err := a.runner.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

func jobView(job *database.Job) gin.H {
	return gin.H{
		"job_id":        job.ID,
		"job_type":      job.JobType,
		"status":        job.Status,
		"progress":      job.Progress,
		"total":         len(job.Input),
		"output_data":   job.Output,
		"error_message": job.ErrorMessage,
		"created_at":    job.CreatedAt,
		"started_at":    job.StartedAt,
		"completed_at":  job.CompletedAt,
	}
}
