package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	ModelFallbacks      int64
	BatchJobsSubmitted  int64
	BatchJobsFailed     int64
	AverageResponseTime int64 // nanoseconds
	StartTime           time.Time

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	// score counts keyed by model_type, band counts keyed by score_band
	ScoresByModelType map[string]int64
	ScoresByBand      map[string]int64
	ScoreMutex        sync.RWMutex

	RateLimitIPBlocks       int64
	RateLimitEndpointBlocks int64
	RateLimitRedisErrors    int64
	RateLimitFallbackCount  int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, maxResponseSamples),
		RequestCountByStatus: make(map[int]int64),
		ScoresByModelType:    make(map[string]int64),
		ScoresByBand:         make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncrementModelFallback counts a prefer_model request served deterministically
func (m *Metrics) IncrementModelFallback() {
	atomic.AddInt64(&m.ModelFallbacks, 1)
}

// IncrementBatchSubmitted counts accepted batch jobs
func (m *Metrics) IncrementBatchSubmitted() {
	atomic.AddInt64(&m.BatchJobsSubmitted, 1)
}

// IncrementBatchFailed counts batch jobs that ended in failure
func (m *Metrics) IncrementBatchFailed() {
	atomic.AddInt64(&m.BatchJobsFailed, 1)
}

// RecordScore tracks the distribution of served scores
func (m *Metrics) RecordScore(modelType, band string) {
	m.ScoreMutex.Lock()
	defer m.ScoreMutex.Unlock()
	m.ScoresByModelType[modelType]++
	m.ScoresByBand[band]++
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	atomic.StoreInt64(&m.AverageResponseTime, (current+duration.Nanoseconds())/2)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > maxResponseSamples {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	m.ResponseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetScoreStats returns copies of the score distributions
func (m *Metrics) GetScoreStats() map[string]interface{} {
	m.ScoreMutex.RLock()
	defer m.ScoreMutex.RUnlock()

	byType := make(map[string]int64, len(m.ScoresByModelType))
	for k, v := range m.ScoresByModelType {
		byType[k] = v
	}
	byBand := make(map[string]int64, len(m.ScoresByBand))
	for k, v := range m.ScoresByBand {
		byBand[k] = v
	}

	return map[string]interface{}{
		"by_model_type":   byType,
		"by_band":         byBand,
		"model_fallbacks": atomic.LoadInt64(&m.ModelFallbacks),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":           time.Since(m.StartTime).Seconds(),
		"total_requests":           requests,
		"error_count":              errors,
		"error_rate_percent":       errorRate,
		"cache_hits":               cacheHits,
		"cache_misses":             cacheMisses,
		"cache_hit_rate_percent":   cacheHitRate,
		"avg_response_time_ms":     float64(avgResponseTime) / 1e6,
		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"scores":                   m.GetScoreStats(),
		"batch_jobs_submitted":     atomic.LoadInt64(&m.BatchJobsSubmitted),
		"batch_jobs_failed":        atomic.LoadInt64(&m.BatchJobsFailed),
		"rate_limit":               m.GetRateLimitStats(),
		"start_time":               m.StartTime.Format(time.RFC3339),
	}
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitEndpointBlock increments per-endpoint rate limit blocks
func (m *Metrics) IncrementRateLimitEndpointBlock() {
	atomic.AddInt64(&m.RateLimitEndpointBlocks, 1)
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"ip_blocks":       atomic.LoadInt64(&m.RateLimitIPBlocks),
		"endpoint_blocks": atomic.LoadInt64(&m.RateLimitEndpointBlocks),
		"redis_errors":    atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count":  atomic.LoadInt64(&m.RateLimitFallbackCount),
	}
}
