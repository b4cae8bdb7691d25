package monitoring

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsPercentiles(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
	assert.Equal(t, time.Duration(0), NewMetrics().GetPercentileResponseTime(95))
}

func TestMetricsResponseSamplesBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < maxResponseSamples+50; i++ {
		m.RecordResponseTime(time.Millisecond)
	}
	assert.Len(t, m.ResponseTimes, maxResponseSamples)
}

func TestMetricsScoreDistribution(t *testing.T) {
	m := NewMetrics()
	m.RecordScore("deterministic", "medium")
	m.RecordScore("deterministic", "low")
	m.RecordScore("ml", "medium")
	m.IncrementModelFallback()

	stats := m.GetScoreStats()
	assert.Equal(t, map[string]int64{"deterministic": 2, "ml": 1}, stats["by_model_type"])
	assert.Equal(t, map[string]int64{"medium": 2, "low": 1}, stats["by_band"])
	assert.Equal(t, int64(1), stats["model_fallbacks"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelWarn)

	logger.SystemLogger("startup", "ignored at warn")
	assert.Zero(t, buf.Len())

	logger.FallbackLogger(assert.AnError)
	require.NotZero(t, buf.Len())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Model fallback", entry["msg"])
	assert.Contains(t, entry, "timestamp")

	buf.Reset()
	logger.SetLevel(slog.LevelInfo)
	logger.SystemLogger("startup", "visible")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics()
	var buf bytes.Buffer

	router := gin.New()
	router.Use(MonitoringMiddleware(metrics, NewLoggerWithWriter(&buf, slog.LevelInfo)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/ok", "/bad"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, int64(3), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, map[int]int64{200: 2, 400: 1}, metrics.GetStatusCodeDistribution())
	assert.Contains(t, buf.String(), "HTTP Request")
}
