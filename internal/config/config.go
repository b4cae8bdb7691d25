package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

// Config is the process configuration, read from the environment
type Config struct {
	Port        string
	DataDir     string
	Environment string
	LogLevel    string

	ModelPath  string
	UseMLModel bool

	CORSOrigins    []string
	RequestTimeout time.Duration
	EnableHSTS     bool

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RateLimitPerMin int

	BatchWorkers    int
	HistoryCacheTTL time.Duration
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit .env location. A missing file is not an error.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.NewConfigurationError("failed to read "+envFile, err)
			}
		}
	}

	p := &parser{}
	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		DataDir:         getEnv("DATA_DIR", "./data"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ModelPath:       getEnv("MODEL_PATH", ""),
		UseMLModel:      p.bool("USE_ML_MODEL", true),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8000")),
		RequestTimeout:  p.duration("REQUEST_TIMEOUT", 30*time.Second),
		EnableHSTS:      p.bool("ENABLE_HSTS", false),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         p.int("REDIS_DB", 0),
		RateLimitPerMin: p.int("RATE_LIMIT_PER_MIN", 60),
		BatchWorkers:    p.int("BATCH_WORKERS", 4),
		HistoryCacheTTL: p.duration("HISTORY_CACHE_TTL", 5*time.Minute),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	problems := map[string]string{}
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		problems["PORT"] = "must be a TCP port number"
	}
	if c.RateLimitPerMin <= 0 {
		problems["RATE_LIMIT_PER_MIN"] = "must be positive"
	}
	if c.BatchWorkers <= 0 {
		problems["BATCH_WORKERS"] = "must be positive"
	}
	if c.RequestTimeout <= 0 {
		problems["REQUEST_TIMEOUT"] = "must be positive"
	}
	if c.HistoryCacheTTL < 0 {
		problems["HISTORY_CACHE_TTL"] = "must not be negative"
	}
	if len(problems) > 0 {
		return errors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// Policy derives the scoring policy from USE_ML_MODEL
func (c *Config) Policy() scoring.Policy {
	if c.UseMLModel {
		return scoring.PolicyPreferModel
	}
	return scoring.PolicyDeterministicOnly
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser keeps the first conversion error so Load reports it once
type parser struct {
	err error
}

func (p *parser) fail(key, value string, cause error) {
	if p.err == nil {
		p.err = errors.NewConfigurationError(fmt.Sprintf("invalid %s=%q", key, value), cause)
	}
}

func (p *parser) int(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
