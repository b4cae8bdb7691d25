package security

import (
	"context"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
)

// Config holds security configuration
type Config struct {
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	EnableHSTS     bool          `json:"enable_hsts"`
	// paths served to browsers get a CSP that allows the swagger UI assets
	DocsPrefix string `json:"docs_prefix"`
}

// DefaultConfig returns secure defaults. 1 MiB fits a 1000-farmer batch.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
		DocsPrefix:     "/swagger",
	}
}

// Middleware bundles the request hardening applied to every route
type Middleware struct {
	config Config
}

// NewMiddleware creates a security middleware instance
func NewMiddleware(config Config) *Middleware {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Middleware{config: config}
}

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"
)

// Headers adds security headers to responses
func (m *Middleware) Headers(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	if m.config.DocsPrefix != "" && strings.HasPrefix(c.Request.URL.Path, m.config.DocsPrefix) {
		c.Header("Content-Security-Policy", docsCSP)
	} else {
		c.Header("Content-Security-Policy", apiCSP)
	}

	if m.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// ValidateContentType requires JSON on requests that carry a body
func (m *Middleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 || c.Request.Method == http.MethodGet {
		c.Next()
		return
	}

	contentType := c.GetHeader("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		apperrors.Abort(c, apperrors.NewUnsupportedMediaTypeError(contentType))
		return
	}

	c.Next()
}

// LimitBody caps the bytes a handler may read from the request body
func (m *Middleware) LimitBody(c *gin.Context) {
	if c.Request.ContentLength > m.config.MaxBodyBytes {
		apperrors.Abort(c, apperrors.NewValidationError("Request body too large",
			strconv.FormatInt(m.config.MaxBodyBytes, 10)+" bytes maximum"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.config.MaxBodyBytes)
	c.Next()
}

// RequestTimeout bounds the request context
func (m *Middleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), m.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(m.config.RequestTimeout.Seconds())))

	c.Next()
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeText strips markup and control characters from free text such as
// names and village names, and collapses whitespace
func SanitizeText(input string) string {
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	input = whitespacePattern.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}
