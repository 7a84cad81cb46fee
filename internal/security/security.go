package security

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/posture-risk/internal/errors"
)

// Config holds request hardening limits
type Config struct {
	// MaxBodyBytes bounds request bodies; a batch of MoveNet tensors is a few
	// kilobytes each.
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	EnableHSTS     bool
}

// DefaultConfig returns secure defaults
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   4 << 20,
		RequestTimeout: 30 * time.Second,
	}
}

// BodyLimit caps the request body at MaxBodyBytes. Reads beyond the cap fail,
// which the JSON binding reports as a validation error.
func (cfg Config) BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > cfg.MaxBodyBytes {
			_ = c.Error(apperrors.NewValidationError(
				"request body too large",
				fmt.Sprintf("limit is %d bytes", cfg.MaxBodyBytes),
			))
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodyBytes)
		}
		c.Next()
	}
}

// RequireJSON rejects POST bodies that declare a non-JSON content type
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		contentType := c.GetHeader("Content-Type")
		if contentType != "" {
			mediaType, _, err := mime.ParseMediaType(contentType)
			if err != nil || mediaType != "application/json" {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"error": "unsupported content type, expected application/json",
				})
				return
			}
		}

		c.Next()
	}
}

// Timeout attaches a deadline to the request context
func (cfg Config) Timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(cfg.RequestTimeout.Seconds())))

		c.Next()
	}
}
