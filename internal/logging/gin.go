package logging

import (
	"time"

	"github.com/dinepoint/dinepoint/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
)

// SetGinRequestID stores the request id on the gin context.
func SetGinRequestID(c *gin.Context, id string) {
	if c == nil || id == "" {
		return
	}
	c.Set(requestIDKey, id)
}

// GinRequestID returns the request id stored on the gin context.
func GinRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

// WithRequest returns a log entry annotated with the request id.
func WithRequest(c *gin.Context) *log.Entry {
	return log.WithField("request_id", GinRequestID(c))
}

// GinLogger assigns each request an id (honouring an incoming X-Request-ID)
// and logs one line per request once it completes.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		SetGinRequestID(c, id)
		c.Header(requestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		entry := WithRequest(c).WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"query":   util.MaskSensitiveQuery(c.Request.URL.RawQuery),
			"status":  status,
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}
