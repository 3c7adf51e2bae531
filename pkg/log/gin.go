package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerRequestID   = "X-Request-ID"
	headerCloudEvent  = "Ce-Id"
	fieldCloudEventID = "ce_id"
)

// RequestID returns the request id assigned by GinMiddleware, or "" if the
// middleware is not installed.
func RequestID(c *gin.Context) string {
	return c.GetString(FieldRequestID)
}

// GinMiddleware returns a Gin middleware that:
//  1. Reads the request ID from X-Request-ID, falling back to the CloudEvent
//     id header and then a fresh UUID.
//  2. Injects a child logger with request metadata into the request context.
//  3. Logs the completed request; 5xx responses are logged at error level.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ceID := c.GetHeader(headerCloudEvent)
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = ceID
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}

		ctxBuilder := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP())
		if ceID != "" {
			ctxBuilder = ctxBuilder.Str(fieldCloudEventID, ceID)
		}
		child := ctxBuilder.Logger()

		c.Set(FieldRequestID, reqID)
		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		evt := child.Info()
		if status >= 500 {
			evt = child.Error()
		}
		evt.Int(FieldStatus, status).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
			Msg("request completed")
	}
}
