package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GinMiddleware returns a Gin middleware that reads or generates the
// X-Request-ID, injects a request-scoped child logger into the context and
// logs the completed request with the actor set by the auth middleware.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}

		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		evt := child.Debug().
			Int(FieldStatus, c.Writer.Status()).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds()))

		if email, ok := c.Get(FieldEmail); ok {
			evt = evt.Str(FieldEmail, email.(string))
		}
		if role, ok := c.Get(FieldRole); ok {
			evt = evt.Str(FieldRole, role.(string))
		}

		evt.Msg("request served")
	}
}
