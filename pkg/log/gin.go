package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware attaches a request-scoped logger to the request context and
// logs one line per completed request. Handlers that resolve a room or user
// c.Set them under FieldRoomID / FieldUserID to have them logged.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := requestID(c.GetHeader(headerRequestID))
		child := requestLogger(logger, reqID, c.Request.Method, c.Request.URL.Path, c.ClientIP())

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		evt := completed(child, c.Writer.Status(), start)
		if userID := c.GetString(FieldUserID); userID != "" {
			evt = evt.Str(FieldUserID, userID)
		}
		if roomID := c.GetString(FieldRoomID); roomID != "" {
			evt = evt.Str(FieldRoomID, roomID)
		}
		evt.Msg("request completed")
	}
}

func requestLogger(logger zerolog.Logger, reqID, method, path, ip string) zerolog.Logger {
	return logger.With().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, method).
		Str(FieldPath, path).
		Str(FieldClientIP, ip).
		Logger()
}

// completed starts the per-request summary line. 5xx responses log at warn.
func completed(l zerolog.Logger, status int, start time.Time) *zerolog.Event {
	evt := l.Info()
	if status >= 500 {
		evt = l.Warn()
	}
	return evt.Int(FieldStatus, status).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
}

func requestID(header string) string {
	if header != "" {
		return header
	}
	return uuid.NewString()
}
