package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestLogger tags every request with an id and logs it once it returns.
// A call socket returns when the call hangs up, so it is logged as a call
// with its duration rather than as a slow request.
func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Set("request_id", reqID)

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		userID, _ := c.Get("user_id")

		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     status,
			"ip":         c.ClientIP(),
			"user_id":    userID,
		}
		if sid := c.Param("session_id"); sid != "" {
			fields["session_id"] = sid
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		ws := c.IsWebsocket() && status < http.StatusBadRequest
		if ws {
			fields["call_seconds"] = int64(elapsed.Seconds())
		} else {
			fields["latency_ms"] = elapsed.Milliseconds()
		}
		entry := l.WithFields(fields)

		switch {
		case ws:
			entry.Info("call socket closed")
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		case c.FullPath() == "/ping":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
