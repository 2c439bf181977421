package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorLogger logs failed requests and recovers from panics.
func ErrorLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				logRequestError(c, log, start, "panic", err).
					WithField("stack", string(debug.Stack())).
					Error("request panicked")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INTERNAL_SERVER_ERROR",
						"message": "Internal Server Error",
					},
				})
				return
			}

			if len(c.Errors) == 0 {
				if c.Writer.Status() >= http.StatusInternalServerError {
					logRequestError(c, log, start, "http_error", fmt.Errorf("status=%d", c.Writer.Status())).Error("request failed")
				}
				return
			}

			for _, err := range c.Errors {
				entry := logRequestError(c, log, start, fmt.Sprintf("%v", err.Type), err.Err)
				if err.Meta != nil {
					entry = entry.WithField("meta", err.Meta)
				}
				if c.Writer.Status() >= http.StatusInternalServerError {
					entry.Error("request failed")
				} else {
					entry.Warn("request failed")
				}
			}
		}()

		c.Next()
	}
}

func logRequestError(c *gin.Context, log logrus.FieldLogger, start time.Time, errType string, err error) logrus.FieldLogger {
	fields := logrus.Fields{
		"type":       errType,
		"status":     c.Writer.Status(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"query":      c.Request.URL.RawQuery,
		"client_ip":  c.ClientIP(),
		"role":       c.GetString(ContextRole),
		"request_id": RequestIDFrom(c),
		"latency":    time.Since(start).String(),
	}
	if userID, ok := CurrentUser(c); ok {
		fields["user_id"] = userID.String()
	}
	return log.WithFields(fields).WithError(err)
}
