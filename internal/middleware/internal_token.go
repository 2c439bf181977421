package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// InternalTokenAuth protects server-to-server endpoints with a static bearer
// token checked against a bcrypt hash.
func InternalTokenAuth(tokenHash string, log logrus.FieldLogger) gin.HandlerFunc {
	hash := []byte(strings.TrimSpace(tokenHash))
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logAuthFailure(c, log, http.StatusUnauthorized, "missing_auth")
			writeInternalError(c, http.StatusUnauthorized, "AUTH_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logAuthFailure(c, log, http.StatusUnauthorized, "invalid_auth_format")
			writeInternalError(c, http.StatusUnauthorized, "AUTH_INVALID", "Authorization header must be 'Bearer <token>'")
			return
		}

		if len(hash) == 0 {
			logAuthFailure(c, log, http.StatusInternalServerError, "token_not_configured")
			writeInternalError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal token is not configured")
			return
		}

		if err := bcrypt.CompareHashAndPassword(hash, []byte(parts[1])); err != nil {
			logAuthFailure(c, log, http.StatusForbidden, "invalid_token")
			writeInternalError(c, http.StatusForbidden, "AUTH_INVALID", "Invalid internal token")
			return
		}

		c.Next()
	}
}

func writeInternalError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func logAuthFailure(c *gin.Context, log logrus.FieldLogger, status int, reason string) {
	log.WithFields(logrus.Fields{
		"status":     status,
		"request_id": RequestIDFrom(c),
		"path":       c.Request.URL.Path,
		"client_ip":  c.ClientIP(),
		"reason":     reason,
	}).Warn("internal auth rejected")
}
