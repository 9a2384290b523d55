package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"plant-detector-go/internal/domain/auth"
	"plant-detector-go/internal/utils"
)

// ContextKeySubject holds the verified token subject on the gin context.
const ContextKeySubject = "auth.subject"

// BearerAuth rejects requests without a valid "Authorization: Bearer <jwt>" header.
func BearerAuth(token *auth.AuthToken, logger *utils.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			logger.WarnTag("Auth", "missing bearer token for %s", c.Request.URL.Path)
			AbortWithError(c, http.StatusUnauthorized, "invalid auth header format")
			return
		}

		subject, err := token.VerifyToken(strings.TrimSpace(raw))
		if err != nil {
			logger.WarnTag("Auth", "token verification failed: %v", err)
			AbortWithError(c, http.StatusUnauthorized, "token verification failed")
			return
		}

		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}

// SubjectFrom returns the authenticated subject, if any.
func SubjectFrom(c *gin.Context) string {
	return c.GetString(ContextKeySubject)
}
