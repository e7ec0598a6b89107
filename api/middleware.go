package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/qubird/crudo/config"
	"github.com/qubird/crudo/pkg/logger"
)

const roleKey = "crudo_role"

// RoleResolver turns a request into an opaque role string. Session or
// OAuth resolution belongs to the host application; the engine only
// needs the resulting role.
type RoleResolver func(c *gin.Context) (string, error)

// BasicAuthResolver authenticates against the two credential pairs in
// the config. It is the bundled resolver for standalone deployments.
func BasicAuthResolver(cfg config.Config) RoleResolver {
	return func(c *gin.Context) (string, error) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			return "", errors.New("missing credentials")
		}

		if secureEqual(user, cfg.AdminUser) && secureEqual(pass, cfg.AdminPassword) {
			return "admin", nil
		}
		if secureEqual(user, cfg.ViewerUser) && secureEqual(pass, cfg.ViewerPassword) {
			return "viewer", nil
		}

		return "", errors.New("invalid credentials")
	}
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AuthMiddleware resolves the role once per request and aborts with 401
// when resolution fails; the session is considered invalid.
func AuthMiddleware(resolve RoleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := resolve(c)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="crudo"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		c.Set(roleKey, role)
		c.Next()
	}
}

func roleFrom(c *gin.Context) string {
	return c.GetString(roleKey)
}

// RequestLogger tags every request with an id and logs the outcome.
func RequestLogger(log logger.LoggerI) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Header("X-Request-Id", reqID)

		c.Next()

		log.Info("http request",
			logger.String("request_id", reqID),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Any("duration", time.Since(start).String()),
		)
	}
}
