package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/pkg/response"
)

const principalContextKey = "principal"

// RequireAuth validates the bearer token and stores the caller's principal
// on both the gin context and the request context.
func RequireAuth(validator TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			logger.Warn("Unauthorized access - missing token", zap.String("path", c.FullPath()))
			response.Abort(c, http.StatusUnauthorized, "Unauthorized", "missing or invalid Authorization header")
			return
		}

		principal, err := validator.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			logger.Warn("Unauthorized access - invalid token", zap.Error(err), zap.String("path", c.FullPath()))
			response.Abort(c, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}

		c.Set(principalContextKey, *principal)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), *principal))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		for _, role := range roles {
			if strings.EqualFold(principal.Role, role) {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, "Unauthorized", "role "+principal.Role+" may not perform this operation")
	}
}

// PrincipalFrom returns the principal set by RequireAuth.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
