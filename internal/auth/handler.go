package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carbon-scribe/verification-registry/pkg/response"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers auth routes. The group must already be guarded by RequireAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
}

// Ping endpoint
func (h *Handler) Ping(c *gin.Context) {
	response.OK(c, http.StatusOK, "auth service alive!", nil)
}

// Me returns the authenticated caller.
func (h *Handler) Me(c *gin.Context) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	response.OK(c, http.StatusOK, "", principal)
}
