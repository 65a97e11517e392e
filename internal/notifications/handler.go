package notifications

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/notifications/websocket"
	"carbon-scribe/verification-registry/pkg/response"
)

// Handler serves the live workflow feed
type Handler struct {
	manager *websocket.Manager
	logger  *zap.Logger
}

// NewHandler creates a new notifications handler
func NewHandler(manager *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// RegisterRoutes registers the feed route on an authenticated group
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/workflow/feed", auth.RequireRole(auth.RoleAdmin), h.feed)
}

// feed handles GET /workflow/feed
func (h *Handler) feed(c *gin.Context) {
	caller, ok := auth.PrincipalFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	conn, err := h.manager.HandleConnection(c.Writer, c.Request, caller.UserID)
	if err != nil {
		// The upgrader has already answered the request.
		h.logger.Warn("Failed to open workflow feed", zap.String("user_id", caller.UserID), zap.Error(err))
		return
	}
	h.logger.Info("Workflow feed opened", zap.String("connection_id", conn.ID), zap.String("user_id", caller.UserID))
}
