package assignees

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/pkg/response"
)

// Service is the directory surface the handler needs
type Service interface {
	List(ctx context.Context, kind Kind, activeOnly bool) ([]*Assignee, error)
	Register(ctx context.Context, assignee *Assignee) error
}

// Handler handles HTTP requests for the assignee directory
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new assignee handler
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers assignee routes on an admin-only group
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	assignees := router.Group("/assignees")
	{
		assignees.GET("", h.list)
		assignees.POST("", auth.RequireRole(auth.RoleAdmin), h.register)
	}
}

// list handles GET /assignees?kind=ngo|drone&active=true
func (h *Handler) list(c *gin.Context) {
	kind := Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		response.Fail(c, http.StatusBadRequest, "ValidationError", "kind must be ngo or drone")
		return
	}
	activeOnly := true
	if v := c.Query("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, "ValidationError", "active must be a boolean")
			return
		}
		activeOnly = parsed
	}

	list, err := h.service.List(c.Request.Context(), kind, activeOnly)
	if err != nil {
		h.logger.Error("Failed to list assignees", zap.Error(err))
		response.Err(c, err)
		return
	}
	if list == nil {
		list = []*Assignee{}
	}
	response.OK(c, http.StatusOK, "assignees retrieved", list)
}

// register handles POST /assignees
func (h *Handler) register(c *gin.Context) {
	var req Assignee
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}
	if err := h.service.Register(c.Request.Context(), &req); err != nil {
		if errors.Is(err, ErrInvalid) {
			response.Fail(c, http.StatusBadRequest, "ValidationError", err.Error())
			return
		}
		h.logger.Error("Failed to register assignee", zap.Error(err))
		response.Err(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "assignee registered", req)
}
