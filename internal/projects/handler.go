package projects

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/pkg/response"
)

// Registrar enters a new project into the verification workflow.
type Registrar interface {
	Register(ctx context.Context, caller auth.Principal, req RegisterRequest) (*Project, error)
}

// Reader serves project records with their status reconciled against the workflow.
type Reader interface {
	Project(ctx context.Context, id string) (*Project, error)
	History(ctx context.Context, id string) ([]*StatusHistory, error)
	ListProjects(ctx context.Context, filter Filter) ([]*Project, error)
}

// Handler handles HTTP requests for project registration and lookup
type Handler struct {
	registrar Registrar
	reader    Reader
	logger    *zap.Logger
}

// NewHandler creates a new projects handler
func NewHandler(registrar Registrar, reader Reader, logger *zap.Logger) *Handler {
	return &Handler{
		registrar: registrar,
		reader:    reader,
		logger:    logger,
	}
}

// RegisterRoutes registers project routes on an authenticated group
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/projects")
	{
		projects.POST("", h.register)
		projects.GET("", h.list)
		projects.GET("/:id", h.get)
		projects.GET("/:id/history", h.history)
	}
}

// register handles POST /api/v1/projects
func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	caller, _ := auth.PrincipalFrom(c)
	project, err := h.registrar.Register(c.Request.Context(), caller, req)
	if err != nil {
		h.logger.Warn("Failed to register project", zap.Error(err), zap.String("owner_id", caller.UserID))
		response.Err(c, err)
		return
	}

	response.OK(c, http.StatusCreated, "project registered", project)
}

// list handles GET /api/v1/projects. Non-admin callers only see their own projects.
func (h *Handler) list(c *gin.Context) {
	caller, _ := auth.PrincipalFrom(c)

	filter := Filter{
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if status := c.Query("status"); status != "" {
		s := VerificationStatus(status)
		filter.Status = &s
	}
	if caller.IsAdmin() {
		filter.OwnerID = c.Query("owner")
	} else {
		filter.OwnerID = caller.UserID
	}

	list, err := h.reader.ListProjects(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list projects", zap.Error(err))
		response.Err(c, err)
		return
	}

	response.OK(c, http.StatusOK, "", list)
}

// get handles GET /api/v1/projects/:id
func (h *Handler) get(c *gin.Context) {
	project, ok := h.loadVisible(c)
	if !ok {
		return
	}
	response.OK(c, http.StatusOK, "", project)
}

// history handles GET /api/v1/projects/:id/history
func (h *Handler) history(c *gin.Context) {
	project, ok := h.loadVisible(c)
	if !ok {
		return
	}

	entries, err := h.reader.History(c.Request.Context(), project.ID)
	if err != nil {
		h.logger.Error("Failed to load project history", zap.Error(err), zap.String("project_id", project.ID))
		response.Err(c, err)
		return
	}

	response.OK(c, http.StatusOK, "", entries)
}

func (h *Handler) loadVisible(c *gin.Context) (*Project, bool) {
	caller, _ := auth.PrincipalFrom(c)

	project, err := h.reader.Project(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Err(c, err)
		return nil, false
	}
	if !caller.IsAdmin() && project.OwnerID != caller.UserID {
		// Do not reveal other developers' projects.
		response.Fail(c, http.StatusNotFound, "NotFound", ErrNotFound.Error())
		return nil, false
	}
	return project, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
