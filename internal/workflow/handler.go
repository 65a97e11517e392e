package workflow

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/pkg/response"
)

// Handler handles HTTP requests for workflow commands and stage queries
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a new workflow handler
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes registers workflow routes on an authenticated group
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	workflow := router.Group("/workflow")
	{
		commands := workflow.Group("/projects/:id")
		commands.POST("/approve-land", h.approveLand)
		commands.POST("/assign-ngo", h.assignNGO)
		commands.POST("/approve-ngo-report", h.approveNGOReport)
		commands.POST("/assign-drone", h.assignDrone)
		commands.POST("/approve-drone-survey", h.approveDroneSurvey)
		commands.POST("/final-approve", h.finalApprove)
		commands.POST("/reject", h.reject)
		commands.POST("/redo", h.redo)

		workflow.GET("/overview", h.overview)
		workflow.GET("/stages/:stage/projects", h.stageProjects)
		workflow.POST("/reconcile", auth.RequireRole(auth.RoleAdmin), h.reconcile)
	}
}

type messageBody struct {
	Message string `json:"message"`
}

type assignBody struct {
	AssigneeID string `json:"assigneeId"`
	Message    string `json:"message"`
}

type finalApproveBody struct {
	CarbonCredits *float64 `json:"carbonCredits"`
	Message       string   `json:"message"`
}

type redoBody struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// bind decodes an optional JSON body; an empty body leaves dst zeroed.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.Fail(c, http.StatusBadRequest, string(KindValidation), "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, result *Result, err error) {
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, http.StatusOK, "project moved to "+string(result.To), result)
}

// approveLand handles POST /workflow/projects/:id/approve-land
func (h *Handler) approveLand(c *gin.Context) {
	var body messageBody
	if !bind(c, &body) {
		return
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.ApproveLand(c.Request.Context(), caller, TransitionRequest{ProjectID: c.Param("id"), Message: body.Message})
	h.respond(c, result, err)
}

// assignNGO handles POST /workflow/projects/:id/assign-ngo. The NGO user id
// is sent and stored as assigneeId on the ngoVerification.assigned entry.
func (h *Handler) assignNGO(c *gin.Context) {
	var body assignBody
	if !bind(c, &body) {
		return
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.AssignNGO(c.Request.Context(), caller, AssignRequest{ProjectID: c.Param("id"), AssigneeID: body.AssigneeID, Message: body.Message})
	h.respond(c, result, err)
}

// approveNGOReport handles POST /workflow/projects/:id/approve-ngo-report
func (h *Handler) approveNGOReport(c *gin.Context) {
	var body messageBody
	if !bind(c, &body) {
		return
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.ApproveNGOReport(c.Request.Context(), caller, TransitionRequest{ProjectID: c.Param("id"), Message: body.Message})
	h.respond(c, result, err)
}

// assignDrone handles POST /workflow/projects/:id/assign-drone. The drone
// operator's user id is stored as assigneeId on the droneVerification.assigned
// entry.
func (h *Handler) assignDrone(c *gin.Context) {
	var body assignBody
	if !bind(c, &body) {
		return
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.AssignDrone(c.Request.Context(), caller, AssignRequest{ProjectID: c.Param("id"), AssigneeID: body.AssigneeID, Message: body.Message})
	h.respond(c, result, err)
}

// approveDroneSurvey handles POST /workflow/projects/:id/approve-drone-survey
func (h *Handler) approveDroneSurvey(c *gin.Context) {
	var body messageBody
	if !bind(c, &body) {
		return
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.ApproveDroneSurvey(c.Request.Context(), caller, TransitionRequest{ProjectID: c.Param("id"), Message: body.Message})
	h.respond(c, result, err)
}

// finalApprove handles POST /workflow/projects/:id/final-approve
func (h *Handler) finalApprove(c *gin.Context) {
	var body finalApproveBody
	if !bind(c, &body) {
		return
	}
	req := FinalApproveRequest{ProjectID: c.Param("id"), Message: body.Message}
	if body.CarbonCredits != nil {
		req.CarbonCredits = *body.CarbonCredits
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.FinalApprove(c.Request.Context(), caller, req)
	h.respond(c, result, err)
}

// reject handles POST /workflow/projects/:id/reject
func (h *Handler) reject(c *gin.Context) {
	var body messageBody
	if !bind(c, &body) {
		return
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.Reject(c.Request.Context(), caller, RejectRequest{ProjectID: c.Param("id"), Message: body.Message})
	h.respond(c, result, err)
}

// redo handles POST /workflow/projects/:id/redo
func (h *Handler) redo(c *gin.Context) {
	var body redoBody
	if !bind(c, &body) {
		return
	}
	target := Queue(strings.TrimSpace(body.Target))
	if q, err := ParseQueue(body.Target); err == nil {
		target = q
	}
	caller, _ := auth.PrincipalFrom(c)
	result, err := h.engine.Redo(c.Request.Context(), caller, RedoRequest{ProjectID: c.Param("id"), Target: target, Message: body.Message})
	h.respond(c, result, err)
}

// overview handles GET /workflow/overview
func (h *Handler) overview(c *gin.Context) {
	overview, err := h.engine.Overview(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build workflow overview", zap.Error(err))
		response.Err(c, err)
		return
	}
	response.OK(c, http.StatusOK, "workflow overview", overview)
}

// stageProjects handles GET /workflow/stages/:stage/projects
func (h *Handler) stageProjects(c *gin.Context) {
	q, err := ParseQueue(c.Param("stage"))
	if err != nil {
		response.Err(c, err)
		return
	}
	list, err := h.engine.ProjectsInStage(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("Failed to list stage projects", zap.String("stage", string(q)), zap.Error(err))
		response.Err(c, err)
		return
	}
	response.OK(c, http.StatusOK, "projects in "+string(q), list)
}

// reconcile handles POST /workflow/reconcile
func (h *Handler) reconcile(c *gin.Context) {
	report, err := h.engine.Reconcile(c.Request.Context())
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, http.StatusOK, "reconciliation completed", report)
}
