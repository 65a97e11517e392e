package reports

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/pkg/response"
)

var contentTypes = map[Format]string{
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatCSV:  "text/csv",
}

// Handler handles HTTP requests for workflow reports
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers report routes on an admin group
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	{
		reports.GET("/workflow", h.exportWorkflow)
	}
}

// exportWorkflow handles GET /reports/workflow?format=xlsx|csv
func (h *Handler) exportWorkflow(c *gin.Context) {
	format := Format(strings.ToLower(c.DefaultQuery("format", string(FormatXLSX))))
	contentType, ok := contentTypes[format]
	if !ok {
		response.Fail(c, http.StatusBadRequest, "ValidationError", "format must be xlsx or csv")
		return
	}

	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), format, &buf); err != nil {
		h.logger.Error("Failed to export workflow report", zap.Error(err))
		response.Err(c, err)
		return
	}

	filename := fmt.Sprintf("workflow-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
