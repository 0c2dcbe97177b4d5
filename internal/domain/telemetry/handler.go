package telemetry

import (
	"net/http"

	"boardnotice/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for recorded telemetry.
type Handler struct {
	service *Service
}

// NewHandler creates a new telemetry handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetEvent handles GET /api/v1/telemetry/events/:id
func (h *Handler) GetEvent(c *gin.Context) {
	ev, err := h.service.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, ev)
}

// ListEvents handles GET /api/v1/telemetry/events
func (h *Handler) ListEvents(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.ListEvents(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// RegisterRoutes registers telemetry routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/telemetry/events", h.ListEvents)
	rg.GET("/telemetry/events/:id", h.GetEvent)
}
