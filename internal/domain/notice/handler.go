package notice

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"boardnotice/internal/common"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the id of the user viewing the board.
const UserIDHeader = "X-User-ID"

// viewerID reads the viewing user from UserIDHeader, or from the user_id
// query parameter for EventSource clients. Empty means no current user.
func viewerID(c *gin.Context) string {
	if id := c.GetHeader(UserIDHeader); id != "" {
		return id
	}
	return c.Query("user_id")
}

// Handler handles HTTP requests for the card limit notice.
type Handler struct {
	service  *Service
	copy     Copywriter
	renderer FragmentRenderer
	feed     ChangeFeed
}

// NewHandler creates a new notice handler.
func NewHandler(service *Service, copy Copywriter, renderer FragmentRenderer, feed ChangeFeed) *Handler {
	return &Handler{
		service:  service,
		copy:     copy,
		renderer: renderer,
		feed:     feed,
	}
}

// GetNotice handles GET /api/v1/boards/:boardID/notice
// Pass format=html to receive the rendered fragment instead of JSON, and
// track=false to poll without reporting the limit reached event.
func (h *Handler) GetNotice(c *gin.Context) {
	boardID := c.Param("boardID")
	track := c.Query("track") != "false"

	banner, err := h.service.Notice(c.Request.Context(), viewerID(c), boardID, track)
	if err != nil {
		slog.Error("evaluating notice failed", "board_id", boardID, "error", err)
		common.HandleError(c, err)
		return
	}

	resp := h.response(c.GetString("lang"), banner)

	if c.Query("format") == "html" {
		if !resp.Visible {
			c.Status(http.StatusNoContent)
			return
		}
		html, err := h.renderer.RenderBanner(resp.Banner)
		if err != nil {
			slog.Error("rendering notice failed", "board_id", boardID, "error", err)
			common.HandleError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// Stream handles GET /api/v1/boards/:boardID/notice/stream
// The gate stays mounted for the lifetime of the connection and a "notice"
// event is sent whenever the visible banner changes.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	userID := viewerID(c)
	boardID := c.Param("boardID")
	lang := c.GetString("lang")

	gate := h.service.OpenGate(userID, boardID, nil)
	defer gate.Close()

	changes, release, err := h.feed.Subscribe(ctx, userID, boardID)
	if err != nil {
		slog.Error("subscribing to notice changes failed", "board_id", boardID, "error", err)
		common.HandleError(c, err)
		return
	}
	defer release()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	var last string
	push := func() bool {
		banner, err := gate.Evaluate(ctx)
		if err != nil {
			if errors.Is(err, ErrGateClosed) {
				return false
			}
			slog.Warn("re-evaluating notice failed", "board_id", boardID, "error", err)
			return true
		}

		resp := h.response(lang, banner)
		payload, err := json.Marshal(resp)
		if err != nil || string(payload) == last {
			return true
		}
		last = string(payload)

		c.SSEvent("notice", resp)
		c.Writer.Flush()
		return true
	}

	if !push() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-gate.Changes():
			if !ok || !push() {
				return
			}
		case change, ok := <-changes:
			if !ok {
				return
			}
			switch change.Type {
			case ChangeDismissed:
				gate.Suppress(change.Kind)
			case ChangeRestored:
				gate.Restore(change.Kind)
				// The client may have hidden the banner locally.
				last = ""
			}
			if !push() {
				return
			}
		}
	}
}

// Dismiss handles POST /api/v1/boards/:boardID/notice/dismiss
// The closed kind comes from the JSON body or the kind query parameter.
func (h *Handler) Dismiss(c *gin.Context) {
	var req DismissRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Kind == "" {
		req.Kind = c.Query("kind")
	}

	kind, err := h.service.Dismiss(c.Request.Context(), viewerID(c), c.Param("boardID"), req.Kind)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusAccepted, DismissResponse{Dismissed: kind})
}

// Upgrade handles POST /api/v1/boards/:boardID/notice/upgrade
func (h *Handler) Upgrade(c *gin.Context) {
	resp, err := h.service.Upgrade(c.Request.Context(), viewerID(c), c.Param("boardID"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// SetVisibility handles PUT /api/v1/boards/:boardID/visibility
// Called by the board engine whenever the hidden card values change.
func (h *Handler) SetVisibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.service.SetVisibility(c.Request.Context(), c.Param("boardID"), &req); err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{"status": "updated"})
}

// RegisterRoutes registers notice routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	boards := rg.Group("/boards/:boardID")
	boards.GET("/notice", h.GetNotice)
	boards.GET("/notice/stream", h.Stream)
	boards.POST("/notice/dismiss", h.Dismiss)
	boards.POST("/notice/upgrade", h.Upgrade)
	boards.PUT("/visibility", h.SetVisibility)
}

func (h *Handler) response(lang string, banner *Banner) *NoticeResponse {
	if banner == nil {
		return &NoticeResponse{Visible: false}
	}
	return &NoticeResponse{Visible: true, Banner: h.copy.Copy(lang, banner)}
}
