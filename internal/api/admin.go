package api

import (
	"net/http"

	"membership-api/internal/middleware"
	"membership-api/internal/response"

	"github.com/gin-gonic/gin"
)

// ManualGrantRequest is an operator override.
type ManualGrantRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

// ManualGrant handles POST /api/admin/grant.
func (h *Handler) ManualGrant(c *gin.Context) {
	var req ManualGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}

	out, err := h.Admin.ManualGrant(c.Request.Context(), c.GetString(middleware.OperatorIDKey), req.UserID, req.PlanID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.MessageJSON(c, http.StatusOK, "subscription granted", out)
}

// Stats handles GET /api/admin/stats.
func (h *Handler) Stats(c *gin.Context) {
	if err := h.Admin.Authorize(c.GetString(middleware.OperatorIDKey)); err != nil {
		writeServiceError(c, err)
		return
	}
	stats, err := h.Admin.Stats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.SuccessJSON(c, stats)
}

// ListActive handles GET /api/admin/subscriptions.
func (h *Handler) ListActive(c *gin.Context) {
	if err := h.Admin.Authorize(c.GetString(middleware.OperatorIDKey)); err != nil {
		writeServiceError(c, err)
		return
	}
	subs, err := h.Admin.ListActive(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.SuccessJSON(c, gin.H{"count": len(subs), "subscriptions": subs})
}

// Sweep handles POST /api/admin/sweep for deployments driven by an external cron.
func (h *Handler) Sweep(c *gin.Context) {
	if err := h.Admin.Authorize(c.GetString(middleware.OperatorIDKey)); err != nil {
		writeServiceError(c, err)
		return
	}
	report, err := h.Admin.Sweep(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.SuccessJSON(c, report)
}
