package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/pkg/errors"
	"github.com/axmon/axmon-backend-go/pkg/utils"
)

// GetAlerts returns alerts newest-first, optionally filtered by status
// (?status=active) and limited (?limit=50).
func (h *Handlers) GetAlerts(c *gin.Context) {
	status := alerting.AlertStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	alerts, err := h.repos.Alerts.List(c.Request.Context(), status, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list alerts")
		utils.SendError(c, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	utils.SendSuccess(c, alerts)
}

// GetAlert returns a single alert by ID.
func (h *Handlers) GetAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.repos.Alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to load alert")
		utils.SendError(c, http.StatusInternalServerError, "failed to load alert")
		return
	}
	if alert == nil {
		utils.SendAppError(c, errors.NotFound("alert", id))
		return
	}

	utils.SendSuccess(c, alert)
}

type acknowledgeRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// AcknowledgeAlert transitions an alert from Active to Acknowledged. The
// transition is rejected for resolved alerts and for alerts already
// acknowledged by someone else; re-acknowledging by the same actor succeeds
// without changing anything.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")

	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "actor is required")
		return
	}

	ok, err := h.correlator.Acknowledge(c.Request.Context(), id, req.Actor, time.Now().UTC())
	if err != nil {
		if errors.IsNotFound(err) {
			utils.SendAppError(c, err)
			return
		}
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to acknowledge alert")
		utils.SendError(c, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}
	if !ok {
		utils.SendError(c, http.StatusConflict, "alert cannot be acknowledged in its current state")
		return
	}

	alert, err := h.repos.Alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to reload alert")
		utils.SendError(c, http.StatusInternalServerError, "failed to reload alert")
		return
	}

	utils.SendSuccess(c, alert)
}

// DeleteAlert soft-deletes an alert. The row is retained for incident history
// but disappears from every listing.
func (h *Handlers) DeleteAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.repos.Alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to load alert")
		utils.SendError(c, http.StatusInternalServerError, "failed to load alert")
		return
	}
	if alert == nil {
		utils.SendAppError(c, errors.NotFound("alert", id))
		return
	}

	if err := h.repos.Alerts.SoftDelete(c.Request.Context(), id); err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to delete alert")
		utils.SendError(c, http.StatusInternalServerError, "failed to delete alert")
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": id})
}
