package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axmon/axmon-backend-go/internal/core/correlation"
	"github.com/axmon/axmon-backend-go/pkg/errors"
	"github.com/axmon/axmon-backend-go/pkg/utils"
)

// GetIncidents returns incidents newest-first, optionally filtered by status
// (?status=open) and limited (?limit=50). Constituent alerts are included in
// detection order.
func (h *Handlers) GetIncidents(c *gin.Context) {
	status := correlation.IncidentStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	incidents, err := h.repos.Incidents.List(c.Request.Context(), status, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list incidents")
		utils.SendError(c, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	utils.SendSuccess(c, incidents)
}

// GetIncident returns a single incident with its alerts.
func (h *Handlers) GetIncident(c *gin.Context) {
	id := c.Param("id")

	incident, err := h.repos.Incidents.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("incident_id", id).Error("Failed to load incident")
		utils.SendError(c, http.StatusInternalServerError, "failed to load incident")
		return
	}
	if incident == nil {
		utils.SendAppError(c, errors.NotFound("incident", id))
		return
	}

	utils.SendSuccess(c, incident)
}

type resolveRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// ResolveIncident resolves an incident and cascades the resolution to its
// alerts. Resolving an already resolved incident succeeds without effect.
func (h *Handlers) ResolveIncident(c *gin.Context) {
	id := c.Param("id")

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "actor is required")
		return
	}

	if err := h.correlator.Resolve(c.Request.Context(), id, req.Actor, time.Now().UTC()); err != nil {
		if errors.IsNotFound(err) {
			utils.SendAppError(c, err)
			return
		}
		h.log.WithError(err).WithField("incident_id", id).Error("Failed to resolve incident")
		utils.SendError(c, http.StatusInternalServerError, "failed to resolve incident")
		return
	}

	incident, err := h.repos.Incidents.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("incident_id", id).Error("Failed to reload incident")
		utils.SendError(c, http.StatusInternalServerError, "failed to reload incident")
		return
	}

	utils.SendSuccess(c, incident)
}
