package handlers

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axmon/axmon-backend-go/pkg/errors"
	"github.com/axmon/axmon-backend-go/pkg/utils"
)

type executeRemediationRequest struct {
	TriggerData map[string]float64 `json:"trigger_data"`
}

// ExecuteRemediation runs a remediation rule on demand. Guard skips come back
// as a normal result with the skip outcome, not as an error.
func (h *Handlers) ExecuteRemediation(c *gin.Context) {
	id := c.Param("id")

	var req executeRemediationRequest
	// An empty body means a manual run with no trigger context.
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		utils.SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	execution, err := h.remediation.Execute(c.Request.Context(), id, req.TriggerData, time.Now().UTC())
	if err != nil {
		if errors.IsNotFound(err) {
			utils.SendAppError(c, err)
			return
		}
		h.log.WithError(err).WithField("rule_id", id).Error("Failed to execute remediation")
		utils.SendError(c, http.StatusInternalServerError, "failed to execute remediation")
		return
	}

	h.metrics.RemediationsTotal.WithLabelValues(string(execution.Outcome)).Inc()

	if h.wsHub != nil {
		h.wsHub.Publish("remediation_run", execution)
	}

	utils.SendSuccess(c, execution)
}

// GetRemediationHistory returns executions newest-first. ?rule_id filters to
// one rule, ?limit caps the result.
func (h *Handlers) GetRemediationHistory(c *gin.Context) {
	ruleID := c.Query("rule_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	executions, err := h.remediation.ExecutionHistory(c.Request.Context(), ruleID, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list remediation history")
		utils.SendError(c, http.StatusInternalServerError, "failed to list remediation history")
		return
	}

	utils.SendSuccess(c, executions)
}

// GetEscalationHistory returns the escalation executions recorded for one
// alert, newest first.
func (h *Handlers) GetEscalationHistory(c *gin.Context) {
	alertID := c.Param("id")

	executions, err := h.repos.Escalations.ListForAlert(c.Request.Context(), alertID)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", alertID).Error("Failed to list escalation history")
		utils.SendError(c, http.StatusInternalServerError, "failed to list escalation history")
		return
	}

	utils.SendSuccess(c, executions)
}
