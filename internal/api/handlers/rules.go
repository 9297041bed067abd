package handlers

import (
	"database/sql"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/pkg/errors"
	"github.com/axmon/axmon-backend-go/pkg/utils"
)

// GetRules returns all rules, optionally filtered by kind (?kind=correlation).
func (h *Handlers) GetRules(c *gin.Context) {
	kind := alerting.RuleKind(c.Query("kind"))

	rules, err := h.repos.Rules.List(c.Request.Context(), kind)
	if err != nil {
		h.log.WithError(err).Error("Failed to list rules")
		utils.SendError(c, http.StatusInternalServerError, "failed to list rules")
		return
	}

	utils.SendSuccess(c, rules)
}

// GetRule returns a single rule by ID.
func (h *Handlers) GetRule(c *gin.Context) {
	id := c.Param("id")

	rule, err := h.repos.Rules.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("rule_id", id).Error("Failed to load rule")
		utils.SendError(c, http.StatusInternalServerError, "failed to load rule")
		return
	}
	if rule == nil {
		utils.SendAppError(c, errors.NotFound("rule", id))
		return
	}

	utils.SendSuccess(c, rule)
}

// CreateRule validates and persists a new rule. Rules with conditions that do
// not parse are rejected here so the evaluator never sees them.
func (h *Handlers) CreateRule(c *gin.Context) {
	var rule alerting.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := rule.Validate(); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.Rules.Create(c.Request.Context(), &rule); err != nil {
		h.log.WithError(err).Error("Failed to create rule")
		utils.SendError(c, http.StatusInternalServerError, "failed to create rule")
		return
	}

	h.log.WithFields(logrus.Fields{
		"rule_id": rule.ID,
		"kind":    rule.Kind,
		"name":    rule.Name,
	}).Info("Rule created")

	utils.SendCreated(c, rule)
}

// UpdateRule validates and replaces an existing rule.
func (h *Handlers) UpdateRule(c *gin.Context) {
	id := c.Param("id")

	existing, err := h.repos.Rules.GetByID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("rule_id", id).Error("Failed to load rule")
		utils.SendError(c, http.StatusInternalServerError, "failed to load rule")
		return
	}
	if existing == nil {
		utils.SendAppError(c, errors.NotFound("rule", id))
		return
	}

	var rule alerting.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rule.ID = id
	rule.CreatedAt = existing.CreatedAt

	if err := rule.Validate(); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.Rules.Update(c.Request.Context(), &rule); err != nil {
		h.log.WithError(err).WithField("rule_id", id).Error("Failed to update rule")
		utils.SendError(c, http.StatusInternalServerError, "failed to update rule")
		return
	}

	utils.SendSuccess(c, rule)
}

// DeleteRule removes a rule. Execution history for the rule is retained.
func (h *Handlers) DeleteRule(c *gin.Context) {
	id := c.Param("id")

	if err := h.repos.Rules.Delete(c.Request.Context(), id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			utils.SendAppError(c, errors.NotFound("rule", id))
			return
		}
		h.log.WithError(err).WithField("rule_id", id).Error("Failed to delete rule")
		utils.SendError(c, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": id})
}
