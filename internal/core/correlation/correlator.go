package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
	"github.com/axmon/axmon-backend-go/internal/core/locking"
	"github.com/axmon/axmon-backend-go/pkg/errors"
)

// AlertRepository is the persistence surface the correlator needs for alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *alerting.Alert) error
	GetByID(ctx context.Context, id string) (*alerting.Alert, error)
	Update(ctx context.Context, alert *alerting.Alert) error
	// LatestActiveForRule returns the most recent non-resolved alert for a
	// rule, or nil when there is none.
	LatestActiveForRule(ctx context.Context, ruleID string) (*alerting.Alert, error)
}

// IncidentRepository is the persistence surface for incidents. Implementations
// load constituent alerts in detection order.
type IncidentRepository interface {
	Create(ctx context.Context, incident *Incident) error
	GetByID(ctx context.Context, id string) (*Incident, error)
	ListOpen(ctx context.Context) ([]*Incident, error)
	AppendAlert(ctx context.Context, incidentID, alertID string) error
	Update(ctx context.Context, incident *Incident) error
}

// EventPublisher receives lifecycle events for the dashboard's live feed.
type EventPublisher interface {
	Publish(event string, payload interface{})
}

// Config holds the correlation policy. The defaults mirror the product
// defaults: 15 minute re-fire suppression and a 5 minute cross-type window.
type Config struct {
	SuppressionWindow time.Duration
	CorrelationWindow time.Duration
	// Relations lists alert-type pairs that correlate into one incident.
	Relations [][2]string
}

// DefaultConfig returns the default correlation policy.
func DefaultConfig() Config {
	return Config{
		SuppressionWindow: 15 * time.Minute,
		CorrelationWindow: 5 * time.Minute,
	}
}

// Correlator converts rule firings into alerts and groups alerts into
// incidents. Alert and incident mutation is serialized per entity.
type Correlator struct {
	alerts    AlertRepository
	incidents IncidentRepository
	publisher EventPublisher
	logger    *logrus.Logger
	cfg       Config

	locks    *locking.KeyedMutex
	related  map[string]map[string]bool
}

// NewCorrelator creates an alert/incident correlator. publisher may be nil.
func NewCorrelator(alerts AlertRepository, incidents IncidentRepository, publisher EventPublisher, cfg Config, logger *logrus.Logger) *Correlator {
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultConfig().SuppressionWindow
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = DefaultConfig().CorrelationWindow
	}

	related := make(map[string]map[string]bool)
	link := func(a, b string) {
		if related[a] == nil {
			related[a] = make(map[string]bool)
		}
		related[a][b] = true
	}
	for _, pair := range cfg.Relations {
		link(pair[0], pair[1])
		link(pair[1], pair[0])
	}

	return &Correlator{
		alerts:    alerts,
		incidents: incidents,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		locks:     locking.NewKeyedMutex(),
		related:   related,
	}
}

// RecordFiring creates a new Active alert for the firing unless an active
// alert for the same rule already exists inside the suppression window. It
// returns the alert and whether it was newly created.
func (c *Correlator) RecordFiring(ctx context.Context, firing alerting.Firing, now time.Time) (*alerting.Alert, bool, error) {
	rule := firing.Rule

	key := "rule:" + rule.ID
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	existing, err := c.alerts.LatestActiveForRule(ctx, rule.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check active alerts for rule %s: %w", rule.ID, err)
	}
	if existing != nil && now.Sub(existing.Timestamp) < c.cfg.SuppressionWindow {
		c.logger.WithFields(logrus.Fields{
			"rule_id":  rule.ID,
			"alert_id": existing.ID,
		}).Debug("Firing suppressed inside re-fire window")
		return existing, false, nil
	}

	message := rule.Message
	if message == "" {
		message = rule.Name
	}

	alert := &alerting.Alert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Type:      rule.AlertType,
		Severity:  rule.Severity,
		Message:   message,
		Status:    alerting.StatusActive,
		Timestamp: now,
		CreatedBy: "condition-evaluator",
	}

	if err := c.alerts.Create(ctx, alert); err != nil {
		return nil, false, fmt.Errorf("failed to persist alert for rule %s: %w", rule.ID, err)
	}

	c.publish("alert_created", alert)
	c.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  rule.ID,
		"type":     alert.Type,
		"severity": alert.Severity,
	}).Info("Alert created")

	return alert, true, nil
}

// Correlate assigns the alert to an incident: a matching open incident when
// one exists, otherwise a new incident containing only this alert. A failure
// in incident matching falls back to a standalone incident so an alert is
// never dropped.
func (c *Correlator) Correlate(ctx context.Context, alert *alerting.Alert) (*Incident, error) {
	match, err := c.findMatch(ctx, alert)
	if err != nil {
		c.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Incident matching failed, creating standalone incident")
		match = nil
	}

	if match != nil {
		key := "incident:" + match.ID
		c.locks.Lock(key)
		appended, err := c.appendToIncident(ctx, match.ID, alert)
		c.locks.Unlock(key)
		if err != nil {
			return nil, err
		}
		if appended != nil {
			c.publish("incident_updated", appended)
			return appended, nil
		}
		// Incident resolved between matching and appending; fall through to
		// a fresh incident.
	}

	incident := &Incident{
		ID:        uuid.New().String(),
		Status:    IncidentOpen,
		CreatedAt: alert.Timestamp,
		Alerts:    []*alerting.Alert{alert},
	}
	if err := c.incidents.Create(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to create incident for alert %s: %w", alert.ID, err)
	}

	c.publish("incident_created", incident)
	c.logger.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"alert_id":    alert.ID,
	}).Info("Incident opened")

	return incident, nil
}

// Resolve marks the incident resolved and cascades the resolution to every
// constituent alert that is not already resolved. Resolving an already
// resolved incident is a no-op.
func (c *Correlator) Resolve(ctx context.Context, incidentID, actor string, now time.Time) error {
	key := "incident:" + incidentID
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	incident, err := c.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("failed to load incident %s: %w", incidentID, err)
	}
	if incident == nil {
		return errors.NotFound("incident", incidentID)
	}
	if incident.Status == IncidentResolved {
		return nil
	}

	incident.Status = IncidentResolved
	incident.ResolvedAt = &now
	incident.ResolvedBy = actor
	if err := c.incidents.Update(ctx, incident); err != nil {
		return fmt.Errorf("failed to resolve incident %s: %w", incidentID, err)
	}

	for _, alert := range incident.Alerts {
		if !alert.CanResolve() {
			continue
		}
		alertKey := "alert:" + alert.ID
		c.locks.Lock(alertKey)
		alert.Status = alerting.StatusResolved
		alert.ResolvedAt = &now
		err := c.alerts.Update(ctx, alert)
		c.locks.Unlock(alertKey)
		if err != nil {
			return fmt.Errorf("failed to resolve alert %s: %w", alert.ID, err)
		}
	}

	c.publish("incident_resolved", incident)
	c.logger.WithFields(logrus.Fields{
		"incident_id": incidentID,
		"actor":       actor,
		"alerts":      len(incident.Alerts),
	}).Info("Incident resolved")

	return nil
}

// Acknowledge performs the Active -> Acknowledged transition. It returns
// false without mutating state when the alert is resolved or already
// acknowledged by a different actor; re-acknowledging by the same actor is a
// no-op success.
func (c *Correlator) Acknowledge(ctx context.Context, alertID, actor string, now time.Time) (bool, error) {
	key := "alert:" + alertID
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	alert, err := c.alerts.GetByID(ctx, alertID)
	if err != nil {
		return false, fmt.Errorf("failed to load alert %s: %w", alertID, err)
	}
	if alert == nil {
		return false, errors.NotFound("alert", alertID)
	}

	switch alert.Status {
	case alerting.StatusResolved:
		return false, nil
	case alerting.StatusAcknowledged:
		return alert.AcknowledgedBy == actor, nil
	}

	alert.Status = alerting.StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	if err := c.alerts.Update(ctx, alert); err != nil {
		return false, fmt.Errorf("failed to acknowledge alert %s: %w", alertID, err)
	}

	c.publish("alert_acknowledged", alert)
	return true, nil
}

// findMatch searches open incidents for one sharing a correlation key with
// the alert: same alert type, or a configured cross-type relation within the
// correlation window.
func (c *Correlator) findMatch(ctx context.Context, alert *alerting.Alert) (*Incident, error) {
	open, err := c.incidents.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open incidents: %w", err)
	}

	for _, incident := range open {
		for _, member := range incident.Alerts {
			if member.Type == alert.Type {
				return incident, nil
			}
			if c.related[member.Type][alert.Type] {
				gap := alert.Timestamp.Sub(member.Timestamp)
				if gap < 0 {
					gap = -gap
				}
				if gap <= c.cfg.CorrelationWindow {
					return incident, nil
				}
			}
		}
	}

	return nil, nil
}

// appendToIncident re-reads the incident under its lock and appends the
// alert if it is still open. Returns nil when the incident closed in the
// meantime.
func (c *Correlator) appendToIncident(ctx context.Context, incidentID string, alert *alerting.Alert) (*Incident, error) {
	incident, err := c.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload incident %s: %w", incidentID, err)
	}
	if incident == nil || incident.Status != IncidentOpen {
		return nil, nil
	}

	if err := c.incidents.AppendAlert(ctx, incidentID, alert.ID); err != nil {
		return nil, fmt.Errorf("failed to append alert %s to incident %s: %w", alert.ID, incidentID, err)
	}
	incident.Alerts = append(incident.Alerts, alert)

	c.logger.WithFields(logrus.Fields{
		"incident_id": incidentID,
		"alert_id":    alert.ID,
	}).Info("Alert correlated into incident")

	return incident, nil
}

func (c *Correlator) publish(event string, payload interface{}) {
	if c.publisher != nil {
		c.publisher.Publish(event, payload)
	}
}
