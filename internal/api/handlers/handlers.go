package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/config"
	"github.com/axmon/axmon-backend-go/internal/core/correlation"
	"github.com/axmon/axmon-backend-go/internal/core/remediation"
	"github.com/axmon/axmon-backend-go/internal/database/repositories"
	"github.com/axmon/axmon-backend-go/internal/metrics"
	"github.com/axmon/axmon-backend-go/internal/websocket"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg         *config.Config
	repos       *repositories.Repositories
	log         *logrus.Logger
	wsHub       *websocket.Hub
	correlator  *correlation.Correlator
	remediation *remediation.Engine
	metrics     *metrics.Metrics
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, repos *repositories.Repositories, correlator *correlation.Correlator, remediationEngine *remediation.Engine, wsHub *websocket.Hub, m *metrics.Metrics, logger *logrus.Logger) *Handlers {
	return &Handlers{
		cfg:         cfg,
		repos:       repos,
		log:         logger,
		wsHub:       wsHub,
		correlator:  correlator,
		remediation: remediationEngine,
		metrics:     m,
	}
}
