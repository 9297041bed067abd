package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/api/handlers"
	"github.com/axmon/axmon-backend-go/internal/api/middleware"
	"github.com/axmon/axmon-backend-go/internal/config"
	"github.com/axmon/axmon-backend-go/internal/core/correlation"
	"github.com/axmon/axmon-backend-go/internal/core/remediation"
	"github.com/axmon/axmon-backend-go/internal/database/repositories"
	"github.com/axmon/axmon-backend-go/internal/metrics"
	"github.com/axmon/axmon-backend-go/internal/websocket"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, repos *repositories.Repositories, correlator *correlation.Correlator, remediationEngine *remediation.Engine, wsHub *websocket.Hub, m *metrics.Metrics, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	h := handlers.NewHandlers(cfg, repos, correlator, remediationEngine, wsHub, m, logger)

	// Public routes
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint for the dashboard live feed
	router.GET("/ws", h.WebSocketHandler(wsHub))

	// API v1 routes
	api := router.Group("/api/v1")
	{
		api.GET("/status", h.Health)

		rules := api.Group("/rules")
		{
			rules.GET("/", h.GetRules)
			rules.GET("/:id", h.GetRule)
			rules.POST("/", h.CreateRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("/", h.GetAlerts)
			alerts.GET("/:id", h.GetAlert)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.GET("/:id/escalations", h.GetEscalationHistory)
			alerts.DELETE("/:id", h.DeleteAlert)
		}

		incidents := api.Group("/incidents")
		{
			incidents.GET("/", h.GetIncidents)
			incidents.GET("/:id", h.GetIncident)
			incidents.POST("/:id/resolve", h.ResolveIncident)
		}

		remediations := api.Group("/remediations")
		{
			remediations.POST("/:id/execute", h.ExecuteRemediation)
			remediations.GET("/history", h.GetRemediationHistory)
		}

		ws := api.Group("/websocket")
		{
			ws.GET("/stats", h.GetWebSocketStats(wsHub))
		}
	}

	return router
}
