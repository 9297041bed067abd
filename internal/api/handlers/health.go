package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axmon/axmon-backend-go/pkg/utils"
)

// Health returns the health status of the service
func (h *Handlers) Health(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "axmon-backend-go",
		"version":   "1.0.0",
	}

	if h.wsHub != nil {
		stats := h.wsHub.Stats()
		health["websocket_clients"] = stats.ConnectedClients
	}

	environments := make([]gin.H, 0, len(h.cfg.Environments))
	for _, env := range h.cfg.Environments {
		environments = append(environments, gin.H{
			"name":    env.Name,
			"enabled": env.Enabled,
		})
	}
	health["environments"] = environments

	utils.SendSuccess(c, health)
}
