package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/pkg/utils"
)

// ErrorHandlingMiddleware recovers from handler panics and returns a clean
// error envelope instead of dropping the connection.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"ip":          c.ClientIP(),
			"panic":       recovered,
			"stack_trace": string(debug.Stack()),
		}).Error("Panic recovered in HTTP handler")

		utils.SendError(c, http.StatusInternalServerError, "internal server error")
		c.Abort()
	})
}
