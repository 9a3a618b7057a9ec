// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shutter-service/internal/utils"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope unless the
// handler already started writing
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		requestLogger := utils.LoggerWithRequestID(logger, utils.GetRequestID(c))
		requestLogger.Error("Handler panicked",
			zap.String("panic", fmt.Sprint(recovered)),
			zap.String("route", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Stack("stacktrace"),
		)

		if c.Writer.Written() {
			c.Abort()
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error",
			fmt.Errorf("request %s aborted", utils.GetRequestID(c)))
	})
}
