package middleware

import (
	"time"

	"fleetcast/pkg/logger"
	"fleetcast/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware logs every HTTP request with a generated request
// ID so a single request can be followed through the log stream.
func RequestLoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	contextLogger := logger.NewContextLogger(log)

	return func(c *gin.Context) {
		requestID := utils.GenerateRequestID()
		c.Header("X-Request-ID", requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		contextLogger.LogRequest(ctx, c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
