package middleware

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"economy-api/internal/monitoring"
)

// RequestLogger logs one structured line per request and feeds the HTTP
// metrics. Slow requests get flagged at warn level.
func RequestLogger(logger *logrus.Logger, metrics monitoring.MetricsService, slowThreshold time.Duration) gin.HandlerFunc {
	if slowThreshold == 0 {
		slowThreshold = 2 * time.Second
	}

	return func(ctx *gin.Context) {
		start := time.Now()
		path := ctx.FullPath()
		if path == "" {
			path = ctx.Request.URL.Path
		}

		ctx.Next()

		duration := time.Since(start)
		status := ctx.Writer.Status()
		metrics.RecordHTTPRequest(ctx.Request.Method, path, status, duration)

		entry := logger.WithFields(logrus.Fields{
			"request_id":  requestid.Get(ctx),
			"method":      ctx.Request.Method,
			"path":        path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"client_ip":   ctx.ClientIP(),
		})
		if len(ctx.Errors) > 0 {
			entry = entry.WithField("errors", ctx.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("Request failed")
		case duration > slowThreshold:
			entry.Warn("Slow request")
		default:
			entry.Info("Request handled")
		}
	}
}

// Recovery converts panics into a 500 without killing the process.
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(ctx *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"request_id": requestid.Get(ctx),
			"path":       ctx.Request.URL.Path,
			"panic":      recovered,
		}).Error("Panic recovered")
		ctx.AbortWithStatus(500)
	})
}
