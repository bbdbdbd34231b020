package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appLogger "github.com/Satya1612t/ela/internal/infra/logger"
)

// quietPaths are probe endpoints logged at debug level so they do not flood the access log.
var quietPaths = map[string]struct{}{
	"/healthz":      {},
	"/readyz":       {},
	"/api/appCheck": {},
	"/metrics":      {},
}

// Logger emits one access log line per request. 5xx answers and handler errors log at error,
// 4xx at warn and probes at debug.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", requestIDFromContext(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", max(c.Writer.Size(), 0)),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIdentifier(c.ClientIP())),
		}
		if ua := strings.TrimSpace(c.Request.UserAgent()); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}
		if accountID := c.GetString(AccountIDKey); accountID != "" {
			fields = append(fields, zap.String("account_id", accountID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		level, msg := accessLogLevel(c.Request.URL.Path, status, len(c.Errors) > 0)
		if ce := log.Check(level, msg); ce != nil {
			ce.Write(fields...)
		}
	}
}

func accessLogLevel(path string, status int, failed bool) (zapcore.Level, string) {
	switch {
	case failed || status >= 500:
		return zapcore.ErrorLevel, "request failed"
	case status >= 400:
		return zapcore.WarnLevel, "request rejected"
	}
	if _, quiet := quietPaths[path]; quiet {
		return zapcore.DebugLevel, "probe served"
	}
	return zapcore.InfoLevel, "request completed"
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(appLogger.RequestIDKey{}).(string)
	return id
}
