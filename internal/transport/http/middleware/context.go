package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/infra/logger"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// RequestIDHeader carries the caller's correlation identifier
	RequestIDHeader = "X-Request-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// AccountIDKey is the context key for the authenticated account ID
	AccountIDKey = "account_id"
	// SessionClaimKey is the gin context key for the verified session claim
	SessionClaimKey = "session_claim"
)

type sessionClaimKey struct{}

// EnrichContext assigns trace and request IDs to each request and echoes them as headers.
// The request ID is also placed on the request context for logger.WithContext.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNewID(c, TraceIDHeader)
		requestID := headerOrNewID(c, RequestIDHeader)

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, requestID))

		c.Next()
	}
}

// GetTraceID returns the trace ID assigned by EnrichContext.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// WithSessionClaim stores the verified claim on a request context.
func WithSessionClaim(ctx context.Context, claim *domain.SessionClaim) context.Context {
	return context.WithValue(ctx, sessionClaimKey{}, claim)
}

// SessionClaimFromContext returns the claim stored by Authenticate, if any.
func SessionClaimFromContext(ctx context.Context) (*domain.SessionClaim, bool) {
	if ctx == nil {
		return nil, false
	}
	claim, ok := ctx.Value(sessionClaimKey{}).(*domain.SessionClaim)
	return claim, ok && claim != nil
}

// GetSessionClaim retrieves the verified claim from the gin context (helper for handlers)
func GetSessionClaim(c *gin.Context) (*domain.SessionClaim, bool) {
	if value, exists := c.Get(SessionClaimKey); exists {
		if claim, ok := value.(*domain.SessionClaim); ok && claim != nil {
			return claim, true
		}
	}
	return SessionClaimFromContext(c.Request.Context())
}

// headerOrNewID accepts a caller supplied correlation id of sane length, else mints a UUID.
func headerOrNewID(c *gin.Context, header string) string {
	if id := strings.TrimSpace(c.GetHeader(header)); id != "" && len(id) <= 128 {
		return id
	}
	return uuid.NewString()
}
