package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
)

// AccessTokenCookie carries the access token set at login.
const AccessTokenCookie = "idToken"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, code domain.ErrorCode, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		Code:    string(code),
		TraceID: GetTraceID(c),
	}
}

// Authenticate verifies the access token from the idToken cookie, falling back to a Bearer
// Authorization header, and stores the session claim on the request.
func Authenticate(codec port.SessionTokenCodec) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessTokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, "Authentication required"))
			return
		}

		claim, err := codec.Verify(token, domain.TokenClassAccess)
		if err != nil {
			if errors.Is(err, domain.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, domain.CodeTokenExpired, "Session expired. Please login again."))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeTokenInvalid, "Invalid or expired token"))
			return
		}

		c.Set(SessionClaimKey, claim)
		c.Set(AccountIDKey, claim.ID)
		c.Request = c.Request.WithContext(WithSessionClaim(c.Request.Context(), claim))

		c.Next()
	}
}

// RequireRole checks if the authenticated account has any of the specified roles
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claim, ok := GetSessionClaim(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, domain.CodeUnauthenticated, "Authentication required"))
			return
		}

		if !domain.Authorize(claim, roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, domain.CodeForbidden, "Access Denied: Insufficient role"))
			return
		}

		c.Next()
	}
}

func accessTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	return BearerToken(c.GetHeader("Authorization"))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
