package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Satya1612t/ela/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message. A non-empty Code
// replaces the classified code in the response body.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
	Code    domain.ErrorCode
}

var codeStatus = map[domain.ErrorCode]int{
	domain.CodeUnauthenticated:  http.StatusUnauthorized,
	domain.CodeTokenExpired:     http.StatusUnauthorized,
	domain.CodeTokenInvalid:     http.StatusUnauthorized,
	domain.CodeIdentityMismatch: http.StatusUnauthorized,
	domain.CodeForbidden:        http.StatusForbidden,
	domain.CodeNotFound:         http.StatusNotFound,
	domain.CodeConflict:         http.StatusConflict,
	domain.CodeValidationFailed: http.StatusBadRequest,
	domain.CodeGatewayError:     http.StatusBadGateway,
	domain.CodeInternal:         http.StatusInternalServerError,
}

// Generic client messages. TOKEN_INVALID and IDENTITY_MISMATCH share one so a caller cannot
// tell which check failed.
var codeMessage = map[domain.ErrorCode]string{
	domain.CodeUnauthenticated:  "Authentication required",
	domain.CodeTokenExpired:     "Session expired. Please login again.",
	domain.CodeTokenInvalid:     "Invalid token",
	domain.CodeIdentityMismatch: "Invalid token",
	domain.CodeForbidden:        "Unauthorized Access",
	domain.CodeNotFound:         "Resource not found",
	domain.CodeConflict:         "Resource already exists",
	domain.CodeValidationFailed: "Validation Error",
	domain.CodeGatewayError:     "Payment gateway error",
	domain.CodeInternal:         "Internal server error",
}

// StatusOf returns the HTTP status for an error code.
func StatusOf(code domain.ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithMappedError answers with the first matching case, falling back to the error taxonomy.
// Server-side failures are attached to the gin context for the access log.
func RespondWithMappedError(c *gin.Context, err error, cases ...ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	code := domain.CodeOf(err)
	status := StatusOf(code)
	message := codeMessage[code]

	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			status = cs.Status
			message = cs.Message
			if cs.Code != "" {
				code = cs.Code
			}
			break
		}
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(c, code, message))
}

// respondValidation answers a request whose body failed binding.
func respondValidation(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)
	c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(c, domain.CodeValidationFailed, codeMessage[domain.CodeValidationFailed]))
}
