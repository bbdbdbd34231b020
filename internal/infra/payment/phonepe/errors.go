package phonepe

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Satya1612t/ela/internal/core/domain"
)

var (
	// ErrCallbackUnauthorized indicates the webhook Authorization header did not match the configured credentials.
	ErrCallbackUnauthorized = fmt.Errorf("phonepe: callback authorization mismatch: %w", domain.ErrUnauthenticated)
	// ErrCallbackMalformed indicates an authentic webhook whose body could not be understood.
	ErrCallbackMalformed = fmt.Errorf("phonepe: malformed callback: %w", domain.ErrValidation)
	// ErrInvalidAmount indicates an amount that cannot be expressed exactly in minor units.
	ErrInvalidAmount = fmt.Errorf("phonepe: invalid amount: %w", domain.ErrValidation)
)

// GatewayError is a well-formed error answer from PhonePe.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("phonepe %s: status %d: %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("phonepe %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *GatewayError) Unwrap() error { return domain.ErrGateway }

// Retryable reports whether repeating the call may succeed.
func (e *GatewayError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// UnexpectedError covers transport failures, timeouts and undecodable answers.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("phonepe %s: unexpected: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() []error { return []error{domain.ErrInternal, e.Err} }

// Retryable is always true: the outcome of the call is unknown.
func (e *UnexpectedError) Retryable() bool { return true }

// IsGatewayError reports whether err carries a PhonePe error answer.
func IsGatewayError(err error) bool {
	var gatewayErr *GatewayError
	return errors.As(err, &gatewayErr)
}

// IsRetryable reports whether err came from this client and may succeed on retry.
func IsRetryable(err error) bool {
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return false
}
