package domain

import "errors"

// ErrorCode is the stable, client-visible classification of a failure.
type ErrorCode string

const (
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeTokenExpired     ErrorCode = "TOKEN_EXPIRED"
	CodeTokenInvalid     ErrorCode = "TOKEN_INVALID"
	CodeIdentityMismatch ErrorCode = "IDENTITY_MISMATCH"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeGatewayError     ErrorCode = "GATEWAY_ERROR"
	CodeInternal         ErrorCode = "INTERNAL"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrValidation       = errors.New("validation failed")
	ErrGateway          = errors.New("gateway error")
	ErrInternal         = errors.New("internal error")
)

var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenInvalid, CodeTokenInvalid},
	{ErrIdentityMismatch, CodeIdentityMismatch},
	{ErrForbidden, CodeForbidden},
	{ErrNotFound, CodeNotFound},
	{ErrConflict, CodeConflict},
	{ErrValidation, CodeValidationFailed},
	{ErrGateway, CodeGatewayError},
	{ErrInternal, CodeInternal},
}

// CodeOf classifies err against the taxonomy. Unclassified errors are INTERNAL.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}
