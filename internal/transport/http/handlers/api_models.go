package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code domain.ErrorCode, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		Code:    string(code),
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginRequest carries the phone the bearer token must prove.
type LoginRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// RefreshRequest lets clients without cookie support pass the refresh token in the body.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login, refresh, session and registration endpoints.
type AuthResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	User    domain.PublicAccount `json:"user"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Phone string `json:"phone" binding:"required,phone"`
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required,min=2,max=120"`
}

// PaymentInitiateRequest starts a payment for an application.
type PaymentInitiateRequest struct {
	ApplicationID string          `json:"applicationId" binding:"required,uuid"`
	PaymentMethod string          `json:"paymentMethod" binding:"required"`
	PaymentType   string          `json:"paymentType"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentInitiateResponse carries the gateway checkout URL.
type PaymentInitiateResponse struct {
	Success     bool      `json:"success"`
	PaymentID   string    `json:"paymentId"`
	RedirectURL string    `json:"redirectUrl"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// PaymentView is the client representation of a payment.
type PaymentView struct {
	ID              string                `json:"id"`
	ApplicationID   string                `json:"applicationId"`
	ServiceID       string                `json:"serviceId,omitempty"`
	Amount          string                `json:"amount"`
	PaymentMethod   string                `json:"paymentMethod"`
	PaymentType     string                `json:"paymentType,omitempty"`
	Purpose         domain.PaymentPurpose `json:"purpose"`
	Status          domain.PaymentStatus  `json:"status"`
	TransactionID   *string               `json:"transactionId,omitempty"`
	ParentPaymentID *string               `json:"parentPaymentId,omitempty"`
	ExpiresAt       *time.Time            `json:"expiresAt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// PaymentResponse wraps one payment.
type PaymentResponse struct {
	Success bool        `json:"success"`
	Payment PaymentView `json:"payment"`
}

// PaymentListResponse is one page of payments.
type PaymentListResponse struct {
	Success      bool          `json:"success"`
	CurrentPage  int           `json:"currentPage"`
	TotalPages   int           `json:"totalPages"`
	TotalRecords int           `json:"totalRecords"`
	Payments     []PaymentView `json:"payments"`
}

// RefundResponse reports the refund payment created for a settled payment.
type RefundResponse struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message"`
	Refund       PaymentView `json:"refund"`
	GatewayState string      `json:"gatewayState,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newPaymentView(payment domain.Payment) PaymentView {
	return PaymentView{
		ID:              payment.ID,
		ApplicationID:   payment.ApplicationID,
		ServiceID:       payment.ServiceID,
		Amount:          payment.Amount.StringFixed(2),
		PaymentMethod:   payment.PaymentMethod,
		PaymentType:     payment.PaymentType,
		Purpose:         payment.Purpose,
		Status:          payment.Status,
		TransactionID:   payment.GatewayOrderID,
		ParentPaymentID: payment.ParentPaymentID,
		ExpiresAt:       payment.ExpiresAt,
		CreatedAt:       payment.CreatedAt,
		UpdatedAt:       payment.UpdatedAt,
	}
}

func newPaymentListResponse(page *usecase.PaymentPage) PaymentListResponse {
	views := make([]PaymentView, 0, len(page.Items))
	for _, payment := range page.Items {
		views = append(views, newPaymentView(payment))
	}
	return PaymentListResponse{
		Success:      true,
		CurrentPage:  page.Page.Number,
		TotalPages:   page.TotalPages(),
		TotalRecords: page.Total,
		Payments:     views,
	}
}
