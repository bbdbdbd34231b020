package handlers

import (
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/infra/payment/phonepe"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/usecase"
)

// PaymentResultTemplate names the page rendered after a gateway callback is applied.
const PaymentResultTemplate = "payment_result.tmpl"

const maxCallbackBodyBytes = 1 << 20

var errEmptyCallback = errors.New("callback body and authorization are required")

var paymentResultPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Payment {{ .Status }}</title></head>
<body>
<h1>{{ if eq .Status "SUCCESS" }}Payment successful{{ else }}Payment failed{{ end }}</h1>
<p>Payment reference: {{ .PaymentID }}</p>
<p>Application status: {{ .ApplicationStatus }}</p>
</body>
</html>`

// Templates returns the HTML templates the payment handler renders.
func Templates() *template.Template {
	return template.Must(template.New(PaymentResultTemplate).Parse(paymentResultPage))
}

// PaymentHandler exposes payment initiation, gateway callbacks, refunds and listings.
type PaymentHandler struct {
	payments *usecase.PaymentService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *usecase.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

var paymentErrorCases = []ErrorCase{
	{Err: usecase.ErrPaymentNotFound, Status: http.StatusNotFound, Message: "Payment not found"},
	{Err: usecase.ErrPaymentForbidden, Status: http.StatusForbidden, Message: "Forbidden: Not authorized to access this payment"},
	{Err: usecase.ErrApplicationNotFound, Status: http.StatusNotFound, Message: "Application not found"},
	{Err: usecase.ErrInvalidPaymentMethod, Status: http.StatusBadRequest, Message: "Invalid payment method"},
	{Err: usecase.ErrInvalidApplicationID, Status: http.StatusBadRequest, Message: "Invalid application ID format"},
	{Err: usecase.ErrPaymentNotRefundable, Status: http.StatusBadRequest, Message: "Only successful service payments can be refunded"},
	{Err: usecase.ErrPaymentAlreadyRefunded, Status: http.StatusConflict, Message: "Payment already refunded"},
	{Err: phonepe.ErrInvalidAmount, Status: http.StatusBadRequest, Message: "Invalid amount"},
}

var callbackErrorCases = []ErrorCase{
	{Err: phonepe.ErrCallbackUnauthorized, Status: http.StatusUnauthorized, Message: "Invalid callback authorization"},
	{Err: phonepe.ErrCallbackMalformed, Status: http.StatusBadRequest, Message: "Invalid callback payload"},
	{Err: usecase.ErrPaymentNotFound, Status: http.StatusNotFound, Message: "Payment not found"},
}

// Initiate godoc
// @Summary Start a payment
// @Description Records a PENDING payment for the caller's application and returns the gateway checkout URL.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body PaymentInitiateRequest true "Payment request"
// @Success 200 {object} PaymentInitiateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/payments/initiate [post]
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req PaymentInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	claim, _ := middleware.GetSessionClaim(c)
	initiated, err := h.payments.Initiate(c.Request.Context(), claim, usecase.InitiatePaymentInput{
		ApplicationID: req.ApplicationID,
		PaymentMethod: req.PaymentMethod,
		PaymentType:   req.PaymentType,
		Amount:        req.Amount,
	})
	if err != nil {
		RespondWithMappedError(c, err, paymentErrorCases...)
		return
	}

	c.JSON(http.StatusOK, PaymentInitiateResponse{
		Success:     true,
		PaymentID:   initiated.PaymentID,
		RedirectURL: initiated.RedirectURL,
		ExpiresAt:   initiated.ExpiresAt,
	})
}

// Callback godoc
// @Summary Gateway payment callback
// @Description Authenticates a PhonePe webhook, applies its state to the payment and its application, and renders a result page. Redeliveries change nothing.
// @Tags Payments
// @Accept json
// @Produce html
// @Param Authorization header string true "SHA256 of callback username:password"
// @Success 200 {string} string "Result page"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/payments/callback [post]
func (h *PaymentHandler) Callback(c *gin.Context) {
	authorization := strings.TrimSpace(c.GetHeader("Authorization"))
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBodyBytes))
	if err != nil {
		respondValidation(c, err)
		return
	}
	if len(body) == 0 || authorization == "" {
		respondValidation(c, errEmptyCallback)
		return
	}

	result, err := h.payments.Reconcile(c.Request.Context(), authorization, body)
	if err != nil {
		RespondWithMappedError(c, err, callbackErrorCases...)
		return
	}

	c.HTML(http.StatusOK, PaymentResultTemplate, gin.H{
		"PaymentID":         result.Payment.ID,
		"Status":            string(result.Payment.Status),
		"ApplicationStatus": string(result.ApplicationStatus),
	})
}

// Status godoc
// @Summary Refresh a payment's status
// @Description Polls the gateway for a PENDING payment and applies a final state when reported.
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} PaymentResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/payments/{id}/status [get]
func (h *PaymentHandler) Status(c *gin.Context) {
	claim, _ := middleware.GetSessionClaim(c)
	payment, err := h.payments.SyncStatus(c.Request.Context(), claim, c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, paymentErrorCases...)
		return
	}
	c.JSON(http.StatusOK, PaymentResponse{Success: true, Payment: newPaymentView(*payment)})
}

// Refund godoc
// @Summary Refund a payment
// @Description Creates a REFUND payment for a successful service payment and asks the gateway to return the full amount.
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} RefundResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/payments/{id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	claim, _ := middleware.GetSessionClaim(c)
	result, err := h.payments.Refund(c.Request.Context(), claim, c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, paymentErrorCases...)
		return
	}
	c.JSON(http.StatusOK, RefundResponse{
		Success:      true,
		Message:      "Refund initiated",
		Refund:       newPaymentView(result.Refund),
		GatewayState: result.Gateway.State,
	})
}

// Get godoc
// @Summary Get a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} PaymentResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	claim, _ := middleware.GetSessionClaim(c)
	payment, err := h.payments.Get(c.Request.Context(), claim, c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, paymentErrorCases...)
		return
	}
	c.JSON(http.StatusOK, PaymentResponse{Success: true, Payment: newPaymentView(*payment)})
}

// ListMine godoc
// @Summary List the caller's payments
// @Tags Payments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} PaymentListResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/payments/user [get]
func (h *PaymentHandler) ListMine(c *gin.Context) {
	claim, _ := middleware.GetSessionClaim(c)
	page, err := h.payments.ListMine(c.Request.Context(), claim, pageFromQuery(c))
	if err != nil {
		RespondWithMappedError(c, err, paymentErrorCases...)
		return
	}
	c.JSON(http.StatusOK, newPaymentListResponse(page))
}

// ListAll godoc
// @Summary List every payment
// @Tags Payments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} PaymentListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/payments/all [get]
func (h *PaymentHandler) ListAll(c *gin.Context) {
	claim, _ := middleware.GetSessionClaim(c)
	page, err := h.payments.ListAll(c.Request.Context(), claim, pageFromQuery(c))
	if err != nil {
		RespondWithMappedError(c, err, paymentErrorCases...)
		return
	}
	c.JSON(http.StatusOK, newPaymentListResponse(page))
}

// pageFromQuery reads page and limit; bad values fall back to the defaults applied by Normalize.
func pageFromQuery(c *gin.Context) domain.Page {
	number, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return domain.Page{Number: number, Size: size}
}
