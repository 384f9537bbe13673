package http

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/input"
)

// IdempotencyKeyHeader lets clients retry a payment request safely
const IdempotencyKeyHeader = "Idempotency-Key"

// PaymentHandler is a primary adapter (HTTP handler)
type PaymentHandler struct {
	paymentService input.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService input.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// CreatePaymentRequest represents the HTTP request to create a payment
type CreatePaymentRequest struct {
	Method      string `json:"method" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	ReturnURL   string `json:"returnUrl,omitempty"`
	CancelURL   string `json:"cancelUrl,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// CancelPaymentRequest represents the HTTP request to cancel a payment
type CancelPaymentRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// EupagoDetails is the method-specific payload shown to the customer
type EupagoDetails struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	Entity      string `json:"entity,omitempty"`
	Reference   string `json:"reference,omitempty"`
	IBAN        string `json:"iban,omitempty"`
	Alias       string `json:"alias,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
}

// PaymentResponse represents the HTTP response for a payment
type PaymentResponse struct {
	ID             string         `json:"id"`
	ReservationID  string         `json:"reservationId"`
	Reference      string         `json:"reference"`
	Method         string         `json:"method"`
	Amount         int64          `json:"amount"`
	AmountDisplay  string         `json:"amountDisplay"`
	Status         string         `json:"status"`
	ExpirationTime string         `json:"expirationTime,omitempty"`
	EupagoDetails  *EupagoDetails `json:"eupagoDetails,omitempty"`
	CreatedAt      string         `json:"createdAt"`
}

// StatusResponse keeps both status spellings on the wire for existing clients
type StatusResponse struct {
	Status string `json:"status"`
	Estado string `json:"estado,omitempty"`
}

// CancelResponse represents the HTTP response for a cancellation
type CancelResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func toHTTP(p *input.PaymentResponse) PaymentResponse {
	res := PaymentResponse{
		ID:            p.ID.String(),
		ReservationID: p.ReservationID,
		Reference:     p.Reference,
		Method:        string(p.Method),
		Amount:        p.Amount,
		AmountDisplay: core.FormatAmount(p.Amount),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	if p.ExpiresAt != nil {
		res.ExpirationTime = p.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if p.Method.UsesGateway() {
		res.EupagoDetails = &EupagoDetails{
			RedirectURL: p.Details.RedirectURL,
			Entity:      p.Details.Entity,
			Reference:   p.Details.Reference,
			IBAN:        p.Details.IBAN,
			Alias:       p.Details.PhoneAlias,
			Amount:      p.Details.Amount,
		}
	}
	return res
}

// CreatePayment handles payment creation for a reservation
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	// Call service (input port)
	response, err := h.paymentService.InitiatePayment(c.Request().Context(), input.InitiatePaymentRequest{
		ReservationID:  c.Param("id"),
		Method:         strings.ToLower(strings.TrimSpace(req.Method)),
		Amount:         req.Amount,
		PhoneNumber:    req.PhoneNumber,
		ReturnURL:      req.ReturnURL,
		CancelURL:      req.CancelURL,
		IdempotencyKey: c.Request().Header.Get(IdempotencyKeyHeader),
		Admin:          isAdmin(c),
	})
	if err != nil {
		return respondError(c, err, "Failed to create payment")
	}

	return c.JSON(http.StatusCreated, toHTTP(response))
}

// ListPayments handles listing the payments of a reservation
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	payments, err := h.paymentService.ListReservationPayments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "Failed to list payments")
	}

	out := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, toHTTP(&payments[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// GetPayment handles payment retrieval by reference
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	response, err := h.paymentService.GetPayment(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return respondError(c, err, "Failed to retrieve payment")
	}
	return c.JSON(http.StatusOK, toHTTP(response))
}

// GetStatus handles status polling
func (h *PaymentHandler) GetStatus(c echo.Context) error {
	status, err := h.paymentService.CheckStatus(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return respondError(c, err, "Failed to check payment status")
	}

	res := StatusResponse{Status: string(status)}
	if status == core.PaymentStatusPaid {
		res.Estado = "pago"
	}
	return c.JSON(http.StatusOK, res)
}

// CancelPayment handles cancellation of a pending payment
func (h *PaymentHandler) CancelPayment(c echo.Context) error {
	var req CancelPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	response, err := h.paymentService.CancelPayment(c.Request().Context(), req.Reference)
	if errors.Is(err, core.ErrTerminalState) && response != nil {
		return c.JSON(http.StatusConflict, CancelResponse{Reference: response.Reference, Status: string(response.Status)})
	}
	if err != nil {
		return respondError(c, err, "Failed to cancel payment")
	}
	return c.JSON(http.StatusOK, CancelResponse{Reference: response.Reference, Status: string(response.Status)})
}

// respondError maps service errors to status codes; unknown errors are logged and hidden.
func respondError(c echo.Context, err error, fallback string) error {
	code := http.StatusInternalServerError
	switch {
	case core.IsValidation(err):
		code = http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Payment not found"})
	case errors.Is(err, core.ErrTerminalState), errors.Is(err, core.ErrRequestInProgress), errors.Is(err, core.ErrDuplicateReference):
		code = http.StatusConflict
	case errors.Is(err, core.ErrPaymentProcessing):
		code = http.StatusBadGateway
	}

	if code == http.StatusInternalServerError {
		log.Printf("%s: %v", fallback, err)
		return c.JSON(code, map[string]string{"error": fallback})
	}
	return c.JSON(code, map[string]string{"error": err.Error()})
}
