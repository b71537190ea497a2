package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/http/handlers/common"
	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/service"
)

// maxWebhookBody ограничивает размер тела вебхука Stripe.
const maxWebhookBody = 64 << 10

// PaymentHandler обслуживает платежи Stripe.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler создаёт хэндлер платежей.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateIntent обрабатывает POST /api/payments/create-intent.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Amount    float64    `json:"amount" binding:"required,gt=0"`
		Currency  string     `json:"currency"`
		BookingID *uuid.UUID `json:"bookingId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.payments.CreateIntent(c.Request.Context(), userID, service.CreateIntentInput{
		Amount:    req.Amount,
		Currency:  req.Currency,
		BookingID: req.BookingID,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Created(c, result)
}

// Confirm обрабатывает POST /api/payments/confirm.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.payments.Confirm(c.Request.Context(), userID, common.CurrentUserRole(c), req.PaymentIntentID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, result)
}

// Refund обрабатывает POST /api/payments/refund. Без amount возвращается вся сумма.
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req struct {
		PaymentIntentID string   `json:"paymentIntentId" binding:"required"`
		Amount          *float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.payments.Refund(c.Request.Context(), req.PaymentIntentID, req.Amount)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, result)
}

// StripeWebhook обрабатывает POST /api/webhooks/stripe. Подпись проверяется по сырому телу.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeWebhookInvalid, "не удалось прочитать тело вебхука"))
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
