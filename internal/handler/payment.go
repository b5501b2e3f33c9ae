package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/farisdwi28/petneeds/internal/domain/payment"
	"github.com/farisdwi28/petneeds/internal/gateway"
	"github.com/farisdwi28/petneeds/internal/metrics"
)

// maxWebhookBytes bounds notification bodies before parsing.
const maxWebhookBytes = 1 << 20

type createPaymentRequest struct {
	OrderNumber string `json:"order_number" binding:"required"`
}

type paymentResponse struct {
	OrderNumber   string     `json:"order_number"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	FraudStatus   string     `json:"fraud_status,omitempty"`
	PaymentType   string     `json:"payment_type,omitempty"`
	Token         string     `json:"token,omitempty"`
	RedirectURL   string     `json:"redirect_url,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	ExpiryTime    *time.Time `json:"expiry_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		OrderNumber:   p.OrderNumber,
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		FraudStatus:   p.FraudStatus,
		PaymentType:   p.PaymentType,
		Token:         p.Token,
		RedirectURL:   p.RedirectURL,
		TransactionID: p.GatewayTransactionID,
		PaymentDate:   p.PaymentDate,
		ExpiryTime:    p.ExpiryTime,
		CreatedAt:     p.CreatedAt,
	}
}

// CreatePayment initiates a gateway transaction for the caller's order.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	p, err := h.paymentService.Initiate(c.Request.Context(), userID(c), req.OrderNumber)
	if err != nil {
		h.mapPaymentError(c, err)
		return
	}
	respondData(c, http.StatusCreated, toPaymentResponse(p))
}

// GetPayment returns the payment for one of the caller's orders.
func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.paymentService.GetForUser(c.Request.Context(), userID(c), c.Param("orderNumber"))
	if err != nil {
		h.mapPaymentError(c, err)
		return
	}
	respondData(c, http.StatusOK, toPaymentResponse(p))
}

// PaymentWebhook ingests a gateway notification. The gateway retries on
// non-2xx, so only states it can fix by retrying return an error status:
// an unknown payment is a 404, a malformed body a 400, everything
// applied (including duplicates) a 200.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respondError(c, http.StatusBadRequest, "unreadable body")
		return
	}

	n, err := gateway.ParseNotification(body)
	if err != nil {
		metrics.RecordWebhook("", false)
		respondError(c, http.StatusBadRequest, "malformed notification")
		return
	}

	ctx := c.Request.Context()
	if h.cfg.VerifySignature && !gateway.VerifySignature(n, h.cfg.GatewayServerKey) {
		zctx.From(ctx).Warn("webhook signature mismatch",
			zap.String("order_ref", n.OrderRef),
			zap.String("transaction_id", n.TransactionID))
		metrics.RecordWebhook(n.TransactionStatus, false)
		respondError(c, http.StatusUnauthorized, "invalid signature")
		return
	}

	p, err := h.paymentService.HandleNotification(ctx, n)
	metrics.RecordWebhook(n.TransactionStatus, err == nil)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			respondError(c, http.StatusNotFound, "payment not found")
		case errors.Is(err, payment.ErrUnknownStatus):
			// Audited but not applied. Acknowledge so the gateway does
			// not retry a status this service will never understand.
			zctx.From(ctx).Warn("unknown transaction status",
				zap.String("transaction_status", n.TransactionStatus),
				zap.String("order_ref", n.OrderRef))
			respondMessage(c, http.StatusOK, "notification recorded")
		default:
			h.internalError(c, err)
		}
		return
	}
	respondData(c, http.StatusOK, toPaymentResponse(p))
}

// AdminSyncPayment pulls the authoritative transaction status from the
// gateway and reconciles it, covering lost or delayed notifications.
func (h *Handler) AdminSyncPayment(c *gin.Context) {
	p, err := h.paymentService.Sync(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.mapPaymentError(c, err)
		return
	}
	respondData(c, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) mapPaymentError(c *gin.Context, err error) {
	var state *payment.InvalidOrderStateError

	switch {
	case errors.Is(err, payment.ErrNotFound):
		respondError(c, http.StatusNotFound, "payment not found")
	case errors.Is(err, payment.ErrAlreadyExists):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrUnknownStatus):
		respondError(c, http.StatusBadGateway, "gateway returned an unknown status")
	case errors.Is(err, gateway.ErrUnavailable):
		respondError(c, http.StatusBadGateway, "payment gateway unavailable")
	case errors.As(err, &state):
		respondError(c, http.StatusUnprocessableEntity, state.Error())
	default:
		h.mapOrderError(c, err)
	}
}
