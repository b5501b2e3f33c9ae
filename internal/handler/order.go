package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"github.com/farisdwi28/petneeds/internal/domain/address"
	"github.com/farisdwi28/petneeds/internal/domain/cart"
	"github.com/farisdwi28/petneeds/internal/domain/order"
	"github.com/farisdwi28/petneeds/internal/metrics"
)

type checkoutRequest struct {
	AddressID   string   `json:"address_id" binding:"required"`
	CartLineIDs []string `json:"cart_line_ids"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	ProductSKU  string `json:"product_sku"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	TotalPrice  string `json:"total_price"`
}

type orderResponse struct {
	Number         string              `json:"order_number"`
	AddressID      string              `json:"address_id"`
	Subtotal       string              `json:"subtotal"`
	ShippingCost   string              `json:"shipping_cost"`
	TaxAmount      string              `json:"tax_amount"`
	DiscountAmount string              `json:"discount_amount"`
	TotalAmount    string              `json:"total_amount"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"payment_status"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ProductSKU:  it.ProductSKU,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Quantity:    it.Quantity,
			TotalPrice:  it.TotalPrice.StringFixed(2),
		}
	}
	return orderResponse{
		Number:         o.Number,
		AddressID:      o.AddressID,
		Subtotal:       o.Subtotal.StringFixed(2),
		ShippingCost:   o.ShippingCost.StringFixed(2),
		TaxAmount:      o.TaxAmount.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		TotalAmount:    o.TotalAmount.StringFixed(2),
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Items:          items,
		CreatedAt:      o.CreatedAt,
	}
}

func toOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}

// Checkout converts the caller's cart (or a subset of it) into an order.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	o, err := h.orderService.Checkout(c.Request.Context(), order.CheckoutRequest{
		UserID:      userID(c),
		AddressID:   req.AddressID,
		CartLineIDs: req.CartLineIDs,
	})
	metrics.RecordCheckout(err == nil)
	if err != nil {
		h.mapOrderError(c, err)
		return
	}
	respondData(c, http.StatusCreated, toOrderResponse(o))
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListForUser(c.Request.Context(), userID(c))
	if err != nil {
		h.internalError(c, err)
		return
	}
	respondData(c, http.StatusOK, toOrderResponses(orders))
}

// GetOrder returns one of the caller's orders by number.
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orderService.Get(c.Request.Context(), userID(c), c.Param("number"))
	if err != nil {
		h.mapOrderError(c, err)
		return
	}
	respondData(c, http.StatusOK, toOrderResponse(o))
}

// CancelOrder cancels one of the caller's orders and restores stock.
func (h *Handler) CancelOrder(c *gin.Context) {
	o, err := h.orderService.Cancel(c.Request.Context(), userID(c), c.Param("number"))
	if err != nil {
		h.mapOrderError(c, err)
		return
	}
	respondData(c, http.StatusOK, toOrderResponse(o))
}

// AdminListOrders returns a page of all orders.
func (h *Handler) AdminListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	orders, err := h.orderService.AdminList(c.Request.Context(), limit, offset)
	if err != nil {
		h.internalError(c, err)
		return
	}
	respondData(c, http.StatusOK, toOrderResponses(orders))
}

// AdminUpdateOrderStatus applies a lifecycle transition to an order.
func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	o, err := h.orderService.AdminUpdateStatus(c.Request.Context(), c.Param("number"), order.Status(req.Status))
	if err != nil {
		if errors.Is(err, order.ErrInvalidStatus) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.mapOrderError(c, err)
		return
	}
	respondData(c, http.StatusOK, toOrderResponse(o))
}

// mapOrderError converts domain errors to HTTP status codes. Anything
// unmapped is a 500.
func (h *Handler) mapOrderError(c *gin.Context, err error) {
	var unavailable *order.UnavailableProductError
	var stock *order.InsufficientStockError
	var state *order.InvalidStateError

	switch {
	case errors.Is(err, order.ErrNotFound):
		respondError(c, http.StatusNotFound, "order not found")
	case errors.Is(err, address.ErrNotFound):
		respondError(c, http.StatusNotFound, "address not found")
	case errors.Is(err, cart.ErrLineNotFound):
		respondError(c, http.StatusNotFound, "cart line not found")
	case errors.Is(err, order.ErrEmptyCart):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNumberExhausted):
		respondError(c, http.StatusConflict, err.Error())
	case errors.As(err, &unavailable):
		respondError(c, http.StatusUnprocessableEntity, unavailable.Error())
	case errors.As(err, &stock):
		respondError(c, http.StatusUnprocessableEntity, stock.Error())
	case errors.As(err, &state):
		respondError(c, http.StatusUnprocessableEntity, state.Error())
	default:
		h.internalError(c, err)
	}
}
