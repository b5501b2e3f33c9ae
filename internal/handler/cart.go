package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"github.com/farisdwi28/petneeds/internal/domain/cart"
	"github.com/farisdwi28/petneeds/internal/domain/product"
)

type cartLineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type cartLineResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCartLineResponse(l *cart.Line) cartLineResponse {
	return cartLineResponse{
		ID:        l.ID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UpdatedAt: l.UpdatedAt,
	}
}

// GetCart lists the caller's cart lines.
func (h *Handler) GetCart(c *gin.Context) {
	lines, err := h.carts.ListForUser(c.Request.Context(), userID(c))
	if err != nil {
		h.internalError(c, err)
		return
	}

	out := make([]cartLineResponse, len(lines))
	for i := range lines {
		out[i] = toCartLineResponse(&lines[i])
	}
	respondData(c, http.StatusOK, out)
}

// AddToCart adds a quantity of one product, merging with an existing
// line for the same product.
func (h *Handler) AddToCart(c *gin.Context) {
	var req cartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()

	// The line keeps no product snapshot, but adding an unknown or
	// inactive product should fail now rather than at checkout.
	p, err := h.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(c, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(c, err)
		return
	}
	if !p.Active {
		respondError(c, http.StatusUnprocessableEntity, "product is not available")
		return
	}

	line := &cart.Line{
		UserID:    userID(c),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}
	if err := h.carts.Upsert(ctx, line); err != nil {
		h.internalError(c, err)
		return
	}
	respondData(c, http.StatusOK, toCartLineResponse(line))
}

// UpdateCartLine overwrites the quantity of one cart line.
func (h *Handler) UpdateCartLine(c *gin.Context) {
	var req cartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	err := h.carts.SetQuantity(c.Request.Context(), userID(c), c.Param("productID"), req.Quantity)
	if err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			respondError(c, http.StatusNotFound, "cart line not found")
			return
		}
		h.internalError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "cart updated")
}

// RemoveCartLine deletes one cart line.
func (h *Handler) RemoveCartLine(c *gin.Context) {
	err := h.carts.Remove(c.Request.Context(), userID(c), c.Param("productID"))
	if err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			respondError(c, http.StatusNotFound, "cart line not found")
			return
		}
		h.internalError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "cart line removed")
}
