package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"github.com/farisdwi28/petneeds/internal/domain/product"
)

type productResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Description   string `json:"description,omitempty"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
	Active        bool   `json:"active"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Description:   p.Description,
		Price:         p.Price.StringFixed(2),
		StockQuantity: p.StockQuantity,
		Active:        p.Active,
	}
}

// ListProducts returns the live catalog.
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}

	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	respondData(c, http.StatusOK, out)
}

// GetProduct returns one product by id.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(c, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(c, err)
		return
	}
	respondData(c, http.StatusOK, toProductResponse(p))
}
