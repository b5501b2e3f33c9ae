package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or has
// been soft-deleted.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. StockQuantity
// is mutated only through the atomic reserve/restore primitives of the
// order store and never goes negative.
type Product struct {
	ID            string
	Name          string
	SKU           string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Active        bool
}

// Repository defines read operations for the product catalog. Stock
// mutation is deliberately absent: reservations happen inside the order
// store's checkout and cancellation transactions.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
