package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrLineNotFound is returned when a cart line does not exist for the user.
var ErrLineNotFound = errors.New("cart line not found")

// Line is one (user, product) entry in a cart. Quantity is always >= 1;
// removing an item deletes the line instead of zeroing it.
type Line struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	UpdatedAt time.Time
}

// Repository defines persistence operations for cart lines. Upsert adds
// the quantity to an existing line for the same product or creates one.
// Checkout consumes lines through the order store, not through Repository.
type Repository interface {
	ListForUser(ctx context.Context, userID string) ([]Line, error)
	GetForUser(ctx context.Context, userID string, lineIDs []string) ([]Line, error)
	Upsert(ctx context.Context, line *Line) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	Remove(ctx context.Context, userID, productID string) error
}
