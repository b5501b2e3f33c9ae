package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an address does not exist, is inactive,
// is soft-deleted, or belongs to a different user. The cases are not
// distinguished so that ownership cannot be probed.
var ErrNotFound = errors.New("address not found")

// Address is a delivery destination owned by a user. Checkout only needs
// an ownership/active check; address CRUD lives outside the core.
type Address struct {
	ID         string
	UserID     string
	Label      string
	Recipient  string
	Phone      string
	Street     string
	City       string
	Province   string
	PostalCode string
	Active     bool
}

// Repository provides owner-scoped address lookup.
type Repository interface {
	// GetForUser returns the address only when it exists, is active and
	// belongs to userID.
	GetForUser(ctx context.Context, userID, addressID string) (*Address, error)
}
