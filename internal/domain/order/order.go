package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. Delivered and cancelled are
// terminal: no further lifecycle transition is accepted, though the
// payment status may still move to refunded.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is the order-level view of payment progress.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// lifecycle enumerates the transitions the admin status endpoint accepts.
// Webhook-driven moves (pending→confirmed, pending→cancelled) and customer
// cancellation happen inside their own transactions and bypass this table.
var lifecycle = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
}

// CanTransition reports whether an order may move from one lifecycle
// status to the next.
func CanTransition(from, next Status) bool {
	for _, s := range lifecycle[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Sentinel errors for order operations.
var (
	ErrNotFound        = errors.New("order not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrNumberTaken     = errors.New("order number already taken")
	ErrNumberExhausted = errors.New("could not allocate a unique order number")
	ErrInvalidStatus   = errors.New("unknown order status")
)

// UnavailableProductError indicates a cart line references a product that
// no longer exists or is no longer active.
type UnavailableProductError struct {
	ProductID string
	Name      string
}

func (e *UnavailableProductError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("product %q is not available", e.Name)
	}
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InsufficientStockError indicates a requested quantity exceeds the
// product's current stock.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// InvalidStateError indicates an operation is not permitted in the
// order's current lifecycle state.
type InvalidStateError struct {
	Current Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("operation not permitted while order is %s", e.Current)
}

// Order is the aggregate created by checkout: header plus line items,
// the unit of consistency for inventory reservation.
type Order struct {
	ID             string
	Number         string
	UserID         string
	AddressID      string
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	Status         Status
	PaymentStatus  PaymentStatus
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is an immutable snapshot of product data at order time. Later
// catalog changes never alter historical orders.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	ProductSKU  string
	UnitPrice   decimal.Decimal
	Quantity    int
	TotalPrice  decimal.Decimal
}

// Repository defines persistence for orders. CreateWithReservation and
// CancelWithRestock are single atomic units: either every effect commits
// or none does.
type Repository interface {
	// CreateWithReservation inserts the order header and items, decrements
	// each product's stock (failing with InsufficientStockError when a
	// decrement would go below zero), and deletes the consumed cart lines,
	// all in one transaction. Returns ErrNumberTaken when the order number
	// collides with an existing one.
	CreateWithReservation(ctx context.Context, o *Order, cartLineIDs []string) error

	// CancelWithRestock marks the order cancelled, flips a pending payment
	// status to failed, and returns every item's quantity to its product's
	// stock in one transaction. Returns InvalidStateError unless the order
	// is currently pending or confirmed.
	CancelWithRestock(ctx context.Context, orderID string) error

	// UpdateStatus applies an admin lifecycle transition, re-checking the
	// expected current status inside the statement.
	UpdateStatus(ctx context.Context, orderID string, from, next Status) error

	GetByNumber(ctx context.Context, number string) (*Order, error)
	GetByNumberForUser(ctx context.Context, userID, number string) (*Order, error)
	ListForUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, limit, offset int) ([]Order, error)
}
