package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/farisdwi28/petneeds/internal/gateway"
)

// Status mirrors the gateway's transaction status verbatim. The gateway
// is authoritative; this value is never invented locally beyond the
// initial pending.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSettlement    Status = "settlement"
	StatusCapture       Status = "capture"
	StatusCancel        Status = "cancel"
	StatusDeny          Status = "deny"
	StatusExpire        Status = "expire"
	StatusFailure       Status = "failure"
	StatusRefund        Status = "refund"
	StatusPartialRefund Status = "partial_refund"
)

// Fraud statuses the gateway may attach to a notification.
const (
	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

// Sentinel errors for payment operations.
var (
	ErrNotFound      = errors.New("payment not found")
	ErrAlreadyExists = errors.New("payment already exists for this order")
	ErrUnknownStatus = errors.New("unknown transaction status")
)

// InvalidOrderStateError indicates payment initiation was attempted on an
// order that is no longer pending. Distinguished from not-found: the
// order does exist.
type InvalidOrderStateError struct {
	Current string
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("payment cannot be created while order is %s", e.Current)
}

// Payment mirrors the external gateway transaction for exactly one
// order. It is created pending and mutated only by notification merges
// (webhook or admin sync, the same path).
type Payment struct {
	ID                   string
	OrderID              string
	OrderNumber          string
	UserID               string
	GatewayOrderID       string
	GatewayTransactionID string
	Amount               decimal.Decimal
	Status               Status
	FraudStatus          string
	PaymentType          string
	Token                string
	RedirectURL          string
	GatewayResponse      []byte
	PaymentDate          *time.Time
	ExpiryTime           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Repository defines persistence for payments and their notification
// audit log. ApplyNotification is a single read-modify-write transaction
// that locks the payment row, appends the raw notification, and updates
// payment and order state per the resolved transition.
type Repository interface {
	// Create inserts a pending payment. Returns ErrAlreadyExists when the
	// order already has one.
	Create(ctx context.Context, p *Payment) error

	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetByOrderNumber(ctx context.Context, number string) (*Payment, error)
	GetByOrderNumberForUser(ctx context.Context, userID, number string) (*Payment, error)

	// FindForNotification resolves a notification to one payment by
	// trying, in order: internal order id, gateway order id, gateway
	// transaction id.
	FindForNotification(ctx context.Context, orderRef, transactionID string) (*Payment, error)

	// AppendNotification records a raw notification in the audit log
	// outside of any state change.
	AppendNotification(ctx context.Context, paymentID string, n *gateway.Notification) error

	// ApplyNotification appends the notification and applies the
	// transition to the payment and its order in one transaction,
	// returning the refreshed payment.
	ApplyNotification(ctx context.Context, paymentID string, n *gateway.Notification, tr Transition, now time.Time) (*Payment, error)
}
