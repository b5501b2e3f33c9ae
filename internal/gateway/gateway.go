// Package gateway talks to the external payment gateway: transaction
// creation, status pulls, and parsing of the asynchronous status
// notifications the gateway pushes at us. The gateway holds the
// authoritative transaction state; this package only mirrors its wire
// contract and never interprets it.
package gateway

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnavailable marks a dependency failure: the gateway could not be
// reached or answered outside its contract. Callers treat it as
// retryable and must not persist partial state.
var ErrUnavailable = errors.New("payment gateway unavailable")

// ChargeRequest asks the gateway to create a transaction keyed by the
// order number.
type ChargeRequest struct {
	OrderRef    string
	GrossAmount decimal.Decimal
	CustomerID  string
}

// ChargeResponse carries the artifacts the customer needs to complete
// payment, plus the raw body for the audit trail.
type ChargeResponse struct {
	Token       string
	RedirectURL string
	Raw         []byte
}

// Notification is a gateway-reported transaction status, arriving either
// as a webhook push or as a GetStatus pull. Fields beyond OrderRef and
// TransactionStatus are optional; empty means "not supplied".
type Notification struct {
	OrderRef          string
	TransactionID     string
	TransactionStatus string
	FraudStatus       string
	PaymentType       string
	StatusCode        string
	GrossAmount       string
	SignatureKey      string
	SettlementTime    *time.Time
	Raw               []byte
}

// Client is the collaborator contract. Implementations must bound every
// call with a timeout; a slow gateway is an ErrUnavailable, not a hang.
type Client interface {
	CreateTransaction(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	GetStatus(ctx context.Context, orderRef string) (*Notification, error)
}
