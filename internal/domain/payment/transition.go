package payment

import "github.com/farisdwi28/petneeds/internal/domain/order"

// Transition is the derived effect of one gateway transaction status.
// Payment.Status always becomes the incoming status itself; the fields
// here describe the knock-on effects.
//
// The whole transition surface lives in this one table so it can be
// read, and tested, in one place. A notification carrying an "earlier"
// status than the current one is applied as-is: the gateway is treated
// as authoritative even when its notifications arrive out of order, so
// a stale pending can move a settled payment back to pending. Tests pin
// this down; a monotonicity guard would be a one-line change here.
type Transition struct {
	// OrderPaymentStatus is written to the order unconditionally.
	OrderPaymentStatus order.PaymentStatus
	// OrderStatusWhenPending is applied to the order only when the order
	// is currently pending; empty means leave the order status alone.
	OrderStatusWhenPending order.Status
	// SetPaymentDate marks the payment as settled at notification time
	// (or at the gateway-supplied settlement time).
	SetPaymentDate bool
	// SetExpiryTime records when the transaction expired.
	SetExpiryTime bool
}

var transitions = map[Status]Transition{
	StatusCapture: {
		OrderPaymentStatus:     order.PaymentPaid,
		OrderStatusWhenPending: order.StatusConfirmed,
		SetPaymentDate:         true,
	},
	StatusSettlement: {
		OrderPaymentStatus:     order.PaymentPaid,
		OrderStatusWhenPending: order.StatusConfirmed,
		SetPaymentDate:         true,
	},
	StatusPending: {
		OrderPaymentStatus: order.PaymentPending,
	},
	StatusCancel: {
		OrderPaymentStatus:     order.PaymentFailed,
		OrderStatusWhenPending: order.StatusCancelled,
	},
	StatusDeny: {
		OrderPaymentStatus:     order.PaymentFailed,
		OrderStatusWhenPending: order.StatusCancelled,
	},
	StatusFailure: {
		OrderPaymentStatus:     order.PaymentFailed,
		OrderStatusWhenPending: order.StatusCancelled,
	},
	StatusExpire: {
		OrderPaymentStatus:     order.PaymentFailed,
		OrderStatusWhenPending: order.StatusCancelled,
		SetExpiryTime:          true,
	},
	StatusRefund: {
		OrderPaymentStatus: order.PaymentRefunded,
	},
	StatusPartialRefund: {
		OrderPaymentStatus: order.PaymentRefunded,
	},
}

// ResolveTransition looks up the effect of a gateway transaction status.
// The second return is false for statuses outside the contract.
func ResolveTransition(s Status) (Transition, bool) {
	tr, ok := transitions[s]
	return tr, ok
}
