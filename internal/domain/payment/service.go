package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/farisdwi28/petneeds/internal/domain/order"
	"github.com/farisdwi28/petneeds/internal/events"
	"github.com/farisdwi28/petneeds/internal/gateway"
)

// Service implements payment initiation and notification reconciliation.
// The gateway client is injected so tests (and the admin sync path) can
// substitute one without process-wide state.
type Service struct {
	orders   order.Repository
	payments Repository
	gw       gateway.Client
	events   events.Publisher
	now      func() time.Time
}

// NewService creates a payment Service with the required collaborators.
func NewService(
	orders order.Repository,
	payments Repository,
	gw gateway.Client,
	publisher events.Publisher,
) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		gw:       gw,
		events:   publisher,
		now:      time.Now,
	}
}

// Initiate creates a pending payment for the caller's order and requests
// a gateway transaction keyed by the order number.
//
// The gateway call happens outside any store transaction: on gateway
// failure no payment row exists and the order stays re-attemptable. A
// crash between gateway success and the local insert is recoverable via
// the admin sync path.
func (s *Service) Initiate(ctx context.Context, userID, orderNumber string) (*Payment, error) {
	o, err := s.orders.GetByNumberForUser(ctx, userID, orderNumber)
	if err != nil {
		return nil, err
	}

	if _, err := s.payments.GetByOrderID(ctx, o.ID); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check existing payment")
	}

	if o.Status != order.StatusPending {
		return nil, &InvalidOrderStateError{Current: string(o.Status)}
	}

	charge, err := s.gw.CreateTransaction(ctx, gateway.ChargeRequest{
		OrderRef:    o.Number,
		GrossAmount: o.TotalAmount,
		CustomerID:  userID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway transaction")
	}

	p := &Payment{
		ID:              uuid.New().String(),
		OrderID:         o.ID,
		OrderNumber:     o.Number,
		UserID:          userID,
		GatewayOrderID:  o.Number,
		Amount:          o.TotalAmount,
		Status:          StatusPending,
		Token:           charge.Token,
		RedirectURL:     charge.RedirectURL,
		GatewayResponse: charge.Raw,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// HandleNotification reconciles one gateway notification against payment
// and order state. It is idempotent: a repeated notification re-applies
// the same transition (a no-op beyond the audit log append) and reports
// success, so the gateway stops retrying.
func (s *Service) HandleNotification(ctx context.Context, n *gateway.Notification) (*Payment, error) {
	p, err := s.payments.FindForNotification(ctx, n.OrderRef, n.TransactionID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, p, n)
}

// Sync pulls the authoritative status from the gateway and reconciles it
// through the same transition path as a webhook. It is the compensating
// action for lost notifications and for the crash window in Initiate.
func (s *Service) Sync(ctx context.Context, orderNumber string) (*Payment, error) {
	p, err := s.payments.GetByOrderNumber(ctx, orderNumber)
	if errors.Is(err, ErrNotFound) {
		return s.recoverPayment(ctx, orderNumber)
	}
	if err != nil {
		return nil, err
	}

	ref := p.GatewayOrderID
	if ref == "" {
		ref = p.OrderNumber
	}
	n, err := s.gw.GetStatus(ctx, ref)
	if err != nil {
		return nil, errors.Wrap(err, "pull gateway status")
	}
	return s.apply(ctx, p, n)
}

// recoverPayment covers a crash between gateway transaction creation and
// the local insert in Initiate: the gateway holds a transaction keyed by
// the order number but no payment row exists, so webhooks for it resolve
// to nothing. The row is recreated from the gateway's authoritative
// state, then the current status is applied through the normal
// transition path.
func (s *Service) recoverPayment(ctx context.Context, orderNumber string) (*Payment, error) {
	o, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	n, err := s.gw.GetStatus(ctx, o.Number)
	if err != nil {
		return nil, errors.Wrap(err, "pull gateway status")
	}

	p := &Payment{
		ID:              uuid.New().String(),
		OrderID:         o.ID,
		OrderNumber:     o.Number,
		UserID:          o.UserID,
		GatewayOrderID:  o.Number,
		Amount:          o.TotalAmount,
		Status:          StatusPending,
		GatewayResponse: n.Raw,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.apply(ctx, p, n)
}

// GetForUser returns the payment for an order scoped to its owner.
func (s *Service) GetForUser(ctx context.Context, userID, orderNumber string) (*Payment, error) {
	return s.payments.GetByOrderNumberForUser(ctx, userID, orderNumber)
}

func (s *Service) apply(ctx context.Context, p *Payment, n *gateway.Notification) (*Payment, error) {
	tr, ok := ResolveTransition(Status(n.TransactionStatus))
	if !ok {
		// Still audit the notification: the log records everything the
		// gateway ever sent, understood or not.
		if err := s.payments.AppendNotification(ctx, p.ID, n); err != nil {
			return nil, errors.Wrap(err, "append notification")
		}
		return nil, ErrUnknownStatus
	}

	applied, err := s.payments.ApplyNotification(ctx, p.ID, n, tr, s.now())
	if err != nil {
		return nil, err
	}

	if tr.OrderPaymentStatus == order.PaymentPaid {
		s.events.OrderPaid(ctx, events.OrderEvent{
			OrderNumber:   applied.OrderNumber,
			UserID:        applied.UserID,
			TotalAmount:   applied.Amount.String(),
			Status:        string(order.StatusConfirmed),
			PaymentStatus: string(order.PaymentPaid),
			OccurredAt:    s.now().UTC(),
		})
	}
	return applied, nil
}
