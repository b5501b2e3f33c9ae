package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farisdwi28/petneeds/internal/domain/order"
	"github.com/farisdwi28/petneeds/internal/events"
	"github.com/farisdwi28/petneeds/internal/gateway"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byNumber map[string]*order.Order
}

func (m *mockOrderRepo) CreateWithReservation(_ context.Context, _ *order.Order, _ []string) error {
	return nil
}

func (m *mockOrderRepo) CancelWithRestock(_ context.Context, _ string) error { return nil }

func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ string, _, _ order.Status) error {
	return nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	o, ok := m.byNumber[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) GetByNumberForUser(_ context.Context, userID, number string) (*order.Order, error) {
	o, ok := m.byNumber[number]
	if !ok || o.UserID != userID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListForUser(_ context.Context, _ string) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) List(_ context.Context, _, _ int) ([]order.Order, error) { return nil, nil }

type mockPaymentRepo struct {
	payments map[string]*Payment // by payment ID
	created  *Payment
	appended []*gateway.Notification

	createErr error
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = p
	if m.payments == nil {
		m.payments = map[string]*Payment{}
	}
	m.payments[p.ID] = p
	return nil
}

func (m *mockPaymentRepo) GetByOrderID(_ context.Context, orderID string) (*Payment, error) {
	for _, p := range m.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) GetByOrderNumber(_ context.Context, number string) (*Payment, error) {
	for _, p := range m.payments {
		if p.OrderNumber == number {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) GetByOrderNumberForUser(_ context.Context, userID, number string) (*Payment, error) {
	for _, p := range m.payments {
		if p.OrderNumber == number && p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) FindForNotification(_ context.Context, orderRef, transactionID string) (*Payment, error) {
	for _, p := range m.payments {
		if p.OrderID == orderRef || p.GatewayOrderID == orderRef ||
			(transactionID != "" && p.GatewayTransactionID == transactionID) {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) AppendNotification(_ context.Context, _ string, n *gateway.Notification) error {
	m.appended = append(m.appended, n)
	return nil
}

// ApplyNotification mimics the store's merge on the in-memory payment.
func (m *mockPaymentRepo) ApplyNotification(_ context.Context, paymentID string, n *gateway.Notification, tr Transition, now time.Time) (*Payment, error) {
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	m.appended = append(m.appended, n)

	p.Status = Status(n.TransactionStatus)
	if n.FraudStatus != "" {
		p.FraudStatus = n.FraudStatus
	}
	if n.PaymentType != "" {
		p.PaymentType = n.PaymentType
	}
	if n.TransactionID != "" {
		p.GatewayTransactionID = n.TransactionID
	}
	if tr.SetPaymentDate {
		d := now
		if n.SettlementTime != nil {
			d = *n.SettlementTime
		}
		p.PaymentDate = &d
	}
	if tr.SetExpiryTime {
		p.ExpiryTime = &now
	}
	return p, nil
}

type mockGateway struct {
	charge    *gateway.ChargeResponse
	chargeErr error
	status    *gateway.Notification
	statusErr error

	lastCharge    gateway.ChargeRequest
	lastStatusRef string
}

func (m *mockGateway) CreateTransaction(_ context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	m.lastCharge = req
	return m.charge, m.chargeErr
}

func (m *mockGateway) GetStatus(_ context.Context, orderRef string) (*gateway.Notification, error) {
	m.lastStatusRef = orderRef
	return m.status, m.statusErr
}

type recordingPublisher struct {
	events.Nop
	paid []events.OrderEvent
}

func (r *recordingPublisher) OrderPaid(_ context.Context, evt events.OrderEvent) {
	r.paid = append(r.paid, evt)
}

// --- Helpers ---

func pendingOrder(number, userID string) *order.Order {
	return &order.Order{
		ID:            "order-" + number,
		Number:        number,
		UserID:        userID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		TotalAmount:   decimal.RequireFromString("41.75"),
	}
}

func pendingPayment(o *order.Order) *Payment {
	return &Payment{
		ID:             "pay-" + o.Number,
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		UserID:         o.UserID,
		GatewayOrderID: o.Number,
		Amount:         o.TotalAmount,
		Status:         StatusPending,
	}
}

// --- Tests ---

func TestInitiate_Success(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	gw := &mockGateway{charge: &gateway.ChargeResponse{
		Token:       "tok-1",
		RedirectURL: "https://pay.example/tok-1",
		Raw:         []byte(`{"token":"tok-1"}`),
	}}
	payments := &mockPaymentRepo{}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, gw, events.Nop{})

	p, err := svc.Initiate(context.Background(), "u1", "PN-1")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "tok-1", p.Token)
	assert.Equal(t, "https://pay.example/tok-1", p.RedirectURL)
	assert.Equal(t, o.ID, p.OrderID)
	assert.True(t, p.Amount.Equal(o.TotalAmount))

	assert.Equal(t, "PN-1", gw.lastCharge.OrderRef)
	assert.True(t, gw.lastCharge.GrossAmount.Equal(o.TotalAmount))
	require.NotNil(t, payments.created)
}

func TestInitiate_WrongUserIsNotFound(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, &mockPaymentRepo{}, &mockGateway{}, events.Nop{})

	_, err := svc.Initiate(context.Background(), "u2", "PN-1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestInitiate_AlreadyExists(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	gw := &mockGateway{}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, gw, events.Nop{})

	_, err := svc.Initiate(context.Background(), "u1", "PN-1")
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Empty(t, gw.lastCharge.OrderRef, "gateway must not be called")
}

func TestInitiate_OrderNotPending(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	o.Status = order.StatusConfirmed
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, &mockPaymentRepo{}, &mockGateway{}, events.Nop{})

	_, err := svc.Initiate(context.Background(), "u1", "PN-1")

	var stateErr *InvalidOrderStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "confirmed", stateErr.Current)
}

func TestInitiate_GatewayFailureLeavesNoPayment(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	gw := &mockGateway{chargeErr: errors.Wrap(gateway.ErrUnavailable, "dial")}
	payments := &mockPaymentRepo{}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, gw, events.Nop{})

	_, err := svc.Initiate(context.Background(), "u1", "PN-1")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Nil(t, payments.created)
}

func TestHandleNotification_Settlement(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	pub := &recordingPublisher{}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, &mockGateway{}, pub)

	settled := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	applied, err := svc.HandleNotification(context.Background(), &gateway.Notification{
		OrderRef:          "PN-1",
		TransactionID:     "tx-1",
		TransactionStatus: "settlement",
		PaymentType:       "bank_transfer",
		FraudStatus:       FraudAccept,
		SettlementTime:    &settled,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSettlement, applied.Status)
	assert.Equal(t, "tx-1", applied.GatewayTransactionID)
	assert.Equal(t, "bank_transfer", applied.PaymentType)
	require.NotNil(t, applied.PaymentDate)
	assert.True(t, applied.PaymentDate.Equal(settled))

	require.Len(t, pub.paid, 1)
	assert.Equal(t, "PN-1", pub.paid[0].OrderNumber)
}

func TestHandleNotification_UnknownPayment(t *testing.T) {
	svc := NewService(&mockOrderRepo{}, &mockPaymentRepo{}, &mockGateway{}, events.Nop{})

	_, err := svc.HandleNotification(context.Background(), &gateway.Notification{
		OrderRef:          "PN-ghost",
		TransactionID:     "tx-1",
		TransactionStatus: "settlement",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHandleNotification_UnknownStatusIsAudited(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, &mockGateway{}, events.Nop{})

	_, err := svc.HandleNotification(context.Background(), &gateway.Notification{
		OrderRef:          "PN-1",
		TransactionID:     "tx-1",
		TransactionStatus: "chargeback",
	})
	require.ErrorIs(t, err, ErrUnknownStatus)

	require.Len(t, payments.appended, 1)
	assert.Equal(t, StatusPending, p.Status, "state must not change")
}

func TestHandleNotification_DuplicateIsIdempotent(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	pub := &recordingPublisher{}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, &mockGateway{}, pub)

	n := &gateway.Notification{
		OrderRef:          "PN-1",
		TransactionID:     "tx-1",
		TransactionStatus: "settlement",
	}
	for range 2 {
		applied, err := svc.HandleNotification(context.Background(), n)
		require.NoError(t, err)
		assert.Equal(t, StatusSettlement, applied.Status)
	}
	// Both deliveries are audited even though the second changed nothing.
	assert.Len(t, payments.appended, 2)
}

func TestHandleNotification_GatewayOrderingIsAuthoritative(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, &mockGateway{}, events.Nop{})

	ctx := context.Background()
	_, err := svc.HandleNotification(ctx, &gateway.Notification{
		OrderRef: "PN-1", TransactionID: "tx-1", TransactionStatus: "settlement",
	})
	require.NoError(t, err)

	// A late pending re-applies as-is: the stored status mirrors the
	// latest notification, not the "furthest" one.
	applied, err := svc.HandleNotification(ctx, &gateway.Notification{
		OrderRef: "PN-1", TransactionID: "tx-1", TransactionStatus: "pending",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, applied.Status)
}

func TestSync_UsesGatewayOrderID(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	p.GatewayOrderID = "gw-777"
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	gw := &mockGateway{status: &gateway.Notification{
		OrderRef:          "gw-777",
		TransactionID:     "tx-9",
		TransactionStatus: "expire",
	}}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, gw, events.Nop{})

	applied, err := svc.Sync(context.Background(), "PN-1")
	require.NoError(t, err)

	assert.Equal(t, "gw-777", gw.lastStatusRef)
	assert.Equal(t, StatusExpire, applied.Status)
	assert.NotNil(t, applied.ExpiryTime)
}

func TestSync_RecreatesMissingPayment(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	payments := &mockPaymentRepo{}
	gw := &mockGateway{status: &gateway.Notification{
		OrderRef:          "PN-1",
		TransactionID:     "tx-5",
		TransactionStatus: "settlement",
		PaymentType:       "bank_transfer",
		Raw:               []byte(`{"transaction_status":"settlement"}`),
	}}
	pub := &recordingPublisher{}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, gw, pub)

	applied, err := svc.Sync(context.Background(), "PN-1")
	require.NoError(t, err)

	require.NotNil(t, payments.created, "payment row must be recreated")
	assert.Equal(t, "PN-1", gw.lastStatusRef)
	assert.Equal(t, o.ID, payments.created.OrderID)
	assert.Equal(t, "PN-1", payments.created.GatewayOrderID)
	assert.True(t, payments.created.Amount.Equal(o.TotalAmount))

	assert.Equal(t, StatusSettlement, applied.Status)
	assert.Equal(t, "tx-5", applied.GatewayTransactionID)
	require.Len(t, pub.paid, 1)
}

func TestSync_GatewayUnavailable(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	gw := &mockGateway{statusErr: errors.Wrap(gateway.ErrUnavailable, "timeout")}
	svc := NewService(&mockOrderRepo{byNumber: map[string]*order.Order{"PN-1": o}}, payments, gw, events.Nop{})

	_, err := svc.Sync(context.Background(), "PN-1")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestGetForUser_WrongUserIsNotFound(t *testing.T) {
	o := pendingOrder("PN-1", "u1")
	p := pendingPayment(o)
	payments := &mockPaymentRepo{payments: map[string]*Payment{p.ID: p}}
	svc := NewService(&mockOrderRepo{}, payments, &mockGateway{}, events.Nop{})

	_, err := svc.GetForUser(context.Background(), "u2", "PN-1")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := svc.GetForUser(context.Background(), "u1", "PN-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}
