package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farisdwi28/petneeds/internal/domain/payment"
	"github.com/farisdwi28/petneeds/internal/gateway"
)

// paymentColumns joins orders for the order number; nullable text columns
// come back as empty strings.
const paymentColumns = `p.id, p.order_id, o.order_number, p.user_id,
	COALESCE(p.gateway_order_id, ''), COALESCE(p.gateway_transaction_id, ''),
	p.amount, p.status, COALESCE(p.fraud_status, ''), COALESCE(p.payment_type, ''),
	p.token, p.redirect_url, p.gateway_response, p.payment_date, p.expiry_time,
	p.created_at, p.updated_at`

const paymentFrom = ` FROM payments p JOIN orders o ON o.id = p.order_id
	WHERE p.deleted_at IS NULL AND `

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
//
// ApplyNotification is the only mutation path after creation. It locks
// the payment row for the duration of the merge so concurrent webhook
// deliveries and admin syncs serialize instead of interleaving.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a pending payment. The unique constraint on order_id is
// the authority on "one payment per order"; a violation surfaces as
// ErrAlreadyExists regardless of what the caller checked beforehand.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, user_id, gateway_order_id, gateway_transaction_id,
			amount, status, token, redirect_url, gateway_response)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.UserID, p.GatewayOrderID, p.GatewayTransactionID,
		p.Amount, p.Status, p.Token, p.RedirectURL, p.GatewayResponse)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err, "payments_order_id_key") {
			return payment.ErrAlreadyExists
		}
		return errors.Wrap(err, "insert payment")
	}
	return nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.getOne(ctx, r.pool, `p.order_id = $1`, orderID)
}

func (r *PaymentRepository) GetByOrderNumber(ctx context.Context, number string) (*payment.Payment, error) {
	return r.getOne(ctx, r.pool, `o.order_number = $1`, number)
}

func (r *PaymentRepository) GetByOrderNumberForUser(ctx context.Context, userID, number string) (*payment.Payment, error) {
	return r.getOne(ctx, r.pool, `o.order_number = $1 AND p.user_id = $2`, number, userID)
}

// FindForNotification resolves a notification to a payment. The order
// reference may be our internal order id or the gateway's own; the
// transaction id covers notifications sent for a renamed reference.
func (r *PaymentRepository) FindForNotification(ctx context.Context, orderRef, transactionID string) (*payment.Payment, error) {
	conds := []struct {
		cond string
		arg  string
	}{
		{`p.order_id = $1`, orderRef},
		{`p.gateway_order_id = $1`, orderRef},
		{`o.order_number = $1`, orderRef},
		{`p.gateway_transaction_id = $1`, transactionID},
	}
	for _, c := range conds {
		if c.arg == "" {
			continue
		}
		p, err := r.getOne(ctx, r.pool, c.cond, c.arg)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
	}
	return nil, payment.ErrNotFound
}

// AppendNotification records a raw notification in the audit log without
// touching payment state. Used for statuses outside the contract.
func (r *PaymentRepository) AppendNotification(ctx context.Context, paymentID string, n *gateway.Notification) error {
	return appendNotification(ctx, r.pool, paymentID, n)
}

// ApplyNotification merges one gateway notification into the payment and
// its order inside a single transaction:
//
//  1. lock the payment row,
//  2. append the raw notification to the audit log,
//  3. overwrite the payment status with the gateway's, retaining prior
//     fraud status, payment type and transaction id when the incoming
//     notification omits them,
//  4. update the order's payment status, and its lifecycle status when
//     it is still pending.
func (r *PaymentRepository) ApplyNotification(ctx context.Context, paymentID string, n *gateway.Notification, tr payment.Transition, now time.Time) (*payment.Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	var orderID string
	row := tx.QueryRow(ctx,
		`SELECT order_id FROM payments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, paymentID)
	if err := row.Scan(&orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrap(err, "lock payment")
	}

	if err := appendNotification(ctx, tx, paymentID, n); err != nil {
		return nil, err
	}

	var paymentDate, expiryTime *time.Time
	if tr.SetPaymentDate {
		paymentDate = &now
		if n.SettlementTime != nil {
			paymentDate = n.SettlementTime
		}
	}
	if tr.SetExpiryTime {
		expiryTime = &now
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    fraud_status = COALESCE(NULLIF($3, ''), fraud_status),
		    payment_type = COALESCE(NULLIF($4, ''), payment_type),
		    gateway_transaction_id = COALESCE(NULLIF($5, ''), gateway_transaction_id),
		    gateway_response = COALESCE($6, gateway_response),
		    payment_date = COALESCE($7, payment_date),
		    expiry_time = COALESCE($8, expiry_time),
		    updated_at = now()
		WHERE id = $1`,
		paymentID, n.TransactionStatus, n.FraudStatus, n.PaymentType,
		n.TransactionID, n.Raw, paymentDate, expiryTime)
	if err != nil {
		return nil, errors.Wrap(err, "update payment")
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2,
		    status = CASE WHEN status = 'pending' AND $3 <> '' THEN $3 ELSE status END,
		    updated_at = now()
		WHERE id = $1`,
		orderID, tr.OrderPaymentStatus, tr.OrderStatusWhenPending)
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	p, err := r.getOne(ctx, tx, `p.id = $1`, paymentID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return p, nil
}

// querier is the overlap of pgxpool.Pool and pgx.Tx the read and append
// helpers need, so they run both inside and outside transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendNotification(ctx context.Context, q querier, paymentID string, n *gateway.Notification) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payment_notifications (id, payment_id, transaction_status, gateway_transaction_id, raw_body)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		uuid.NewString(), paymentID, n.TransactionStatus, n.TransactionID, n.Raw)
	return errors.Wrap(err, "append notification")
}

func (r *PaymentRepository) getOne(ctx context.Context, q querier, cond string, args ...any) (*payment.Payment, error) {
	row := q.QueryRow(ctx, `SELECT `+paymentColumns+paymentFrom+cond, args...)

	var p payment.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.OrderNumber, &p.UserID,
		&p.GatewayOrderID, &p.GatewayTransactionID,
		&p.Amount, &p.Status, &p.FraudStatus, &p.PaymentType,
		&p.Token, &p.RedirectURL, &p.GatewayResponse, &p.PaymentDate, &p.ExpiryTime,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrap(err, "get payment")
	}
	return &p, nil
}
