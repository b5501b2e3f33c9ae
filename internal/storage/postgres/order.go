package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farisdwi28/petneeds/internal/domain/order"
)

const orderColumns = `id, order_number, user_id, address_id, subtotal, shipping_cost,
	tax_amount, discount_amount, total_amount, status, payment_status, created_at, updated_at`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
//
// The two multi-statement operations, CreateWithReservation and
// CancelWithRestock, each run in a single transaction so that stock,
// order rows and cart lines can never disagree.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithReservation inserts the order and its items, decrements stock
// for every item and deletes the consumed cart lines atomically.
//
// Stock is reserved with a conditional decrement so two concurrent
// checkouts can never oversell: the UPDATE only matches when enough stock
// remains, and a zero row count is turned into a typed domain error after
// re-reading the product under the transaction's lock.
func (r *OrderRepository) CreateWithReservation(ctx context.Context, o *order.Order, cartLineIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, user_id, address_id, subtotal,
			shipping_cost, tax_amount, discount_amount, total_amount, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		o.ID, o.Number, o.UserID, o.AddressID, o.Subtotal,
		o.ShippingCost, o.TaxAmount, o.DiscountAmount, o.TotalAmount, o.Status, o.PaymentStatus)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return order.ErrNumberTaken
		}
		return errors.Wrap(err, "insert order")
	}

	for i := range o.Items {
		item := &o.Items[i]

		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = now()
			WHERE id = $2 AND active AND deleted_at IS NULL AND stock_quantity >= $1`,
			item.Quantity, item.ProductID)
		if err != nil {
			return errors.Wrapf(err, "reserve stock for product %q", item.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return r.reservationError(ctx, tx, item)
		}

		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OrderID = o.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name,
				product_sku, unit_price, quantity, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, item.OrderID, item.ProductID, item.ProductName,
			item.ProductSKU, item.UnitPrice, item.Quantity, item.TotalPrice)
		if err != nil {
			return errors.Wrap(err, "insert order item")
		}
	}

	if len(cartLineIDs) > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM cart_lines WHERE user_id = $1 AND id = ANY($2)`,
			o.UserID, cartLineIDs)
		if err != nil {
			return errors.Wrap(err, "consume cart lines")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// reservationError distinguishes "product gone or inactive" from "not
// enough stock" after a failed conditional decrement.
func (r *OrderRepository) reservationError(ctx context.Context, tx pgx.Tx, item *order.Item) error {
	var name string
	var stock int
	var active bool
	row := tx.QueryRow(ctx,
		`SELECT name, stock_quantity, active FROM products WHERE id = $1 AND deleted_at IS NULL`,
		item.ProductID)
	if err := row.Scan(&name, &stock, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &order.UnavailableProductError{ProductID: item.ProductID, Name: item.ProductName}
		}
		return errors.Wrapf(err, "inspect product %q", item.ProductID)
	}
	if !active {
		return &order.UnavailableProductError{ProductID: item.ProductID, Name: name}
	}
	return &order.InsufficientStockError{
		ProductID: item.ProductID,
		Name:      name,
		Requested: item.Quantity,
		Available: stock,
	}
}

// CancelWithRestock cancels a pending or confirmed order and returns its
// reserved quantities to stock in one transaction. A pending payment
// status flips to failed; a paid one is left for the refund flow.
func (r *OrderRepository) CancelWithRestock(ctx context.Context, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled',
		    payment_status = CASE WHEN payment_status = 'pending' THEN 'failed' ELSE payment_status END,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL AND status IN ('pending', 'confirmed')`,
		orderID)
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}
	if tag.RowsAffected() == 0 {
		var current order.Status
		row := tx.QueryRow(ctx,
			`SELECT status FROM orders WHERE id = $1 AND deleted_at IS NULL`, orderID)
		if err := row.Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return errors.Wrap(err, "inspect order")
		}
		return &order.InvalidStateError{Current: current}
	}

	_, err = tx.Exec(ctx, `
		UPDATE products p
		SET stock_quantity = p.stock_quantity + i.quantity, updated_at = now()
		FROM order_items i
		WHERE i.order_id = $1 AND p.id = i.product_id`,
		orderID)
	if err != nil {
		return errors.Wrap(err, "restock items")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// UpdateStatus applies an admin lifecycle transition. The expected
// current status is re-checked in the statement so concurrent updates
// cannot skip a step.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, next order.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3 AND deleted_at IS NULL`,
		next, orderID, from)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if tag.RowsAffected() == 0 {
		var current order.Status
		row := r.pool.QueryRow(ctx,
			`SELECT status FROM orders WHERE id = $1 AND deleted_at IS NULL`, orderID)
		if err := row.Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return errors.Wrap(err, "inspect order")
		}
		return &order.InvalidStateError{Current: current}
	}
	return nil
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE order_number = $1 AND deleted_at IS NULL`, number)
}

func (r *OrderRepository) GetByNumberForUser(ctx context.Context, userID, number string) (*order.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE order_number = $1 AND user_id = $2 AND deleted_at IS NULL`, number, userID)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, args ...any) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if err := r.loadItems(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) ListForUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, userID)
}

func (r *OrderRepository) List(ctx context.Context, limit, offset int) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*order.Order, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := r.loadItems(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

// loadItems batch-fetches items for the given orders in one query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*order.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_sku, unit_price, quantity, total_price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, id`, ids)
	if err != nil {
		return errors.Wrap(err, "load order items")
	}
	defer rows.Close()

	for rows.Next() {
		var it order.Item
		err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.ProductSKU, &it.UnitPrice, &it.Quantity, &it.TotalPrice)
		if err != nil {
			return errors.Wrap(err, "scan order item")
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.AddressID, &o.Subtotal, &o.ShippingCost,
		&o.TaxAmount, &o.DiscountAmount, &o.TotalAmount, &o.Status, &o.PaymentStatus,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
