package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farisdwi28/petneeds/internal/domain/cart"
)

const cartColumns = `id, user_id, product_id, quantity, updated_at`

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) ListForUser(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cartColumns+` FROM cart_lines WHERE user_id = $1 ORDER BY updated_at`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	defer rows.Close()

	return scanLines(rows)
}

// GetForUser returns the requested lines and fails with ErrLineNotFound
// when any of them is missing or owned by another user. Repeated IDs in
// the request count once.
func (r *CartRepository) GetForUser(ctx context.Context, userID string, lineIDs []string) ([]cart.Line, error) {
	ids := dedupe(lineIDs)

	rows, err := r.pool.Query(ctx,
		`SELECT `+cartColumns+` FROM cart_lines WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get cart lines")
	}
	defer rows.Close()

	lines, err := scanLines(rows)
	if err != nil {
		return nil, err
	}
	if len(lines) != len(ids) {
		return nil, cart.ErrLineNotFound
	}
	return lines, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (r *CartRepository) Upsert(ctx context.Context, line *cart.Line) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cart_lines (id, user_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING `+cartColumns,
		uuid.NewString(), line.UserID, line.ProductID, line.Quantity)

	if err := row.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.UpdatedAt); err != nil {
		return errors.Wrap(err, "upsert cart line")
	}
	return nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cart_lines SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2`,
		userID, productID, quantity)
	if err != nil {
		return errors.Wrap(err, "set cart quantity")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (r *CartRepository) Remove(ctx context.Context, userID, productID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`,
		userID, productID)
	if err != nil {
		return errors.Wrap(err, "remove cart line")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func scanLines(rows pgx.Rows) ([]cart.Line, error) {
	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan cart line")
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
