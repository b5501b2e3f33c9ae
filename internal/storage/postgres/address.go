package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farisdwi28/petneeds/internal/domain/address"
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// GetForUser returns the user's address, or address.ErrNotFound when the
// address is absent, inactive, soft-deleted or belongs to someone else.
// Those cases are deliberately indistinguishable to the caller.
func (r *AddressRepository) GetForUser(ctx context.Context, userID, addressID string) (*address.Address, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, label, recipient, phone, street, city, province, postal_code, active
		FROM addresses
		WHERE id = $1 AND user_id = $2 AND active AND deleted_at IS NULL`,
		addressID, userID)

	var a address.Address
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Recipient, &a.Phone,
		&a.Street, &a.City, &a.Province, &a.PostalCode, &a.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get address %q", addressID)
	}
	return &a, nil
}
