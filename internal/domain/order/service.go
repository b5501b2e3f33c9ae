package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farisdwi28/petneeds/internal/domain/address"
	"github.com/farisdwi28/petneeds/internal/domain/cart"
	"github.com/farisdwi28/petneeds/internal/domain/product"
	"github.com/farisdwi28/petneeds/internal/events"
)

// numberAttempts bounds order number generation retries. Exhausting the
// attempts fails the checkout without corrupting any state.
const numberAttempts = 5

// CheckoutRequest holds the input for converting a cart into an order.
// An empty CartLineIDs means "the whole cart".
type CheckoutRequest struct {
	UserID      string
	AddressID   string
	CartLineIDs []string
}

// Service implements checkout orchestration, cancellation and order
// queries on top of the repository contracts.
type Service struct {
	addresses address.Repository
	carts     cart.Repository
	products  product.Repository
	orders    Repository
	events    events.Publisher
}

// NewService creates an order Service with the required collaborators.
func NewService(
	addresses address.Repository,
	carts cart.Repository,
	products product.Repository,
	orders Repository,
	publisher events.Publisher,
) *Service {
	return &Service{
		addresses: addresses,
		carts:     carts,
		products:  products,
		orders:    orders,
		events:    publisher,
	}
}

// Checkout converts the user's cart (or a selected subset of it) into
// exactly one order, reserving stock and clearing the consumed lines.
// On failure there is no visible side effect at all.
//
// Every precondition is checked before any mutation; the reservation
// itself is re-guarded inside the store transaction so concurrent
// checkouts can never drive stock below zero.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if _, err := s.addresses.GetForUser(ctx, req.UserID, req.AddressID); err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, address.ErrNotFound
		}
		return nil, errors.Wrap(err, "get address")
	}

	lines, err := s.selectLines(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Validate all lines first: fail fast with no partial effects.
	items := make([]Item, len(lines))
	lineIDs := make([]string, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.Active {
			return nil, &UnavailableProductError{ProductID: l.ProductID, Name: p.Name}
		}
		if l.Quantity > p.StockQuantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: l.Quantity,
				Available: p.StockQuantity,
			}
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		items[i] = Item{
			ID:          uuid.New().String(),
			ProductID:   p.ID,
			ProductName: p.Name,
			ProductSKU:  p.SKU,
			UnitPrice:   p.Price,
			Quantity:    l.Quantity,
			TotalPrice:  lineTotal,
		}
		lineIDs[i] = l.ID
		subtotal = subtotal.Add(lineTotal)
	}

	// Shipping, tax and discount are policy points reserved for future
	// rates; all zero today.
	shipping := decimal.Zero
	tax := decimal.Zero
	discount := decimal.Zero
	total := subtotal.Add(shipping).Add(tax).Sub(discount)

	o := &Order{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    total,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		Items:          items,
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}

	// Retry only on order number collisions; any other failure already
	// rolled the whole reservation back.
	for attempt := 0; attempt < numberAttempts; attempt++ {
		o.Number = NewNumber(time.Now())
		err = s.orders.CreateWithReservation(ctx, o, lineIDs)
		if err == nil {
			s.events.OrderCreated(ctx, orderEvent(o))
			return o, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return nil, err
		}
	}
	return nil, ErrNumberExhausted
}

// selectLines resolves the requested cart subset, or the whole cart when
// no line IDs were given.
func (s *Service) selectLines(ctx context.Context, req CheckoutRequest) ([]cart.Line, error) {
	if len(req.CartLineIDs) == 0 {
		lines, err := s.carts.ListForUser(ctx, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "list cart")
		}
		return lines, nil
	}

	lines, err := s.carts.GetForUser(ctx, req.UserID, req.CartLineIDs)
	if err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			return nil, cart.ErrLineNotFound
		}
		return nil, errors.Wrap(err, "get cart lines")
	}
	return lines, nil
}

// Cancel transitions an order owned by userID to cancelled, restoring
// every line's quantity to its product and failing a still-pending
// payment. Only pending and confirmed orders can be cancelled.
func (s *Service) Cancel(ctx context.Context, userID, number string) (*Order, error) {
	o, err := s.orders.GetByNumberForUser(ctx, userID, number)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return nil, &InvalidStateError{Current: o.Status}
	}

	// The repository re-checks the status inside the transaction, so a
	// concurrent settlement or cancellation loses cleanly here.
	if err := s.orders.CancelWithRestock(ctx, o.ID); err != nil {
		return nil, err
	}

	o.Status = StatusCancelled
	if o.PaymentStatus == PaymentPending {
		o.PaymentStatus = PaymentFailed
	}
	s.events.OrderCancelled(ctx, orderEvent(o))
	return o, nil
}

// Get returns a single order scoped to its owner. Orders belonging to
// other users surface as not found.
func (s *Service) Get(ctx context.Context, userID, number string) (*Order, error) {
	return s.orders.GetByNumberForUser(ctx, userID, number)
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListForUser(ctx, userID)
}

// AdminList returns a page of all orders.
func (s *Service) AdminList(ctx context.Context, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.List(ctx, limit, offset)
}

// AdminUpdateStatus applies a lifecycle transition (confirmed →
// processing → shipped → delivered) on behalf of fulfilment. Terminal
// and unknown transitions are rejected.
func (s *Service) AdminUpdateStatus(ctx context.Context, number string, next Status) (*Order, error) {
	switch next {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
	default:
		return nil, ErrInvalidStatus
	}

	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, next) {
		return nil, &InvalidStateError{Current: o.Status}
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, next); err != nil {
		return nil, err
	}
	o.Status = next
	return o, nil
}

func orderEvent(o *Order) events.OrderEvent {
	return events.OrderEvent{
		OrderNumber:   o.Number,
		UserID:        o.UserID,
		TotalAmount:   o.TotalAmount.String(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		OccurredAt:    time.Now().UTC(),
	}
}
