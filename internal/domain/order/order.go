package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "order not found")

// ErrDuplicateRequest is returned by Repository.Create when another order
// already holds the same idempotency key for the user.
var ErrDuplicateRequest = apperr.New(apperr.ErrInvalidState, "duplicate order request")

// Item is one immutable order line. UnitPrice is the product price captured
// when the line was added.
type Item struct {
	ID          int64
	ProductID   int64
	Quantity    int64
	UnitPrice   decimal.Decimal
	TotalAmount decimal.Decimal
}

// Order is the order aggregate. Its amounts always satisfy
//
//	finalAmount = totalPrice - discountAmount + shippingFee >= 0
//
// and only a PENDING order accepts items or discounts.
type Order struct {
	id             int64
	userID         int64
	status         Status
	items          []Item
	totalPrice     decimal.Decimal
	discountAmount decimal.Decimal
	shippingFee    decimal.Decimal
	finalAmount    decimal.Decimal
	idempotencyKey string
	createdAt      time.Time
	updatedAt      time.Time
}

var _ coupon.Target = (*Order)(nil)

// New starts an empty PENDING order for userID.
func New(userID int64, shippingFee decimal.Decimal) (*Order, error) {
	if shippingFee.IsNegative() {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "shipping fee must not be negative, got %s", shippingFee)
	}
	o := &Order{
		userID:         userID,
		status:         StatusPending,
		totalPrice:     decimal.Zero,
		discountAmount: decimal.Zero,
		shippingFee:    shippingFee,
	}
	o.recalculate()
	return o, nil
}

// Snapshot is the persisted form of an order.
type Snapshot struct {
	ID             int64
	UserID         int64
	Status         Status
	Items          []Item
	TotalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	FinalAmount    decimal.Decimal
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Restore rebuilds an order from storage without re-running its guards.
func Restore(s Snapshot) *Order {
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	return &Order{
		id:             s.ID,
		userID:         s.UserID,
		status:         s.Status,
		items:          items,
		totalPrice:     s.TotalPrice,
		discountAmount: s.DiscountAmount,
		shippingFee:    s.ShippingFee,
		finalAmount:    s.FinalAmount,
		idempotencyKey: s.IdempotencyKey,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}
}

// Snapshot returns a copy of the order's state for storage.
func (o *Order) Snapshot() Snapshot {
	return Snapshot{
		ID:             o.id,
		UserID:         o.userID,
		Status:         o.status,
		Items:          o.Items(),
		TotalPrice:     o.totalPrice,
		DiscountAmount: o.discountAmount,
		ShippingFee:    o.shippingFee,
		FinalAmount:    o.finalAmount,
		IdempotencyKey: o.idempotencyKey,
		CreatedAt:      o.createdAt,
		UpdatedAt:      o.updatedAt,
	}
}

// AddItem appends a line for qty units of productID at unitPrice.
func (o *Order) AddItem(productID int64, unitPrice decimal.Decimal, qty int64) error {
	if err := o.requirePending("add item to"); err != nil {
		return err
	}
	if qty <= 0 {
		return apperr.Newf(apperr.ErrInvalidArgument, "quantity must be positive for product %d, got %d", productID, qty)
	}
	if unitPrice.IsNegative() {
		return apperr.Newf(apperr.ErrInvalidArgument, "price must not be negative for product %d, got %s", productID, unitPrice)
	}

	o.items = append(o.items, Item{
		ProductID:   productID,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		TotalAmount: unitPrice.Mul(decimal.NewFromInt(qty)),
	})
	o.recalculate()
	return nil
}

// ApplyDiscount adds amount to the order's accumulated discount. A zero
// amount is accepted and changes nothing.
func (o *Order) ApplyDiscount(amount decimal.Decimal) error {
	if err := o.requirePending("discount"); err != nil {
		return err
	}
	if amount.IsNegative() {
		return apperr.Newf(apperr.ErrInvalidArgument, "discount must not be negative, got %s", amount)
	}
	next := o.discountAmount.Add(amount)
	if next.GreaterThan(o.totalPrice) {
		return apperr.Newf(apperr.ErrInvalidArgument, "discount %s exceeds order total %s", next, o.totalPrice)
	}

	o.discountAmount = next
	o.recalculate()
	return nil
}

// Confirm moves a PENDING order to CONFIRMED.
func (o *Order) Confirm() error {
	return o.transition(StatusConfirmed)
}

// MarkPersisted records the identifiers storage assigned on insert. itemIDs
// must follow the order of Items.
func (o *Order) MarkPersisted(id int64, itemIDs []int64, createdAt time.Time) {
	o.id = id
	for i := range o.items {
		if i < len(itemIDs) {
			o.items[i].ID = itemIDs[i]
		}
	}
	o.createdAt = createdAt
	o.updatedAt = createdAt
}

// Touch sets the last modification time.
func (o *Order) Touch(at time.Time) {
	o.updatedAt = at
}

// SetIdempotencyKey tags the order with the client supplied request key.
func (o *Order) SetIdempotencyKey(key string) {
	o.idempotencyKey = key
}

func (o *Order) ID() int64                       { return o.id }
func (o *Order) UserID() int64                   { return o.userID }
func (o *Order) Status() Status                  { return o.status }
func (o *Order) TotalPrice() decimal.Decimal     { return o.totalPrice }
func (o *Order) DiscountAmount() decimal.Decimal { return o.discountAmount }
func (o *Order) ShippingFee() decimal.Decimal    { return o.shippingFee }
func (o *Order) FinalAmount() decimal.Decimal    { return o.finalAmount }
func (o *Order) IdempotencyKey() string          { return o.idempotencyKey }
func (o *Order) CreatedAt() time.Time            { return o.createdAt }
func (o *Order) UpdatedAt() time.Time            { return o.updatedAt }

// Items returns a copy of the order lines.
func (o *Order) Items() []Item {
	out := make([]Item, len(o.items))
	copy(out, o.items)
	return out
}

// DiscountBase is the part of the item total not yet discounted.
func (o *Order) DiscountBase() decimal.Decimal {
	return o.totalPrice.Sub(o.discountAmount)
}

func (o *Order) requirePending(action string) error {
	if o.status != StatusPending {
		return apperr.Newf(apperr.ErrInvalidState, "cannot %s order %d in status %s", action, o.id, o.status)
	}
	return nil
}

func (o *Order) transition(next Status) error {
	if !o.status.CanTransition(next) {
		return apperr.Newf(apperr.ErrInvalidState, "order %d cannot move from %s to %s", o.id, o.status, next)
	}
	o.status = next
	return nil
}

func (o *Order) recalculate() {
	total := decimal.Zero
	for _, it := range o.items {
		total = total.Add(it.TotalAmount)
	}
	o.totalPrice = total
	o.finalAmount = total.Sub(o.discountAmount).Add(o.shippingFee)
}

// Repository persists orders. Create assigns the order and item ids via
// MarkPersisted and returns ErrDuplicateRequest when the idempotency key is
// already taken.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*Order, error)
	// LockIdempotencyKey blocks until no other transaction holds the
	// (userID, key) pair and keeps it held until the transaction carried by
	// ctx ends.
	LockIdempotencyKey(ctx context.Context, userID int64, key string) error
}
