package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// Ledger issues coupons and redeems them exactly once.
type Ledger struct {
	repo Repository
}

// NewLedger returns a Ledger backed by repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Check verifies, without changing anything, that couponID exists, belongs
// to userID and carries a usable discount rule. Availability is decided
// later by Redeem.
func (l *Ledger) Check(ctx context.Context, couponID, userID int64) (*Coupon, error) {
	c, err := l.find(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, &NotOwnerError{CouponID: couponID, UserID: userID}
	}
	if err := c.Type.Validate(c.Value); err != nil {
		return nil, errors.Wrapf(err, "coupon %d", couponID)
	}
	return c, nil
}

// Redeem marks couponID used by orderID. Exactly one of any number of
// concurrent redemptions of the same coupon succeeds; the others get
// ErrCouponUnavailable.
func (l *Ledger) Redeem(ctx context.Context, couponID, orderID, userID int64) (*Coupon, error) {
	c, err := l.find(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, &NotOwnerError{CouponID: couponID, UserID: userID}
	}

	n, err := l.repo.MarkUsed(ctx, couponID, orderID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "mark coupon used")
	}
	if n == 0 {
		return nil, &UnavailableError{CouponID: couponID}
	}

	c.Used = true
	c.OrderID = &orderID
	return c, nil
}

// Apply redeems couponID for target and applies the resulting discount to
// it. The discount is computed on the target's remaining discountable
// amount, so stacking coupons never discounts more than the item total.
func (l *Ledger) Apply(ctx context.Context, couponID int64, target Target) (decimal.Decimal, error) {
	c, err := l.Redeem(ctx, couponID, target.ID(), target.UserID())
	if err != nil {
		return decimal.Zero, err
	}

	amount, err := c.Discount(target.DiscountBase())
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "coupon %d", couponID)
	}
	if err := target.ApplyDiscount(amount); err != nil {
		return decimal.Zero, errors.Wrapf(err, "apply coupon %d", couponID)
	}
	return amount, nil
}

// Issue creates a new unused coupon for a user.
func (l *Ledger) Issue(ctx context.Context, userID int64, t Type, value decimal.Decimal) (*Coupon, error) {
	if err := t.Validate(value); err != nil {
		return nil, err
	}
	c := &Coupon{
		UserID: userID,
		Type:   t,
		Value:  value,
	}
	if err := l.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Available lists the coupons userID can still redeem.
func (l *Ledger) Available(ctx context.Context, userID int64) ([]Coupon, error) {
	cs, err := l.repo.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return cs, nil
}

func (l *Ledger) find(ctx context.Context, couponID int64) (*Coupon, error) {
	c, err := l.repo.FindByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "coupon", Key: couponID}
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	return c, nil
}
