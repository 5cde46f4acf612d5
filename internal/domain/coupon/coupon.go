package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// FixedAmount subtracts a fixed amount, capped at the discountable base.
	FixedAmount Type = "FIXED_AMOUNT"
	// Percentage subtracts a percentage of the discountable base.
	Percentage Type = "PERCENTAGE"
)

// ErrNotFound is returned when a coupon does not exist or was deleted.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "coupon not found")

// Coupon is a single-use discount owned by one user. A coupon is unused
// exactly when OrderID is nil, and once used it never becomes unused again.
type Coupon struct {
	ID        int64
	UserID    int64
	Type      Type
	Value     decimal.Decimal
	Used      bool
	OrderID   *int64
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Available reports whether the coupon can still be redeemed.
func (c *Coupon) Available() bool {
	return !c.Used && c.OrderID == nil && c.DeletedAt == nil
}

// UnavailableError reports a coupon that was already used or removed by the
// time its conditional redemption ran.
type UnavailableError struct {
	CouponID int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("coupon %d is already used or unavailable", e.CouponID)
}

func (e *UnavailableError) Unwrap() error {
	return apperr.ErrCouponUnavailable
}

// NotOwnerError reports a coupon presented by a user who does not own it.
type NotOwnerError struct {
	CouponID int64
	UserID   int64
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("coupon %d does not belong to user %d", e.CouponID, e.UserID)
}

func (e *NotOwnerError) Unwrap() error {
	return apperr.ErrNotOwner
}

// Target is an order that coupons can discount.
type Target interface {
	ID() int64
	UserID() int64
	DiscountBase() decimal.Decimal
	ApplyDiscount(amount decimal.Decimal) error
}

// Repository persists coupons. FindByID also returns soft-deleted coupons.
// MarkUsed must set used and order id in one conditional update that matches
// only an unused, undeleted coupon owned by userID, and report the number of
// rows changed.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Coupon, error)
	MarkUsed(ctx context.Context, id, orderID, userID int64) (int64, error)
	Create(ctx context.Context, c *Coupon) error
	ListByUser(ctx context.Context, userID int64, onlyAvailable bool) ([]Coupon, error)
}
