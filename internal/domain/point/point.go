// Package point holds per-user point balances spent on orders.
package point

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// ErrNotFound is returned when a user has no point balance.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "point balance not found")

// Point is the spendable balance of one user. Amount is never negative.
type Point struct {
	UserID int64
	Amount decimal.Decimal
}

// InsufficientPointsError reports a deduction larger than the balance.
type InsufficientPointsError struct {
	UserID    int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for user %d (available %s, requested %s)",
		e.UserID, e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return apperr.ErrInsufficientPoints
}

// Repository performs the atomic balance updates and reports rows changed.
// Deduct must only change a balance that covers the amount.
type Repository interface {
	Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error)
	Charge(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error)
	FindByUserID(ctx context.Context, userID int64) (*Point, error)
}
