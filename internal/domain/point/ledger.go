package point

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// Ledger charges and spends user points.
type Ledger struct {
	repo Repository
}

// NewLedger returns a Ledger backed by repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Deduct spends amount from the user's balance, failing without side effects
// when the balance does not cover it.
func (l *Ledger) Deduct(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Newf(apperr.ErrInvalidArgument, "deduct amount must be positive, got %s", amount)
	}

	n, err := l.repo.Deduct(ctx, userID, amount)
	if err != nil {
		return errors.Wrap(err, "deduct points")
	}
	if n > 0 {
		return nil
	}

	p, err := l.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &apperr.NotFoundError{Entity: "points of user", Key: userID}
		}
		return errors.Wrap(err, "read points")
	}
	return &InsufficientPointsError{
		UserID:    userID,
		Available: p.Amount,
		Requested: amount,
	}
}

// Charge adds amount to the user's balance.
func (l *Ledger) Charge(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Newf(apperr.ErrInvalidArgument, "charge amount must be positive, got %s", amount)
	}

	n, err := l.repo.Charge(ctx, userID, amount)
	if err != nil {
		return errors.Wrap(err, "charge points")
	}
	if n == 0 {
		return &apperr.NotFoundError{Entity: "points of user", Key: userID}
	}
	return nil
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID int64) (*Point, error) {
	p, err := l.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "points of user", Key: userID}
		}
		return nil, errors.Wrap(err, "get points")
	}
	return p, nil
}
