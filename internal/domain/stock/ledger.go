package stock

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// Ledger reserves and restores product stock.
type Ledger struct {
	repo Repository
}

// NewLedger returns a Ledger backed by repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Decrease takes qty units of productID out of stock in one conditional
// update. When nothing changed, the current row is read only to describe the
// failure.
func (l *Ledger) Decrease(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return apperr.Newf(apperr.ErrInvalidArgument, "decrease quantity must be positive, got %d", qty)
	}

	n, err := l.repo.Decrease(ctx, productID, qty)
	if err != nil {
		return errors.Wrap(err, "decrease stock")
	}
	if n > 0 {
		return nil
	}

	s, err := l.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &apperr.NotFoundError{Entity: "stock for product", Key: productID}
		}
		return errors.Wrap(err, "read stock")
	}
	return &InsufficientStockError{
		ProductID: productID,
		Available: s.Quantity,
		Requested: qty,
	}
}

// Increase returns qty units of productID to stock.
func (l *Ledger) Increase(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return apperr.Newf(apperr.ErrInvalidArgument, "increase quantity must be positive, got %d", qty)
	}

	n, err := l.repo.Increase(ctx, productID, qty)
	if err != nil {
		return errors.Wrap(err, "increase stock")
	}
	if n == 0 {
		return &apperr.NotFoundError{Entity: "stock for product", Key: productID}
	}
	return nil
}

// Get returns the current stock of productID.
func (l *Ledger) Get(ctx context.Context, productID int64) (*Stock, error) {
	s, err := l.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "stock for product", Key: productID}
		}
		return nil, errors.Wrap(err, "get stock")
	}
	return s, nil
}
