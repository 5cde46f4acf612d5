// Package stock holds per-product on-hand quantities. Quantities change only
// through conditional single-statement updates issued by the Ledger.
package stock

import (
	"context"
	"fmt"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// ErrNotFound is returned when a product has no stock row.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "stock not found")

// Stock is the on-hand quantity of one product.
type Stock struct {
	ProductID int64
	Quantity  int64
}

// InsufficientStockError reports a decrement that would take the quantity
// below zero.
type InsufficientStockError struct {
	ProductID int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (available %d, requested %d)",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return apperr.ErrInsufficientStock
}

// Repository performs the atomic stock updates. Decrease and Increase report
// the number of rows they changed; Decrease must only change a row whose
// quantity covers the request.
type Repository interface {
	Decrease(ctx context.Context, productID, qty int64) (int64, error)
	Increase(ctx context.Context, productID, qty int64) (int64, error)
	FindByProductID(ctx context.Context, productID int64) (*Stock, error)
}
