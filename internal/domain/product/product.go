package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "product not found")

// Product is a catalog entry that can be ordered while it is sellable.
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Sellable bool
}

// NotSellableError indicates a product that exists but cannot be ordered.
type NotSellableError struct {
	ProductID int64
}

func (e *NotSellableError) Error() string {
	return fmt.Sprintf("product %d is not sellable", e.ProductID)
}

func (e *NotSellableError) Unwrap() error {
	return apperr.ErrInvalidState
}

// Finder looks products up by id.
type Finder interface {
	FindByID(ctx context.Context, id int64) (*Product, error)
}

// Repository adds catalog writes used by seeding and tests. Creating a
// product also creates its stock row at zero.
type Repository interface {
	Finder
	Create(ctx context.Context, p *Product) error
}
