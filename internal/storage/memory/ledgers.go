package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
)

var (
	_ stock.Repository  = (*StockRepository)(nil)
	_ point.Repository  = (*PointRepository)(nil)
	_ coupon.Repository = (*CouponRepository)(nil)
)

// StockRepository stores product quantities.
type StockRepository struct {
	s *Store
}

// Decrease subtracts qty only when the quantity covers it.
func (r *StockRepository) Decrease(ctx context.Context, productID, qty int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.stock[productID]
	if !ok || q < qty {
		return 0, nil
	}
	r.s.stock[productID] = q - qty
	record(ctx, func() { r.s.stock[productID] += qty })
	return 1, nil
}

// Increase adds qty.
func (r *StockRepository) Increase(ctx context.Context, productID, qty int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.stock[productID]; !ok {
		return 0, nil
	}
	r.s.stock[productID] += qty
	record(ctx, func() { r.s.stock[productID] -= qty })
	return 1, nil
}

// FindByProductID returns the current quantity.
func (r *StockRepository) FindByProductID(_ context.Context, productID int64) (*stock.Stock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.stock[productID]
	if !ok {
		return nil, stock.ErrNotFound
	}
	return &stock.Stock{ProductID: productID, Quantity: q}, nil
}

// PointRepository stores point balances.
type PointRepository struct {
	s *Store
}

// Deduct subtracts amount only when the balance covers it.
func (r *PointRepository) Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.points[userID]
	if !ok || b.LessThan(amount) {
		return 0, nil
	}
	r.s.points[userID] = b.Sub(amount)
	record(ctx, func() { r.s.points[userID] = r.s.points[userID].Add(amount) })
	return 1, nil
}

// Charge adds amount.
func (r *PointRepository) Charge(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.points[userID]
	if !ok {
		return 0, nil
	}
	r.s.points[userID] = b.Add(amount)
	record(ctx, func() { r.s.points[userID] = r.s.points[userID].Sub(amount) })
	return 1, nil
}

// FindByUserID returns the balance.
func (r *PointRepository) FindByUserID(_ context.Context, userID int64) (*point.Point, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.points[userID]
	if !ok {
		return nil, point.ErrNotFound
	}
	return &point.Point{UserID: userID, Amount: b}, nil
}

// CouponRepository stores coupons.
type CouponRepository struct {
	s *Store
}

// FindByID returns a coupon, soft-deleted ones included.
func (r *CouponRepository) FindByID(_ context.Context, id int64) (*coupon.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return cloneCoupon(c), nil
}

// MarkUsed flips an unused coupon of userID to used by orderID.
func (r *CouponRepository) MarkUsed(ctx context.Context, id, orderID, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.coupons[id]
	if !ok || c.Used || c.OrderID != nil || c.UserID != userID || c.DeletedAt != nil {
		return 0, nil
	}
	c.Used = true
	c.OrderID = &orderID
	r.s.coupons[id] = c
	record(ctx, func() {
		c := r.s.coupons[id]
		c.Used = false
		c.OrderID = nil
		r.s.coupons[id] = c
	})
	return 1, nil
}

// Create stores c with a new id.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.coupon++
	c.ID = r.s.seq.coupon
	c.CreatedAt = r.s.now()
	r.s.coupons[c.ID] = *cloneCoupon(*c)

	id := c.ID
	record(ctx, func() { delete(r.s.coupons, id) })
	return nil
}

// ListByUser returns the user's undeleted coupons ordered by id.
func (r *CouponRepository) ListByUser(_ context.Context, userID int64, onlyAvailable bool) ([]coupon.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []coupon.Coupon
	for _, c := range r.s.coupons {
		if c.UserID != userID || c.DeletedAt != nil {
			continue
		}
		if onlyAvailable && !c.Available() {
			continue
		}
		out = append(out, *cloneCoupon(c))
	}
	slices.SortFunc(out, func(a, b coupon.Coupon) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func cloneCoupon(c coupon.Coupon) *coupon.Coupon {
	if c.OrderID != nil {
		id := *c.OrderID
		c.OrderID = &id
	}
	if c.DeletedAt != nil {
		at := *c.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}
