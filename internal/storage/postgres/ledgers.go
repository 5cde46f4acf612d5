package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
)

const (
	decreaseStockSQL = `UPDATE stocks SET quantity = quantity - $2, updated_at = now()
		WHERE product_id = $1 AND quantity >= $2`

	increaseStockSQL = `UPDATE stocks SET quantity = quantity + $2, updated_at = now()
		WHERE product_id = $1`

	findStockSQL = `SELECT product_id, quantity FROM stocks WHERE product_id = $1`

	deductPointsSQL = `UPDATE points SET amount = amount - $2, updated_at = now()
		WHERE user_id = $1 AND amount >= $2`

	chargePointsSQL = `UPDATE points SET amount = amount + $2, updated_at = now()
		WHERE user_id = $1`

	findPointsSQL = `SELECT user_id, amount FROM points WHERE user_id = $1`

	couponColumns = `id, user_id, coupon_type, discount_value, is_used, order_id, created_at, deleted_at`

	findCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	markCouponUsedSQL = `UPDATE coupons SET is_used = TRUE, order_id = $2
		WHERE id = $1 AND user_id = $3 AND is_used = FALSE AND order_id IS NULL AND deleted_at IS NULL`

	createCouponSQL = `INSERT INTO coupons (user_id, coupon_type, discount_value)
		VALUES ($1, $2, $3) RETURNING id, created_at`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE user_id = $1 AND deleted_at IS NULL AND (NOT $2 OR is_used = FALSE)
		ORDER BY id`
)

var (
	_ stock.Repository  = (*StockRepository)(nil)
	_ point.Repository  = (*PointRepository)(nil)
	_ coupon.Repository = (*CouponRepository)(nil)
)

// StockRepository implements stock.Repository backed by PostgreSQL.
type StockRepository struct {
	db *DB
}

// NewStockRepository returns a StockRepository that uses db.
func NewStockRepository(db *DB) *StockRepository {
	return &StockRepository{db: db}
}

// Decrease subtracts qty when the stored quantity covers it.
func (r *StockRepository) Decrease(ctx context.Context, productID, qty int64) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, decreaseStockSQL, productID, qty)
	if err != nil {
		return 0, fmt.Errorf("decreasing stock of product %d: %w", productID, err)
	}
	return tag.RowsAffected(), nil
}

// Increase adds qty.
func (r *StockRepository) Increase(ctx context.Context, productID, qty int64) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, increaseStockSQL, productID, qty)
	if err != nil {
		return 0, fmt.Errorf("increasing stock of product %d: %w", productID, err)
	}
	return tag.RowsAffected(), nil
}

// FindByProductID returns the stock row of a product.
func (r *StockRepository) FindByProductID(ctx context.Context, productID int64) (*stock.Stock, error) {
	var s stock.Stock
	err := r.db.q(ctx).QueryRow(ctx, findStockSQL, productID).Scan(&s.ProductID, &s.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stock.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock of product %d: %w", productID, err)
	}
	return &s, nil
}

// PointRepository implements point.Repository backed by PostgreSQL.
type PointRepository struct {
	db *DB
}

// NewPointRepository returns a PointRepository that uses db.
func NewPointRepository(db *DB) *PointRepository {
	return &PointRepository{db: db}
}

// Deduct subtracts amount when the balance covers it.
func (r *PointRepository) Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, deductPointsSQL, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("deducting points of user %d: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

// Charge adds amount.
func (r *PointRepository) Charge(ctx context.Context, userID int64, amount decimal.Decimal) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, chargePointsSQL, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("charging points of user %d: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

// FindByUserID returns the balance of a user.
func (r *PointRepository) FindByUserID(ctx context.Context, userID int64) (*point.Point, error) {
	var p point.Point
	err := r.db.q(ctx).QueryRow(ctx, findPointsSQL, userID).Scan(&p.UserID, &p.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, point.ErrNotFound
		}
		return nil, fmt.Errorf("getting points of user %d: %w", userID, err)
	}
	return &p, nil
}

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository that uses db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByID returns a coupon, including a soft-deleted one. MarkUsed is what
// refuses to redeem a deleted coupon.
func (r *CouponRepository) FindByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, findCouponSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %d: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %d: %w", id, err)
	}
	return &c, nil
}

// MarkUsed binds an unused coupon of userID to orderID.
func (r *CouponRepository) MarkUsed(ctx context.Context, id, orderID, userID int64) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, markCouponUsedSQL, id, orderID, userID)
	if err != nil {
		return 0, fmt.Errorf("marking coupon %d used: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// Create issues c.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.db.q(ctx).QueryRow(ctx, createCouponSQL, c.UserID, string(c.Type), c.Value).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating coupon for user %d: %w", c.UserID, err)
	}
	return nil
}

// ListByUser returns a user's undeleted coupons ordered by id.
func (r *CouponRepository) ListByUser(ctx context.Context, userID int64, onlyAvailable bool) ([]coupon.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, listCouponsSQL, userID, onlyAvailable)
	if err != nil {
		return nil, fmt.Errorf("listing coupons of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(&c.ID, &c.UserID, &typ, &c.Value, &c.Used, &c.OrderID, &c.CreatedAt, &c.DeletedAt)
	c.Type = coupon.Type(typ)
	return c, err
}
