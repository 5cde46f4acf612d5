package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
)

const (
	orderColumns = `id, user_id, status, total_price, discount_amount, shipping_fee, final_amount,
		COALESCE(idempotency_key, ''), created_at, updated_at`

	createOrderSQL = `INSERT INTO orders
		(user_id, status, total_price, discount_amount, shipping_fee, final_amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, created_at`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_amount)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	updateOrderSQL = `UPDATE orders
		SET status = $2, total_price = $3, discount_amount = $4, shipping_fee = $5, final_amount = $6, updated_at = $7
		WHERE id = $1`

	findOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	findOrderByKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	lockOrderKeySQL = `SELECT pg_advisory_xact_lock(hashtextextended($2, $1))`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY id DESC`

	listOrderItemsSQL = `SELECT order_id, id, product_id, quantity, unit_price, total_amount
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its items. A second order of the same user
// with the same idempotency key fails with order.ErrDuplicateRequest.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)

		var (
			id   int64
			snap = o.Snapshot()
		)
		err := q.QueryRow(ctx, createOrderSQL,
			snap.UserID, string(snap.Status), snap.TotalPrice, snap.DiscountAmount,
			snap.ShippingFee, snap.FinalAmount, snap.IdempotencyKey,
		).Scan(&id, &snap.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return order.ErrDuplicateRequest
			}
			return fmt.Errorf("creating order for user %d: %w", snap.UserID, err)
		}

		itemIDs := make([]int64, len(snap.Items))
		for i, it := range snap.Items {
			err := q.QueryRow(ctx, createOrderItemSQL,
				id, it.ProductID, it.Quantity, it.UnitPrice, it.TotalAmount,
			).Scan(&itemIDs[i])
			if err != nil {
				return fmt.Errorf("creating item of order %d: %w", id, err)
			}
		}

		o.MarkPersisted(id, itemIDs, snap.CreatedAt)
		return nil
	})
}

// Update stores the mutable order columns.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	snap := o.Snapshot()
	tag, err := r.db.q(ctx).Exec(ctx, updateOrderSQL,
		snap.ID, string(snap.Status), snap.TotalPrice, snap.DiscountAmount,
		snap.ShippingFee, snap.FinalAmount, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", snap.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// FindByID returns the order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.findOne(ctx, findOrderSQL, id)
}

// FindByIdempotencyKey returns the order a user created with key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*order.Order, error) {
	return r.findOne(ctx, findOrderByKeySQL, userID, key)
}

// LockIdempotencyKey takes a transaction-scoped advisory lock on the key. The
// lock is released on commit or rollback, so outside a transaction it only
// waits for the current holder.
func (r *OrderRepository) LockIdempotencyKey(ctx context.Context, userID int64, key string) error {
	if _, err := r.db.q(ctx).Exec(ctx, lockOrderKeySQL, userID, key); err != nil {
		return fmt.Errorf("locking idempotency key of user %d: %w", userID, err)
	}
	return nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	rows, err := r.db.q(ctx).Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	snaps, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	return r.withItems(ctx, snaps)
}

func (r *OrderRepository) findOne(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	snap, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	out, err := r.withItems(ctx, []order.Snapshot{snap})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *OrderRepository) withItems(ctx context.Context, snaps []order.Snapshot) ([]*order.Order, error) {
	if len(snaps) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(snaps))
	byID := make(map[int64]*order.Snapshot, len(snaps))
	for i := range snaps {
		ids[i] = snaps[i].ID
		byID[snaps[i].ID] = &snaps[i]
	}

	rows, err := r.db.q(ctx).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	var (
		orderID int64
		it      order.Item
	)
	_, err = pgx.ForEachRow(rows, []any{&orderID, &it.ID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalAmount}, func() error {
		snap := byID[orderID]
		snap.Items = append(snap.Items, it)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}

	out := make([]*order.Order, len(snaps))
	for i := range snaps {
		out[i] = order.Restore(snaps[i])
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (order.Snapshot, error) {
	var (
		s      order.Snapshot
		status string
	)
	err := row.Scan(&s.ID, &s.UserID, &status, &s.TotalPrice, &s.DiscountAmount, &s.ShippingFee,
		&s.FinalAmount, &s.IdempotencyKey, &s.CreatedAt, &s.UpdatedAt)
	s.Status = order.Status(status)
	return s, err
}
