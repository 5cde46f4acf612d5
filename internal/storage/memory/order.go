package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders as snapshots.
type OrderRepository struct {
	s *Store
}

// Create stores o, assigning its ids.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := idemKey{userID: o.UserID(), key: o.IdempotencyKey()}
	if key.key != "" {
		if _, ok := r.s.idem[key]; ok {
			return order.ErrDuplicateRequest
		}
	}

	r.s.seq.order++
	id := r.s.seq.order
	itemIDs := make([]int64, len(o.Items()))
	for i := range itemIDs {
		r.s.seq.item++
		itemIDs[i] = r.s.seq.item
	}
	o.MarkPersisted(id, itemIDs, r.s.now())

	r.s.orders[id] = o.Snapshot()
	if key.key != "" {
		r.s.idem[key] = id
	}
	record(ctx, func() {
		delete(r.s.orders, id)
		if key.key != "" {
			delete(r.s.idem, key)
		}
	})
	return nil
}

// Update overwrites the stored state of o.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.orders[o.ID()]
	if !ok {
		return order.ErrNotFound
	}
	r.s.orders[o.ID()] = o.Snapshot()
	record(ctx, func() { r.s.orders[prev.ID] = prev })
	return nil
}

// FindByID returns the order with id.
func (r *OrderRepository) FindByID(_ context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	snap, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return order.Restore(snap), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(_ context.Context, userID int64) ([]*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var snaps []order.Snapshot
	for _, snap := range r.s.orders {
		if snap.UserID == userID {
			snaps = append(snaps, snap)
		}
	}
	slices.SortFunc(snaps, func(a, b order.Snapshot) int {
		return cmp.Compare(b.ID, a.ID)
	})

	out := make([]*order.Order, len(snaps))
	for i, snap := range snaps {
		out[i] = order.Restore(snap)
	}
	return out, nil
}

// LockIdempotencyKey holds the key until the transaction in ctx ends. Without
// a transaction there is nothing to hold it for and it returns at once.
func (r *OrderRepository) LockIdempotencyKey(ctx context.Context, userID int64, key string) error {
	log, ok := ctx.Value(txKey{}).(*txLog)
	if !ok {
		return nil
	}
	k := idemKey{userID: userID, key: key}
	if _, ok := log.held[k]; ok {
		return nil
	}

	r.s.mu.Lock()
	ch, ok := r.s.keyLocks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		r.s.keyLocks[k] = ch
	}
	r.s.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if log.held == nil {
		log.held = make(map[idemKey]chan struct{})
	}
	log.held[k] = ch
	return nil
}

// FindByIdempotencyKey returns the order the user created with key.
func (r *OrderRepository) FindByIdempotencyKey(_ context.Context, userID int64, key string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.idem[idemKey{userID: userID, key: key}]
	if !ok {
		return nil, order.ErrNotFound
	}
	return order.Restore(r.s.orders[id]), nil
}
