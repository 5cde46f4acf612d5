// Package memory is an in-process implementation of every repository and of
// the transaction boundary.
//
// Each mutation is a single conditional update performed under one mutex, so
// the same atomicity rules hold as in PostgreSQL. A transaction keeps an undo
// log and replays it in reverse on failure. Uncommitted changes are visible
// to other transactions, which can only cause a spurious business rejection,
// never an oversell. Idempotency key locks are held until the transaction
// ends, after any rollback has run.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

type idemKey struct {
	userID int64
	key    string
}

// Store holds all state.
type Store struct {
	mu sync.Mutex

	users    map[int64]user.User
	logins   map[string]int64
	products map[int64]product.Product
	stock    map[int64]int64
	points   map[int64]decimal.Decimal
	coupons  map[int64]coupon.Coupon
	orders   map[int64]order.Snapshot
	idem     map[idemKey]int64
	keyLocks map[idemKey]chan struct{}

	seq struct {
		user, product, coupon, order, item int64
	}

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[int64]user.User),
		logins:   make(map[string]int64),
		products: make(map[int64]product.Product),
		stock:    make(map[int64]int64),
		points:   make(map[int64]decimal.Decimal),
		coupons:  make(map[int64]coupon.Coupon),
		orders:   make(map[int64]order.Snapshot),
		idem:     make(map[idemKey]int64),
		keyLocks: make(map[idemKey]chan struct{}),
		now:      time.Now,
	}
}

type txKey struct{}

type txLog struct {
	undo []func()
	held map[idemKey]chan struct{}
}

func (l *txLog) release() {
	for _, ch := range l.held {
		<-ch
	}
	l.held = nil
}

var _ order.Transactor = (*Store)(nil)

// WithinTx runs fn as one unit of work. A nested call joins the outer unit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*txLog); ok {
		return fn(ctx)
	}

	log := &txLog{}
	defer func() {
		r := recover()
		if r != nil || err != nil {
			s.rollback(log)
		}
		log.release()
		if r != nil {
			panic(r)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, log))
}

func (s *Store) rollback(log *txLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(log.undo) - 1; i >= 0; i-- {
		log.undo[i]()
	}
}

// record registers undo with the transaction carried by ctx. Must be called
// with s.mu held.
func record(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(txKey{}).(*txLog); ok {
		log.undo = append(log.undo, undo)
	}
}

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Products returns the product repository.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Stock returns the stock repository.
func (s *Store) Stock() *StockRepository { return &StockRepository{s: s} }

// Points returns the point repository.
func (s *Store) Points() *PointRepository { return &PointRepository{s: s} }

// Coupons returns the coupon repository.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }
