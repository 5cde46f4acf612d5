package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/memory"
)

// --- Mock implementations ---

type recordingStock struct {
	mu    sync.Mutex
	calls []int64
	next  order.StockLedger
}

func (r *recordingStock) Decrease(ctx context.Context, productID, qty int64) error {
	r.mu.Lock()
	r.calls = append(r.calls, productID)
	r.mu.Unlock()
	return r.next.Decrease(ctx, productID, qty)
}

// gatedStock parks the first successful decrease until release is closed.
type gatedStock struct {
	once    sync.Once
	reached chan struct{}
	release chan struct{}
	next    order.StockLedger
}

func (g *gatedStock) Decrease(ctx context.Context, productID, qty int64) error {
	if err := g.next.Decrease(ctx, productID, qty); err != nil {
		return err
	}
	g.once.Do(func() {
		close(g.reached)
		<-g.release
	})
	return nil
}

type failingPoints struct {
	err error
}

func (f *failingPoints) Deduct(context.Context, int64, decimal.Decimal) error {
	return f.err
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	store   *memory.Store
	stock   *stock.Ledger
	points  *point.Ledger
	coupons *coupon.Ledger
	deps    order.Deps
	svc     *order.Service
}

func newFixture(t *testing.T, opts ...order.Option) *fixture {
	t.Helper()

	s := memory.NewStore()
	f := &fixture{
		store:   s,
		stock:   stock.NewLedger(s.Stock()),
		points:  point.NewLedger(s.Points()),
		coupons: coupon.NewLedger(s.Coupons()),
	}
	f.deps = order.Deps{
		Tx:       s,
		Users:    s.Users(),
		Products: s.Products(),
		Stock:    f.stock,
		Points:   f.points,
		Coupons:  f.coupons,
		Orders:   s.Orders(),
	}
	svc, err := order.NewService(f.deps, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) user(t *testing.T, loginID, points string) *user.User {
	t.Helper()
	ctx := context.Background()

	u := &user.User{LoginID: loginID, Email: loginID + "@example.com"}
	require.NoError(t, f.store.Users().Create(ctx, u))
	if amount := d(points); amount.IsPositive() {
		require.NoError(t, f.points.Charge(ctx, u.ID, amount))
	}
	return u
}

func (f *fixture) product(t *testing.T, price string, qty int64) *product.Product {
	t.Helper()
	ctx := context.Background()

	p := &product.Product{Name: "item", Price: d(price), Sellable: true}
	require.NoError(t, f.store.Products().Create(ctx, p))
	if qty > 0 {
		require.NoError(t, f.stock.Increase(ctx, p.ID, qty))
	}
	return p
}

// coupon stores c as is, bypassing issuance rules.
func (f *fixture) coupon(t *testing.T, userID int64, typ coupon.Type, value string) *coupon.Coupon {
	t.Helper()

	c := &coupon.Coupon{UserID: userID, Type: typ, Value: d(value)}
	require.NoError(t, f.store.Coupons().Create(context.Background(), c))
	return c
}

func (f *fixture) stockOf(t *testing.T, productID int64) int64 {
	t.Helper()
	s, err := f.stock.Get(context.Background(), productID)
	require.NoError(t, err)
	return s.Quantity
}

func (f *fixture) pointsOf(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	p, err := f.points.Balance(context.Background(), userID)
	require.NoError(t, err)
	return p.Amount
}

func (f *fixture) couponAvailable(t *testing.T, couponID int64) bool {
	t.Helper()
	c, err := f.store.Coupons().FindByID(context.Background(), couponID)
	require.NoError(t, err)
	return c.Available()
}

func (f *fixture) orderCount(t *testing.T, userID int64) int {
	t.Helper()
	orders, err := f.store.Orders().ListByUser(context.Background(), userID)
	require.NoError(t, err)
	return len(orders)
}

// --- Tests ---

func TestPlaceOrder_FixedCouponAndPoints(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100000")
	p := f.product(t, "20000", 3)
	c := f.coupon(t, u.ID, coupon.FixedAmount, "5000")

	o, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID:   "alice",
		Items:     []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		CouponIDs: []int64{c.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusConfirmed, o.Status())
	assert.True(t, d("20000").Equal(o.TotalPrice()))
	assert.True(t, d("5000").Equal(o.DiscountAmount()))
	assert.True(t, d("15000").Equal(o.FinalAmount()))
	assert.True(t, d("85000").Equal(f.pointsOf(t, u.ID)), "points left %s", f.pointsOf(t, u.ID))
	assert.Equal(t, int64(2), f.stockOf(t, p.ID))

	used, err := f.store.Coupons().FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, used.Used)
	require.NotNil(t, used.OrderID)
	assert.Equal(t, o.ID(), *used.OrderID)

	stored, err := f.svc.GetOrder(context.Background(), "alice", o.ID())
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, stored.Status())
	assert.True(t, d("15000").Equal(stored.FinalAmount()))
	require.Len(t, stored.Items(), 1)
	assert.NotZero(t, stored.Items()[0].ID)
}

func TestPlaceOrder_InvalidPercentageRejectedBeforeMutation(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100000")
	p := f.product(t, "20000", 5)
	c := f.coupon(t, u.ID, coupon.Percentage, "150")

	_, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID:   "alice",
		Items:     []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		CouponIDs: []int64{c.ID},
	})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	assert.Equal(t, int64(5), f.stockOf(t, p.ID))
	assert.True(t, d("100000").Equal(f.pointsOf(t, u.ID)))
	assert.True(t, f.couponAvailable(t, c.ID))
	assert.Zero(t, f.orderCount(t, u.ID))
}

func TestPlaceOrder_RollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		points   string
		prepare  func(t *testing.T, f *fixture, u *user.User) []int64
		wantKind error
	}{
		{
			name:   "insufficient points",
			points: "1000",
			prepare: func(t *testing.T, f *fixture, u *user.User) []int64 {
				return []int64{f.coupon(t, u.ID, coupon.FixedAmount, "500").ID}
			},
			wantKind: apperr.ErrInsufficientPoints,
		},
		{
			name:   "coupon already used",
			points: "100000",
			prepare: func(t *testing.T, f *fixture, u *user.User) []int64 {
				c := f.coupon(t, u.ID, coupon.FixedAmount, "500")
				_, err := f.coupons.Redeem(context.Background(), c.ID, 999, u.ID)
				require.NoError(t, err)
				fresh := f.coupon(t, u.ID, coupon.FixedAmount, "100")
				return []int64{fresh.ID, c.ID}
			},
			wantKind: apperr.ErrCouponUnavailable,
		},
		{
			name:   "coupon of another user",
			points: "100000",
			prepare: func(t *testing.T, f *fixture, _ *user.User) []int64 {
				other := f.user(t, "mallory", "0")
				return []int64{f.coupon(t, other.ID, coupon.FixedAmount, "500").ID}
			},
			wantKind: apperr.ErrNotOwner,
		},
		{
			name:   "missing coupon",
			points: "100000",
			prepare: func(*testing.T, *fixture, *user.User) []int64 {
				return []int64{404}
			},
			wantKind: apperr.ErrNotFound,
		},
		{
			name:   "soft deleted coupon",
			points: "100000",
			prepare: func(t *testing.T, f *fixture, u *user.User) []int64 {
				deletedAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
				c := &coupon.Coupon{UserID: u.ID, Type: coupon.FixedAmount, Value: d("500"), DeletedAt: &deletedAt}
				require.NoError(t, f.store.Coupons().Create(context.Background(), c))
				return []int64{c.ID}
			},
			wantKind: apperr.ErrCouponUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := f.user(t, "alice", tt.points)
			p1 := f.product(t, "10000", 5)
			p2 := f.product(t, "2500", 5)
			couponIDs := tt.prepare(t, f, u)
			before := f.pointsOf(t, u.ID)

			_, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
				LoginID: "alice",
				Items: []order.LineItem{
					{ProductID: p2.ID, Quantity: 2},
					{ProductID: p1.ID, Quantity: 1},
				},
				CouponIDs: couponIDs,
			})
			require.ErrorIs(t, err, tt.wantKind)

			assert.Equal(t, int64(5), f.stockOf(t, p1.ID))
			assert.Equal(t, int64(5), f.stockOf(t, p2.ID))
			assert.True(t, before.Equal(f.pointsOf(t, u.ID)))
			assert.Zero(t, f.orderCount(t, u.ID))
			for _, id := range couponIDs {
				c, err := f.store.Coupons().FindByID(context.Background(), id)
				if err != nil {
					continue
				}
				if c.DeletedAt != nil || (c.OrderID != nil && *c.OrderID == 999) {
					continue
				}
				assert.True(t, c.Available(), "coupon %d must stay unused", id)
			}
		})
	}
}

func TestPlaceOrder_RequestErrors(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100000")
	p := f.product(t, "100", 1)
	hidden := &product.Product{Name: "hidden", Price: d("1"), Sellable: false}
	require.NoError(t, f.store.Products().Create(context.Background(), hidden))
	require.NoError(t, f.stock.Increase(context.Background(), hidden.ID, 10))
	c := f.coupon(t, u.ID, coupon.FixedAmount, "10")

	tests := []struct {
		name     string
		req      order.PlaceOrderRequest
		wantKind error
	}{
		{
			name:     "no items",
			req:      order.PlaceOrderRequest{LoginID: "alice"},
			wantKind: apperr.ErrInvalidArgument,
		},
		{
			name:     "no login",
			req:      order.PlaceOrderRequest{Items: []order.LineItem{{ProductID: p.ID, Quantity: 1}}},
			wantKind: apperr.ErrInvalidArgument,
		},
		{
			name:     "zero quantity",
			req:      order.PlaceOrderRequest{LoginID: "alice", Items: []order.LineItem{{ProductID: p.ID, Quantity: 0}}},
			wantKind: apperr.ErrInvalidArgument,
		},
		{
			name: "duplicate coupon",
			req: order.PlaceOrderRequest{
				LoginID:   "alice",
				Items:     []order.LineItem{{ProductID: p.ID, Quantity: 1}},
				CouponIDs: []int64{c.ID, c.ID},
			},
			wantKind: apperr.ErrInvalidArgument,
		},
		{
			name:     "unknown user",
			req:      order.PlaceOrderRequest{LoginID: "ghost", Items: []order.LineItem{{ProductID: p.ID, Quantity: 1}}},
			wantKind: apperr.ErrNotFound,
		},
		{
			name:     "unknown product",
			req:      order.PlaceOrderRequest{LoginID: "alice", Items: []order.LineItem{{ProductID: 777, Quantity: 1}}},
			wantKind: apperr.ErrNotFound,
		},
		{
			name:     "not sellable",
			req:      order.PlaceOrderRequest{LoginID: "alice", Items: []order.LineItem{{ProductID: hidden.ID, Quantity: 1}}},
			wantKind: apperr.ErrInvalidState,
		},
		{
			name:     "insufficient stock",
			req:      order.PlaceOrderRequest{LoginID: "alice", Items: []order.LineItem{{ProductID: p.ID, Quantity: 2}}},
			wantKind: apperr.ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantKind)
		})
	}

	assert.Equal(t, int64(1), f.stockOf(t, p.ID))
	assert.Equal(t, int64(10), f.stockOf(t, hidden.ID))
	assert.True(t, f.couponAvailable(t, c.ID))
	assert.Zero(t, f.orderCount(t, u.ID))
}

func TestPlaceOrder_DecreasesStockInProductOrder(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice", "100000")
	p1 := f.product(t, "10", 5)
	p2 := f.product(t, "20", 5)
	p3 := f.product(t, "30", 5)

	rec := &recordingStock{next: f.stock}
	deps := f.deps
	deps.Stock = rec
	svc, err := order.NewService(deps)
	require.NoError(t, err)

	o, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID: "alice",
		Items: []order.LineItem{
			{ProductID: p3.ID, Quantity: 1},
			{ProductID: p1.ID, Quantity: 2},
			{ProductID: p2.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{p1.ID, p2.ID, p3.ID}, rec.calls)
	assert.True(t, d("70").Equal(o.TotalPrice()))
	items := o.Items()
	require.Len(t, items, 3)
	assert.Equal(t, p1.ID, items[0].ProductID)
	assert.True(t, d("10").Equal(items[0].UnitPrice))
}

func TestPlaceOrder_StackedCoupons(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100000")
	p := f.product(t, "10000", 1)
	fixed := f.coupon(t, u.ID, coupon.FixedAmount, "8000")
	pct := f.coupon(t, u.ID, coupon.Percentage, "50")

	o, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID:   "alice",
		Items:     []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		CouponIDs: []int64{fixed.ID, pct.ID},
	})
	require.NoError(t, err)

	assert.True(t, d("9000").Equal(o.DiscountAmount()), "discount %s", o.DiscountAmount())
	assert.True(t, d("1000").Equal(o.FinalAmount()))
	assert.True(t, d("99000").Equal(f.pointsOf(t, u.ID)))
}

func TestPlaceOrder_ZeroFinalAmountSkipsPoints(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "0")
	p := f.product(t, "3000", 1)
	c := f.coupon(t, u.ID, coupon.Percentage, "100")

	o, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID:   "alice",
		Items:     []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		CouponIDs: []int64{c.ID},
	})
	require.NoError(t, err)

	assert.True(t, o.FinalAmount().IsZero())
	assert.Equal(t, order.StatusConfirmed, o.Status())
	assert.True(t, f.pointsOf(t, u.ID).IsZero())
}

func TestPlaceOrder_ShippingFee(t *testing.T) {
	f := newFixture(t, order.WithShippingFee(d("2500")))
	u := f.user(t, "alice", "10000")
	p := f.product(t, "5000", 1)

	o, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID: "alice",
		Items:   []order.LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.True(t, d("7500").Equal(o.FinalAmount()))
	assert.True(t, d("2500").Equal(f.pointsOf(t, u.ID)))
}

func TestNewService_NegativeShippingFee(t *testing.T) {
	_, err := order.NewService(order.Deps{}, order.WithShippingFee(d("-1")))
	require.Error(t, err)
}

func TestPlaceOrder_InfrastructureErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100")
	p := f.product(t, "10", 2)

	deps := f.deps
	deps.Points = &failingPoints{err: errors.New("connection reset")}
	svc, err := order.NewService(deps)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
		LoginID: "alice",
		Items:   []order.LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.False(t, apperr.IsBusiness(err))
	assert.Equal(t, int64(2), f.stockOf(t, p.ID))
	assert.Zero(t, f.orderCount(t, u.ID))
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100000")
	p := f.product(t, "1000", 10)
	req := order.PlaceOrderRequest{
		LoginID:        "alice",
		Items:          []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		IdempotencyKey: "req-1",
	}

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, int64(9), f.stockOf(t, p.ID))
	assert.True(t, d("99000").Equal(f.pointsOf(t, u.ID)))
	assert.Equal(t, 1, f.orderCount(t, u.ID))
}

func TestPlaceOrder_ConcurrentIdempotentSubmissions(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "100000")
	p := f.product(t, "1000", 10)

	ids := make([]int64, 8)
	var g errgroup.Group
	for i := range ids {
		g.Go(func() error {
			o, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
				LoginID:        "alice",
				Items:          []order.LineItem{{ProductID: p.ID, Quantity: 1}},
				IdempotencyKey: "same-click",
			})
			if err != nil {
				return err
			}
			ids[i] = o.ID()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(9), f.stockOf(t, p.ID))
	assert.Equal(t, 1, f.orderCount(t, u.ID))
}

func TestPlaceOrder_IdempotentRetryWhileFirstHoldsLastUnit(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "10000")
	p := f.product(t, "1000", 1)

	gate := &gatedStock{reached: make(chan struct{}), release: make(chan struct{}), next: f.stock}
	deps := f.deps
	deps.Stock = gate
	svc, err := order.NewService(deps)
	require.NoError(t, err)

	req := order.PlaceOrderRequest{
		LoginID:        "alice",
		Items:          []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		IdempotencyKey: "k1",
	}
	type result struct {
		o   *order.Order
		err error
	}
	place := func(out chan<- result) {
		o, err := svc.PlaceOrder(context.Background(), req)
		out <- result{o: o, err: err}
	}

	first := make(chan result, 1)
	go place(first)
	<-gate.reached

	second := make(chan result, 1)
	go place(second)
	select {
	case r := <-second:
		t.Fatalf("retry finished while the first submission held the key: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)

	r1, r2 := <-first, <-second
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Equal(t, r1.o.ID(), r2.o.ID())
	assert.Zero(t, f.stockOf(t, p.ID))
	assert.True(t, d("9000").Equal(f.pointsOf(t, u.ID)))
	assert.Equal(t, 1, f.orderCount(t, u.ID))
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestPlaceOrder_ReplayCountedSeparately(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	f := newFixture(t, order.WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))
	f.user(t, "alice", "10000")
	p := f.product(t, "1000", 5)

	req := order.PlaceOrderRequest{
		LoginID:        "alice",
		Items:          []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		IdempotencyKey: "twice",
	}
	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	again, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), again.ID())

	assert.Equal(t, int64(1), counterValue(t, reader, "orders.placed"))
	assert.Equal(t, int64(1), counterValue(t, reader, "orders.replayed"))
	assert.Equal(t, int64(4), f.stockOf(t, p.ID))
}

func TestPlaceOrder_NoOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "1000", 10)

	const buyers = 20
	logins := make([]string, buyers)
	for i := range logins {
		logins[i] = "buyer-" + string(rune('a'+i))
		f.user(t, logins[i], "10000")
	}

	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
				LoginID: logins[i],
				Items:   []order.LineItem{{ProductID: p.ID, Quantity: 1}},
			})
		}()
	}
	wg.Wait()

	var ok, soldOut int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			soldOut++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, soldOut)
	assert.Zero(t, f.stockOf(t, p.ID))
}

func TestPlaceOrder_CouponRedeemedOnceUnderContention(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "1000000")
	p := f.product(t, "1000", 100)
	c := f.coupon(t, u.ID, coupon.FixedAmount, "500")

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
				LoginID:   "alice",
				Items:     []order.LineItem{{ProductID: p.ID, Quantity: 1}},
				CouponIDs: []int64{c.ID},
			})
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, apperr.ErrCouponUnavailable)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(99), f.stockOf(t, p.ID))
	assert.True(t, d("999500").Equal(f.pointsOf(t, u.ID)))
}

func TestPlaceOrder_PointsNeverNegative(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "alice", "30000")
	p := f.product(t, "10000", 100)

	const attempts = 5
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
				LoginID: "alice",
				Items:   []order.LineItem{{ProductID: p.ID, Quantity: 1}},
			})
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, apperr.ErrInsufficientPoints)
	}
	assert.Equal(t, 3, ok)
	assert.True(t, f.pointsOf(t, u.ID).IsZero())
	assert.Equal(t, int64(97), f.stockOf(t, p.ID))
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice", "100000")
	f.user(t, "bob", "100000")
	p := f.product(t, "100", 10)

	var placed []*order.Order
	for range 2 {
		o, err := f.svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
			LoginID: "alice",
			Items:   []order.LineItem{{ProductID: p.ID, Quantity: 1}},
		})
		require.NoError(t, err)
		placed = append(placed, o)
	}

	list, err := f.svc.ListOrders(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, placed[1].ID(), list[0].ID())

	empty, err := f.svc.ListOrders(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.GetOrder(context.Background(), "bob", placed[0].ID())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.GetOrder(context.Background(), "alice", 12345)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.ListOrders(context.Background(), "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
