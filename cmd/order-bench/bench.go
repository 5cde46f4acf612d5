package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

type benchConfig struct {
	Buyers      int
	Stock       int64
	Quantity    int64
	Price       decimal.Decimal
	Points      decimal.Decimal
	Concurrency int
}

type benchDeps struct {
	users    user.Repository
	products product.Repository
	stock    *stock.Ledger
	points   *point.Ledger
	orders   *order.Service
}

type benchResult struct {
	Placed       int64
	OutOfStock   int64
	OutOfPoints  int64
	FinalStock   int64
	ExpectedLeft int64
	Elapsed      time.Duration
}

// Consistent reports whether the remaining stock matches the placed orders.
func (r benchResult) Consistent() bool {
	return r.FinalStock == r.ExpectedLeft && r.FinalStock >= 0
}

// runBench races cfg.Buyers single-line orders for one product and checks
// that the stock left matches the orders that went through.
func runBench(ctx context.Context, deps benchDeps, cfg benchConfig) (benchResult, error) {
	run := uuid.NewString()[:8]

	p := &product.Product{Name: "bench-" + run, Price: cfg.Price, Sellable: true}
	if err := deps.products.Create(ctx, p); err != nil {
		return benchResult{}, errors.Wrap(err, "create product")
	}
	if err := deps.stock.Increase(ctx, p.ID, cfg.Stock); err != nil {
		return benchResult{}, errors.Wrap(err, "stock product")
	}

	buyers := make([]string, cfg.Buyers)
	for i := range buyers {
		u := &user.User{LoginID: fmt.Sprintf("bench-%s-%d", run, i)}
		if err := deps.users.Create(ctx, u); err != nil {
			return benchResult{}, errors.Wrapf(err, "create buyer %d", i)
		}
		if cfg.Points.IsPositive() {
			if err := deps.points.Charge(ctx, u.ID, cfg.Points); err != nil {
				return benchResult{}, errors.Wrapf(err, "charge buyer %d", i)
			}
		}
		buyers[i] = u.LoginID
	}
	slog.Info("fixtures ready", slog.Int64("product", p.ID), slog.Int("buyers", len(buyers)))

	var res benchResult
	var placed, outOfStock, outOfPoints atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Concurrency, 1))
	start := time.Now()
	for _, login := range buyers {
		g.Go(func() error {
			_, err := deps.orders.PlaceOrder(gctx, order.PlaceOrderRequest{
				LoginID: login,
				Items:   []order.LineItem{{ProductID: p.ID, Quantity: cfg.Quantity}},
			})
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, apperr.ErrInsufficientStock):
				outOfStock.Add(1)
			case errors.Is(err, apperr.ErrInsufficientPoints):
				outOfPoints.Add(1)
			default:
				return errors.Wrapf(err, "order by %s", login)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}
	res.Elapsed = time.Since(start)

	st, err := deps.stock.Get(ctx, p.ID)
	if err != nil {
		return benchResult{}, errors.Wrap(err, "read final stock")
	}
	res.Placed = placed.Load()
	res.OutOfStock = outOfStock.Load()
	res.OutOfPoints = outOfPoints.Load()
	res.FinalStock = st.Quantity
	res.ExpectedLeft = cfg.Stock - res.Placed*cfg.Quantity
	return res, nil
}
