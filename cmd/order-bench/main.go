// Command order-bench places many concurrent orders for one product and
// verifies that stock never oversells. With -dry-run it uses the in-memory
// store instead of PostgreSQL.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/memory"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		dryRun      bool
		cfg         benchConfig
		price       string
		points      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "run against the in-memory store")
	flag.IntVar(&cfg.Buyers, "buyers", 100, "number of buyers, one order each")
	flag.Int64Var(&cfg.Stock, "stock", 50, "initial stock of the contended product")
	flag.Int64Var(&cfg.Quantity, "quantity", 1, "quantity per order")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "orders in flight")
	flag.StringVar(&price, "price", "1000", "product price")
	flag.StringVar(&points, "points", "100000", "points charged to every buyer")
	flag.Parse()

	var err error
	if cfg.Price, err = decimal.NewFromString(price); err != nil {
		slog.Error("invalid price", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Points, err = decimal.NewFromString(points); err != nil {
		slog.Error("invalid points", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url, DATABASE_URL or --dry-run")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, dryRun, cfg); err != nil {
		slog.Error("bench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, dryRun bool, cfg benchConfig) error {
	var (
		tx   order.Transactor
		deps benchDeps
		cs   coupon.Repository
		ors  order.Repository
	)
	if dryRun {
		store := memory.NewStore()
		tx, cs, ors = store, store.Coupons(), store.Orders()
		deps.users, deps.products = store.Users(), store.Products()
		deps.stock = stock.NewLedger(store.Stock())
		deps.points = point.NewLedger(store.Points())
	} else {
		pool, err := postgres.NewPool(ctx, databaseURL, int32(cfg.Concurrency)+2)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		db := postgres.NewDB(pool)
		tx, cs, ors = db, postgres.NewCouponRepository(db), postgres.NewOrderRepository(db)
		deps.users, deps.products = postgres.NewUserRepository(db), postgres.NewProductRepository(db)
		deps.stock = stock.NewLedger(postgres.NewStockRepository(db))
		deps.points = point.NewLedger(postgres.NewPointRepository(db))
	}

	svc, err := order.NewService(order.Deps{
		Tx:       tx,
		Users:    deps.users,
		Products: deps.products,
		Stock:    deps.stock,
		Points:   deps.points,
		Coupons:  coupon.NewLedger(cs),
		Orders:   ors,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	deps.orders = svc

	res, err := runBench(ctx, deps, cfg)
	if err != nil {
		return err
	}
	slog.Info("bench finished",
		slog.Bool("dry_run", dryRun),
		slog.Int64("placed", res.Placed),
		slog.Int64("out_of_stock", res.OutOfStock),
		slog.Int64("out_of_points", res.OutOfPoints),
		slog.Int64("final_stock", res.FinalStock),
		slog.Duration("elapsed", res.Elapsed),
	)
	if !res.Consistent() {
		return errors.Errorf("stock mismatch: %d left, expected %d", res.FinalStock, res.ExpectedLeft)
	}
	return nil
}
