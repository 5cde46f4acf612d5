// Command seed-db loads users, point balances, products, stock and coupons
// from a JSON file. Users that already exist are left untouched.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/product"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/postgres"
)

type seedFile struct {
	Users    []seedUser    `json:"users"`
	Products []seedProduct `json:"products"`
	Coupons  []seedCoupon  `json:"coupons"`
}

type seedUser struct {
	LoginID string          `json:"loginId"`
	Email   string          `json:"email"`
	Points  decimal.Decimal `json:"points"`
}

type seedProduct struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int64           `json:"stock"`
	Sellable bool            `json:"sellable"`
}

type seedCoupon struct {
	LoginID string          `json:"loginId"`
	Type    coupon.Type     `json:"type"`
	Value   decimal.Decimal `json:"value"`
}

// Transactor runs fn in one transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type seeder struct {
	tx       Transactor
	users    user.Repository
	products product.Repository
	stock    *stock.Ledger
	points   *point.Ledger
	coupons  *coupon.Ledger
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/shop.json", "path to the seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	data, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	db := postgres.NewDB(pool)

	s := &seeder{
		tx:       db,
		users:    postgres.NewUserRepository(db),
		products: postgres.NewProductRepository(db),
		stock:    stock.NewLedger(postgres.NewStockRepository(db)),
		points:   point.NewLedger(postgres.NewPointRepository(db)),
		coupons:  coupon.NewLedger(postgres.NewCouponRepository(db)),
	}
	return s.seed(ctx, data)
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	var data seedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &data, nil
}

// seed writes everything in one transaction.
func (s *seeder) seed(ctx context.Context, data *seedFile) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		userIDs := make(map[string]int64, len(data.Users))
		for _, su := range data.Users {
			existing, err := s.users.FindByLoginID(ctx, su.LoginID)
			switch {
			case err == nil:
				slog.Info("user exists, skipping", slog.String("login_id", su.LoginID))
				userIDs[su.LoginID] = existing.ID
				continue
			case !errors.Is(err, user.ErrNotFound):
				return errors.Wrapf(err, "find user %s", su.LoginID)
			}

			u := &user.User{LoginID: su.LoginID, Email: su.Email}
			if err := s.users.Create(ctx, u); err != nil {
				return errors.Wrapf(err, "create user %s", su.LoginID)
			}
			if su.Points.IsPositive() {
				if err := s.points.Charge(ctx, u.ID, su.Points); err != nil {
					return errors.Wrapf(err, "charge points of %s", su.LoginID)
				}
			}
			userIDs[su.LoginID] = u.ID
			slog.Info("created user", slog.String("login_id", u.LoginID), slog.String("points", su.Points.String()))
		}

		for _, sp := range data.Products {
			p := &product.Product{Name: sp.Name, Price: sp.Price, Sellable: sp.Sellable}
			if err := s.products.Create(ctx, p); err != nil {
				return errors.Wrapf(err, "create product %s", sp.Name)
			}
			if sp.Stock > 0 {
				if err := s.stock.Increase(ctx, p.ID, sp.Stock); err != nil {
					return errors.Wrapf(err, "stock product %s", sp.Name)
				}
			}
			slog.Info("created product", slog.Int64("id", p.ID), slog.String("name", p.Name), slog.Int64("stock", sp.Stock))
		}

		for _, sc := range data.Coupons {
			userID, ok := userIDs[sc.LoginID]
			if !ok {
				return errors.Errorf("coupon for unknown user %s", sc.LoginID)
			}
			c, err := s.coupons.Issue(ctx, userID, sc.Type, sc.Value)
			if err != nil {
				return errors.Wrapf(err, "issue coupon to %s", sc.LoginID)
			}
			slog.Info("issued coupon", slog.Int64("id", c.ID), slog.String("login_id", sc.LoginID), slog.String("type", string(c.Type)))
		}
		return nil
	})
}
