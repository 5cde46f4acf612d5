// Command coupon-issue issues coupons in bulk from gzip grant files.
//
// Each line of a grant file is "grantId,loginId,TYPE,value". Campaign exports
// overlap, so the same grant id may appear in several files; it is issued
// once.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
		capacity    uint
		fpr         float64
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz grant files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent issuing workers")
	flag.UintVar(&capacity, "expected-grants", 10_000_000, "expected number of grant lines, sizes the bloom filter")
	flag.Float64Var(&fpr, "fpr", 0.001, "bloom filter false positive rate")
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

	if err := run(ctx, dataDir, databaseURL, workers, capacity, fpr); err != nil {
		slog.Error("coupon issue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon issue completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, workers int, capacity uint, fpr float64) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list grant files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz grant files in %s", dataDir)
	}

	slog.Info("pass 1: indexing grant ids", slog.Int("files", len(files)))
	repeated, err := findRepeated(ctx, files, capacity, fpr)
	if err != nil {
		return errors.Wrap(err, "index grants")
	}
	slog.Info("pass 1 done", slog.Int("possibly_repeated", len(repeated)))

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, int32(workers)+1)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	db := postgres.NewDB(pool)

	slog.Info("pass 2: issuing coupons", slog.Int("workers", workers))
	is := newIssuer(
		postgres.NewUserRepository(db),
		coupon.NewLedger(postgres.NewCouponRepository(db)),
		repeated,
		workers,
	)
	stats, err := is.issueFiles(ctx, files)
	slog.Info("pass 2 done",
		slog.Int("issued", stats.Issued),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("invalid", stats.Invalid),
		slog.Int("unknown_user", stats.NoUser),
	)
	if err != nil {
		return errors.Wrap(err, "issue coupons")
	}
	return nil
}
