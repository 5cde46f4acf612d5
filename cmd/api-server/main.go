// Command api-server serves the shop order API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/yoobinbkk/loopers-ecommerce-project/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Config loaded",
			zap.Bool("migrate_on_start", cfg.DB.MigrateOnStart),
			zap.String("shipping_fee", cfg.Order.ShippingFee),
			zap.Int("throttle_limit", cfg.Throttle.Limit),
		)
		return appkg.Run(ctx, lg, m, cfg)
	})
}
