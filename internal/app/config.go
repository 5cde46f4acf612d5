package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DB          DBConfig
	Order       OrderConfig
	Throttle    ThrottleConfig
	Graceful    GracefulConfig
}

// DBConfig controls the connection pool and schema management.
type DBConfig struct {
	MaxConns       int32 `default:"20" usage:"Maximum pooled connections" flag:"db-max-conns"`
	MigrateOnStart bool  `default:"true" usage:"Apply pending migrations at startup" flag:"db-migrate"`
}

// OrderConfig holds order pricing settings.
type OrderConfig struct {
	ShippingFee string `default:"0" usage:"Fee added to every order, as a decimal string" flag:"shipping-fee"`
}

// ThrottleConfig limits order submissions per caller. A zero limit disables it.
type ThrottleConfig struct {
	Limit  int           `default:"30" usage:"Order submissions allowed per caller and window"`
	Window time.Duration `default:"1m" usage:"Throttle window"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	fee, err := c.Order.Fee()
	if err != nil {
		return err
	}
	if fee.IsNegative() {
		return errors.Errorf("shipping fee must not be negative, got %s", fee)
	}
	return nil
}

// Fee parses ShippingFee.
func (o OrderConfig) Fee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(o.ShippingFee)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse shipping fee %q", o.ShippingFee)
	}
	return fee, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
