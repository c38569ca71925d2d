package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.Server.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "cart_id", cfg.Auth.CartCookie)
	assert.Equal(t, 30*time.Second, cfg.Notify.Interval)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Shop.TaxRateDecimal().IsZero())
	assert.Equal(t, 1440, cfg.Health.KeepLast)
	assert.Equal(t, 7*24*time.Hour, cfg.Health.MaxAge)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  path: shop.db
shop:
  tax_rate: "0.14"
  shipping_methods:
    - id: standard
      name: Standard
      carrier: Aramex
      price: "5.00"
      estimated_days: 5
notify:
  interval: 1m
`)
	t.Setenv("SHOP_SERVER_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "shop.db", cfg.Database.DSN())
	assert.Equal(t, "0.14", cfg.Shop.TaxRateDecimal().String())
	require.Len(t, cfg.Shop.ShippingMethods, 1)
	assert.Equal(t, 5, cfg.Shop.ShippingMethods[0].EstimatedDays)
	assert.Equal(t, time.Minute, cfg.Notify.Interval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Database: DatabaseConfig{Driver: "postgres"}, Shop: ShopConfig{TaxRate: "0"}}
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Shop.TaxRate = "fourteen"
	assert.ErrorContains(t, c.Validate(), "tax_rate")

	c = base()
	c.Shop.ShippingMethods = []ShippingMethodConfig{{ID: "x", Price: "free"}}
	assert.ErrorContains(t, c.Validate(), "shipping method x")

	c = base()
	c.Shop.ShippingMethods = []ShippingMethodConfig{{Price: "1"}}
	assert.Error(t, c.Validate())

	c = base()
	c.Database.Driver = "oracle"
	assert.ErrorContains(t, c.Validate(), "oracle")
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Username: "u", Password: "p", Database: "shop", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=shop sslmode=disable", db.DSN())

	db.Driver = "mysql"
	db.Port = 3306
	assert.Equal(t, "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=True&loc=Local", db.DSN())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&LogConfig{Level: "debug", Encoding: "console", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = NewLogger(&LogConfig{Level: "nonsense", Encoding: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
}
