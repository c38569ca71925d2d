package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Shop     ShopConfig     `mapstructure:"shop"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Backups  BackupsConfig  `mapstructure:"backups"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Health   HealthConfig   `mapstructure:"health"`
}

type ServerConfig struct {
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	SessionCookie    string `mapstructure:"session_cookie"`
	CartCookie       string `mapstructure:"cart_cookie"`
	BuyNowCookie     string `mapstructure:"buy_now_cookie"`
	CookieSecure     bool   `mapstructure:"cookie_secure"`
	CartCookieMaxAge int    `mapstructure:"cart_cookie_max_age"`
}

type ShippingMethodConfig struct {
	ID            string `mapstructure:"id" json:"id"`
	Name          string `mapstructure:"name" json:"name"`
	Carrier       string `mapstructure:"carrier" json:"carrier"`
	Price         string `mapstructure:"price" json:"price"`
	EstimatedDays int    `mapstructure:"estimated_days" json:"estimatedDays"`
}

type ShopConfig struct {
	Currency            string                 `mapstructure:"currency"`
	TaxRate             string                 `mapstructure:"tax_rate"`
	ShippingMethods     []ShippingMethodConfig `mapstructure:"shipping_methods"`
	CardPaymentsEnabled bool                   `mapstructure:"card_payments_enabled"`
	StrictTransitions   bool                   `mapstructure:"strict_transitions"`
	SupportRateLimit    int                    `mapstructure:"support_rate_limit"`
	DiscountRateLimit   int                    `mapstructure:"discount_rate_limit"`
}

type UploadsConfig struct {
	Backend      string `mapstructure:"backend"`
	Root         string `mapstructure:"root"`
	PublicPrefix string `mapstructure:"public_prefix"`
	Bucket       string `mapstructure:"bucket"`
	Quality      int    `mapstructure:"quality"`
	MaxBytes     int64  `mapstructure:"max_bytes"`
}

type NotifyConfig struct {
	Provider       string        `mapstructure:"provider"`
	From           string        `mapstructure:"from"`
	FromName       string        `mapstructure:"from_name"`
	SendGridAPIKey string        `mapstructure:"sendgrid_api_key"`
	SQSQueueURL    string        `mapstructure:"sqs_queue_url"`
	SQSRegion      string        `mapstructure:"sqs_region"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Interval       time.Duration `mapstructure:"interval"`
	MailerService  string        `mapstructure:"mailer_service"`
}

type BackupsConfig struct {
	Dir string `mapstructure:"dir"`
}

type WorkerConfig struct {
	Token string `mapstructure:"token"`
}

// HealthConfig bounds the stored health history.
type HealthConfig struct {
	KeepLast int           `mapstructure:"keep_last"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "storefront")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "storefront.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)

	v.SetDefault("etcd.dial_timeout", 5)
	v.SetDefault("etcd.prefix", "/services/")

	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("mongodb.database", "storefront")
	v.SetDefault("mongodb.collection", "audit_logs")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("auth.session_cookie", "session")
	v.SetDefault("auth.cart_cookie", "cart_id")
	v.SetDefault("auth.buy_now_cookie", "buy_now_cart_id")
	v.SetDefault("auth.cart_cookie_max_age", 30*24*3600)

	v.SetDefault("shop.currency", "USD")
	v.SetDefault("shop.tax_rate", "0")
	v.SetDefault("shop.support_rate_limit", 5)
	v.SetDefault("shop.discount_rate_limit", 20)

	v.SetDefault("uploads.backend", "local")
	v.SetDefault("uploads.root", "public/uploads")
	v.SetDefault("uploads.public_prefix", "/uploads")
	v.SetDefault("uploads.quality", 82)
	v.SetDefault("uploads.max_bytes", 10<<20)

	v.SetDefault("notify.provider", "log")
	v.SetDefault("notify.from_name", "Storefront")
	v.SetDefault("notify.batch_size", 20)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.interval", 30*time.Second)

	v.SetDefault("backups.dir", "backups")

	v.SetDefault("health.keep_last", 1440)
	v.SetDefault("health.max_age", 7*24*time.Hour)
}

// Validate rejects values the services cannot start with.
func (c *Config) Validate() error {
	if _, err := decimal.NewFromString(c.Shop.TaxRate); err != nil {
		return fmt.Errorf("invalid shop.tax_rate %q: %w", c.Shop.TaxRate, err)
	}
	for _, m := range c.Shop.ShippingMethods {
		if m.ID == "" {
			return fmt.Errorf("shipping method without id")
		}
		if _, err := decimal.NewFromString(m.Price); err != nil {
			return fmt.Errorf("invalid price for shipping method %s: %w", m.ID, err)
		}
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// TaxRateDecimal returns the configured tax rate as a fraction (0.14 for 14%).
func (c *ShopConfig) TaxRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database)
	}
}
