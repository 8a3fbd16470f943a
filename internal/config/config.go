package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"storefront-service/internal/pricing"
)

type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
	SignInURL string `mapstructure:"sign_in_url"`
	LogLevel  string `mapstructure:"log_level"`

	// One DSN per order shard, in shard index order.
	ShardDSNs  []string `mapstructure:"shard_dsns"`
	CatalogDSN string   `mapstructure:"catalog_dsn"`
	DBRetries  int      `mapstructure:"db_retries"`
	RedisAddr  string   `mapstructure:"redis_addr"`

	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	OrderTopic    string   `mapstructure:"order_topic"`
	StatusTopic   string   `mapstructure:"status_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`

	CatalogCacheTTL        time.Duration `mapstructure:"catalog_cache_ttl"`
	IdempotencyTTL         time.Duration `mapstructure:"idempotency_ttl"`
	WishlistConfirmTimeout time.Duration `mapstructure:"wishlist_confirm_timeout"`
	SessionIdleTimeout     time.Duration `mapstructure:"session_idle_timeout"`

	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	Pricing pricing.Rules `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	rules := pricing.DefaultRules()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("sign_in_url", "/login")
	v.SetDefault("log_level", "info")
	v.SetDefault("shard_dsns", []string{"root:password@tcp(localhost:3306)/orders?parseTime=true"})
	v.SetDefault("catalog_dsn", "root:password@tcp(localhost:3306)/catalog?parseTime=true")
	v.SetDefault("db_retries", 10)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("kafka_brokers", []string{"localhost:9092", "localhost:9093", "localhost:9094"})
	v.SetDefault("order_topic", "order-topic")
	v.SetDefault("status_topic", "order-status-topic")
	v.SetDefault("consumer_group", "storefront-service-group")
	v.SetDefault("catalog_cache_ttl", time.Minute)
	v.SetDefault("idempotency_ttl", 24*time.Hour)
	v.SetDefault("wishlist_confirm_timeout", 3*time.Second)
	v.SetDefault("session_idle_timeout", 30*time.Minute)
	v.SetDefault("rate_limit", 5)
	v.SetDefault("rate_burst", 10)
	v.SetDefault("min_order_qty", rules.MinOrderQty)
	v.SetDefault("min_order_amount", rules.MinOrderAmount.String())
	v.SetDefault("max_item_qty", rules.MaxItemQty)
}

// Load reads configuration from cfgFile (optional) and STOREFRONT_ prefixed
// environment variables, over built-in defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv() // Read in environment variables that match

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			StringToDecimalHookFunc(),
		)
	})
	if err := v.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if len(c.ShardDSNs) == 0 {
		return fmt.Errorf("at least one order shard is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	return c.Pricing.Validate()
}

// StringToDecimalHookFunc decodes strings and numbers into decimal.Decimal.
func StringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}
