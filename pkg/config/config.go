// Package config loads TOML configuration with environment variable
// overrides and sensible defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hodlfi/btclending/pkg/logger"
)

// Config is the full service configuration.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	// Environment is one of: dev, staging, prod.
	Environment string `mapstructure:"environment"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logger   logger.Config  `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Lending  LendingConfig  `mapstructure:"lending"`
	Custody  CustodyConfig  `mapstructure:"custody"`
}

// HTTPConfig configures the gin server.
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig configures the GORM MySQL connection.
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogEnabled      bool   `mapstructure:"log_enabled"`
	// SlowQueryThreshold is in milliseconds.
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig configures the price cache connection.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// KafkaConfig configures the price-tick consumer and event producer.
type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	PriceTopic     string   `mapstructure:"price_topic"`
	EventTopic     string   `mapstructure:"event_topic"`
	SessionTimeout int      `mapstructure:"session_timeout"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBackoff   int      `mapstructure:"retry_backoff"`
}

// MetricsConfig configures Prometheus exposure.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LendingConfig carries the protocol constants. Values are plain floats in
// TOML and converted to decimals at the domain boundary.
type LendingConfig struct {
	// LoanToValueRatio is the maximum borrowable fraction of collateral value.
	LoanToValueRatio float64 `mapstructure:"loan_to_value_ratio"`
	// LiquidationThreshold is the health-factor floor for flagging.
	LiquidationThreshold float64 `mapstructure:"liquidation_threshold"`
	// InterestRateAnnual is the default APR applied to new positions.
	InterestRateAnnual float64 `mapstructure:"interest_rate_annual"`
	// MinimumCollateral is the smallest BTC amount accepted as collateral.
	MinimumCollateral float64 `mapstructure:"minimum_collateral"`
	// MaximumCollateral caps the BTC amount on a single position.
	MaximumCollateral float64 `mapstructure:"maximum_collateral"`
	MinimumLoanAmount float64 `mapstructure:"minimum_loan_amount"`
	MaximumLoanAmount float64 `mapstructure:"maximum_loan_amount"`
	MaxDurationDays   int     `mapstructure:"max_duration_days"`
	GracePeriodDays   int     `mapstructure:"grace_period_days"`
	// ExtensionFees maps extension days to a flat USD fee. The schedule is
	// a lookup table, not a formula.
	ExtensionFees map[string]float64 `mapstructure:"extension_fees"`
}

// CustodyConfig configures deposit confirmation acceptance.
type CustodyConfig struct {
	// RequiredConfirmations is the block depth before a lock is usable.
	RequiredConfirmations int `mapstructure:"required_confirmations"`
}

// Load reads the TOML file at path, applies APP_-prefixed environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the parts of the configuration the service cannot run without.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Lending.LoanToValueRatio <= 0 || c.Lending.LoanToValueRatio >= 1 {
		return fmt.Errorf("loan_to_value_ratio must be in (0, 1): %v", c.Lending.LoanToValueRatio)
	}
	if c.Lending.LiquidationThreshold <= 0 {
		return fmt.Errorf("liquidation_threshold must be positive: %v", c.Lending.LiquidationThreshold)
	}
	if c.Lending.MinimumLoanAmount >= c.Lending.MaximumLoanAmount {
		return fmt.Errorf("minimum_loan_amount must be below maximum_loan_amount")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "btclending")
	v.SetDefault("kafka.price_topic", "marketdata.btc.price")
	v.SetDefault("kafka.event_topic", "lending.loan.events")
	v.SetDefault("kafka.session_timeout", 10)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("lending.loan_to_value_ratio", 0.7)
	v.SetDefault("lending.liquidation_threshold", 0.8)
	v.SetDefault("lending.interest_rate_annual", 0.08)
	v.SetDefault("lending.minimum_collateral", 0.001)
	v.SetDefault("lending.maximum_collateral", 100)
	v.SetDefault("lending.minimum_loan_amount", 100)
	v.SetDefault("lending.maximum_loan_amount", 1000000)
	v.SetDefault("lending.max_duration_days", 365)
	v.SetDefault("lending.grace_period_days", 30)
	v.SetDefault("lending.extension_fees", map[string]float64{"30": 50, "60": 90, "90": 120})

	v.SetDefault("custody.required_confirmations", 3)
}
