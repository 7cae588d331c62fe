package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ModeLive  = "live"
	ModeDummy = "dummy"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Fyers    FyersConfig    `mapstructure:"fyers"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Market   MarketConfig   `mapstructure:"market"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type AppConfig struct {
	Env       string `mapstructure:"env"`        // "dev" or "prod"; prod resolves secrets from SSM
	Mode      string `mapstructure:"mode"`       // "live" polls the broker, "dummy" only synthesizes
	SSMPrefix string `mapstructure:"ssm_prefix"` // parameter path prefix for prod secrets
}

// FyersConfig holds the broker endpoints and credentials.
type FyersConfig struct {
	AuthURL      string        `mapstructure:"auth_url"`
	DataURL      string        `mapstructure:"data_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ClientID     string        `mapstructure:"client_id"`
	SecretKey    string        `mapstructure:"secret_key"`
	RefreshToken string        `mapstructure:"refresh_token"`
	PIN          string        `mapstructure:"pin"`
}

type TrackerConfig struct {
	Symbols  []string `mapstructure:"symbols"`  // tracked universe, exchange-qualified or bare
	Exchange string   `mapstructure:"exchange"` // prefix added to bare tickers, e.g. "NSE"
	Series   string   `mapstructure:"series"`   // suffix added to bare tickers, e.g. "EQ"

	PollInterval    time.Duration `mapstructure:"poll_interval"`
	AuthRetryDelay  time.Duration `mapstructure:"auth_retry_delay"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`

	EnforceMarketHours bool `mapstructure:"enforce_market_hours"`
	DummyFallback      bool `mapstructure:"dummy_fallback"`
	ResetOnSessionOpen bool `mapstructure:"reset_on_session_open"`

	OnDemandRate  float64 `mapstructure:"on_demand_rate"` // single-symbol fetches per second
	OnDemandBurst int     `mapstructure:"on_demand_burst"`

	MaxSymbols       int `mapstructure:"max_symbols"`        // size of the active set, one quotes request
	EvictAfterMisses int `mapstructure:"evict_after_misses"` // 0 disables eviction

	Dummy DummyConfig `mapstructure:"dummy"`
}

// DummyConfig bounds the random values used for never-observed symbols.
type DummyConfig struct {
	MinPrice  float64 `mapstructure:"min_price"`
	MaxPrice  float64 `mapstructure:"max_price"`
	MinVolume int64   `mapstructure:"min_volume"`
	MaxVolume int64   `mapstructure:"max_volume"`
}

type MarketConfig struct {
	Timezone string   `mapstructure:"timezone"`
	Open     string   `mapstructure:"open"`     // "HH:MM" or "HH:MM:SS"
	Close    string   `mapstructure:"close"`    // inclusive
	Weekdays []string `mapstructure:"weekdays"` // "mon".."sun"
	Holidays []string `mapstructure:"holidays"` // "YYYY-MM-DD"
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// SinksConfig applies to every snapshot mirror.
type SinksConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.mode", ModeLive)
	v.SetDefault("app.ssm_prefix", "/volumetracker/")

	v.SetDefault("fyers.auth_url", "https://api-t1.fyers.in/api/v3/validate-refresh-token")
	v.SetDefault("fyers.data_url", "https://api-t1.fyers.in/data")
	v.SetDefault("fyers.timeout", 5*time.Second)

	v.SetDefault("tracker.symbols", []string{})
	v.SetDefault("tracker.exchange", "NSE")
	v.SetDefault("tracker.series", "EQ")
	v.SetDefault("tracker.poll_interval", 2*time.Second)
	v.SetDefault("tracker.auth_retry_delay", 10*time.Second)
	v.SetDefault("tracker.freshness_window", 5*time.Second)
	v.SetDefault("tracker.fetch_timeout", 5*time.Second)
	v.SetDefault("tracker.enforce_market_hours", true)
	v.SetDefault("tracker.dummy_fallback", true)
	v.SetDefault("tracker.reset_on_session_open", false)
	v.SetDefault("tracker.on_demand_rate", 5.0)
	v.SetDefault("tracker.on_demand_burst", 5)
	v.SetDefault("tracker.max_symbols", 50)
	v.SetDefault("tracker.evict_after_misses", 30)
	v.SetDefault("tracker.dummy.min_price", 100.0)
	v.SetDefault("tracker.dummy.max_price", 2000.0)
	v.SetDefault("tracker.dummy.min_volume", 1000)
	v.SetDefault("tracker.dummy.max_volume", 100000)

	v.SetDefault("market.timezone", "Asia/Kolkata")
	v.SetDefault("market.open", "09:15")
	v.SetDefault("market.close", "15:30")
	v.SetDefault("market.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})
	v.SetDefault("market.holidays", []string{})

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("sinks.timeout", 2*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "quote:")
	v.SetDefault("redis.channel_prefix", "quotes.")
	v.SetDefault("redis.ttl", time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quote_snapshots")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.dbname", "volumetracker")
	v.SetDefault("postgres.sslmode", "disable")
}

// Load loads application configuration using Viper.
// A .env file in the working directory is exported into the process
// environment first, then config.yaml (optional) is read and environment
// variables override both (e.g., TRACKER_POLL_INTERVAL).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if ex, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The broker credentials are also accepted under their bare names.
	bindEnv(v, "fyers.client_id", "FYERS_CLIENT_ID", "CLIENT_ID")
	bindEnv(v, "fyers.secret_key", "FYERS_SECRET_KEY", "SECRET_KEY")
	bindEnv(v, "fyers.refresh_token", "FYERS_REFRESH_TOKEN", "REFRESH_TOKEN")
	bindEnv(v, "fyers.pin", "FYERS_PIN", "PIN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.App.Env == "prod" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := NewParameterStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to init parameter store: %w", err)
		}
		if err := ResolveSecrets(ctx, store, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that must stop the process from starting.
func (c *Config) Validate() error {
	switch c.App.Mode {
	case ModeLive:
		var missing []string
		if c.Fyers.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if c.Fyers.SecretKey == "" {
			missing = append(missing, "secret_key")
		}
		if c.Fyers.RefreshToken == "" {
			missing = append(missing, "refresh_token")
		}
		if c.Fyers.PIN == "" {
			missing = append(missing, "pin")
		}
		if len(missing) > 0 {
			return fmt.Errorf("live mode requires fyers credentials, missing: %s", strings.Join(missing, ", "))
		}
	case ModeDummy:
	default:
		return fmt.Errorf("unknown app.mode %q", c.App.Mode)
	}

	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker.poll_interval must be positive")
	}
	if c.Tracker.FreshnessWindow <= 0 {
		return fmt.Errorf("tracker.freshness_window must be positive")
	}
	if c.Tracker.AuthRetryDelay < 0 {
		return fmt.Errorf("tracker.auth_retry_delay must not be negative")
	}
	if c.Tracker.MaxSymbols > 0 && len(c.Tracker.Symbols) > c.Tracker.MaxSymbols {
		return fmt.Errorf("tracker.symbols lists %d symbols, max_symbols is %d", len(c.Tracker.Symbols), c.Tracker.MaxSymbols)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	return nil
}

// bindEnv binds a key to one or more environment variable names.
func bindEnv(v *viper.Viper, key string, envs ...string) {
	args := append([]string{key}, envs...)
	if err := v.BindEnv(args...); err != nil {
		log.Printf("Could not bind env var for key %s: %v", key, err)
	}
}
