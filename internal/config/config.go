package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is loaded once at startup and treated as immutable afterwards.
type Config struct {
	Exchange Exchange `mapstructure:"exchange"`
	Trading  Trading  `mapstructure:"trading"`
	Telegram Telegram `mapstructure:"telegram"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
}

// Exchange holds the configuration for the Bitget API.
type Exchange struct {
	BaseURL        string  `mapstructure:"base_url"`
	WsURL          string  `mapstructure:"ws_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Passphrase     string  `mapstructure:"passphrase"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutMs      int     `mapstructure:"timeout_ms"`
}

// Risk holds the per-instrument risk limits.
type Risk struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"`
	MaxOrderSize    float64 `mapstructure:"max_order_size"`
	MaxOpenOrders   int     `mapstructure:"max_open_orders"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	TrailingStopPct float64 `mapstructure:"trailing_stop_pct"`
}

// Instrument describes one traded instrument and the strategy attached to it.
type Instrument struct {
	Symbol         string  `mapstructure:"symbol"`
	BaseAsset      string  `mapstructure:"base_asset"`
	TickSize       float64 `mapstructure:"tick_size"`
	MinOrderSize   float64 `mapstructure:"min_order_size"`
	FeeRate        float64 `mapstructure:"fee_rate"`
	Strategy       string  `mapstructure:"strategy"`
	OrderSize      float64 `mapstructure:"order_size"`
	CadenceSeconds int     `mapstructure:"cadence_seconds"`
	Risk           Risk    `mapstructure:"risk"`
}

// Trading holds the configuration for the trading engine.
type Trading struct {
	Instruments        []Instrument `mapstructure:"instruments"`
	MaxRetries         int          `mapstructure:"max_retries"`
	BackoffBaseMs      int          `mapstructure:"backoff_base_ms"`
	OrderTTLSeconds    int          `mapstructure:"order_ttl_seconds"`
	ReconcileSeconds   int          `mapstructure:"reconcile_seconds"`
	StaleAfterSeconds  int          `mapstructure:"stale_after_seconds"`
	MaxAccountNotional float64      `mapstructure:"max_account_notional"`
	BalanceTolerance   float64      `mapstructure:"balance_tolerance"`
	DryRun             bool         `mapstructure:"dry_run"`
}

// Telegram holds the configuration for the Telegram notification sink.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	Token    string `mapstructure:"token"`
	ChatID   string `mapstructure:"chat_id"`
	Parse    string `mapstructure:"parse_mode"`
	TimeoutS int    `mapstructure:"timeout_seconds"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Database holds the configuration for the report database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	// The credential keys need defaults so viper knows them: AutomaticEnv
	// only surfaces environment variables for keys viper has already seen.
	viper.SetDefault("exchange.apiKey", "")
	viper.SetDefault("exchange.secretKey", "")
	viper.SetDefault("exchange.passphrase", "")
	viper.SetDefault("exchange.base_url", "https://api.bitget.com")
	viper.SetDefault("exchange.ws_url", "wss://ws.bitget.com/v2/ws/public")
	viper.SetDefault("exchange.rate_limit", 10) // requests per second
	viper.SetDefault("exchange.rate_limit_burst", 5)
	viper.SetDefault("exchange.timeout_ms", 5000)
	viper.SetDefault("trading.max_retries", 3)
	viper.SetDefault("trading.backoff_base_ms", 500)
	viper.SetDefault("trading.order_ttl_seconds", 120)
	viper.SetDefault("trading.reconcile_seconds", 15)
	viper.SetDefault("trading.stale_after_seconds", 30)
	viper.SetDefault("trading.balance_tolerance", 1e-8)
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.max_size_mb", 50)
	viper.SetDefault("logger.max_backups", 5)
	viper.SetDefault("database.dsn", "trader.db")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate checks the loaded configuration for values the engine cannot
// safely run with. Configuration failure is the only fatal error class.
func (c *Config) Validate() error {
	if len(c.Trading.Instruments) == 0 {
		return fmt.Errorf("no instruments configured")
	}
	seen := make(map[string]struct{}, len(c.Trading.Instruments))
	for _, inst := range c.Trading.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instrument with empty symbol")
		}
		if _, ok := seen[inst.Symbol]; ok {
			return fmt.Errorf("duplicate instrument %s", inst.Symbol)
		}
		seen[inst.Symbol] = struct{}{}
		if inst.BaseAsset == "" {
			return fmt.Errorf("instrument %s: base_asset is required", inst.Symbol)
		}
		if inst.CadenceSeconds <= 0 {
			return fmt.Errorf("instrument %s: cadence_seconds must be positive", inst.Symbol)
		}
		if inst.OrderSize <= 0 {
			return fmt.Errorf("instrument %s: order_size must be positive", inst.Symbol)
		}
		if inst.Risk.MaxPositionSize <= 0 {
			return fmt.Errorf("instrument %s: risk.max_position_size must be positive", inst.Symbol)
		}
		if inst.Risk.MaxOpenOrders < 0 {
			return fmt.Errorf("instrument %s: risk.max_open_orders must not be negative", inst.Symbol)
		}
		if inst.Risk.StopLossPct < 0 {
			return fmt.Errorf("instrument %s: risk.stop_loss_pct must not be negative", inst.Symbol)
		}
		if inst.Risk.TrailingStopPct < 0 {
			return fmt.Errorf("instrument %s: risk.trailing_stop_pct must not be negative", inst.Symbol)
		}
	}
	if c.Trading.MaxRetries < 0 {
		return fmt.Errorf("trading.max_retries must not be negative")
	}
	if c.Trading.BackoffBaseMs <= 0 {
		return fmt.Errorf("trading.backoff_base_ms must be positive")
	}
	if !c.Trading.DryRun && (c.Exchange.ApiKey == "" || c.Exchange.SecretKey == "") {
		return fmt.Errorf("exchange credentials are required unless dry_run is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
