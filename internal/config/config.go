// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Risk       RiskConfig       `mapstructure:"risk"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // set at runtime from flags
}

// ScannerConfig drives the scan scheduler.
type ScannerConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	MaxConcurrentScans int           `mapstructure:"max_concurrent_scans"`
	BatchSize          int           `mapstructure:"batch_size"`
	ExecutionTimeout   time.Duration `mapstructure:"execution_timeout"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout"`
	RollupInterval     time.Duration `mapstructure:"rollup_interval"`
	RiskCheckInterval  time.Duration `mapstructure:"risk_check_interval"`
	ExpiryInterval     time.Duration `mapstructure:"expiry_interval"`
	PerformanceWindow  time.Duration `mapstructure:"performance_window"`
	Instruments        []string      `mapstructure:"instruments"`
	Venues             []string      `mapstructure:"venues"`
	AutoStart          bool          `mapstructure:"auto_start"`
}

// DetectionConfig tunes the opportunity detector.
type DetectionConfig struct {
	MinProfitPct         float64            `mapstructure:"min_profit_pct"`
	MaxProfitPct         float64            `mapstructure:"max_profit_pct"`
	StrategyMinProfitPct map[string]float64 `mapstructure:"strategy_min_profit_pct"`
	TriangularCycles     []string           `mapstructure:"triangular_cycles"`
	MomentumMinChangePct float64            `mapstructure:"momentum_min_change_pct"`
	MomentumMinVolume    float64            `mapstructure:"momentum_min_volume"`
	MomentumCapture      float64            `mapstructure:"momentum_capture"`
	YieldMinSpreadPct    float64            `mapstructure:"yield_min_spread_pct"`
	VenueFeePct          map[string]float64 `mapstructure:"venue_fee_pct"`
	NetworkCost          float64            `mapstructure:"network_cost"`
	CandidateTTL         time.Duration      `mapstructure:"candidate_ttl"`
	MaxPrice             float64            `mapstructure:"max_price"`
	DefaultVolume        float64            `mapstructure:"default_volume"`
}

// RiskConfig mirrors the risk engine's configuration. Monetary values are in
// the quote currency.
type RiskConfig struct {
	PortfolioBalance     float64            `mapstructure:"portfolio_balance"`
	MaxDailyLoss         float64            `mapstructure:"max_daily_loss"`
	MaxPositionSize      float64            `mapstructure:"max_position_size"`
	MinPositionSize      float64            `mapstructure:"min_position_size"`
	MaxConcurrentTrades  int                `mapstructure:"max_concurrent_trades"`
	MaxFractionPerTrade  float64            `mapstructure:"max_fraction_per_trade"`
	MaxSlippagePct       float64            `mapstructure:"max_slippage_pct"`
	MinLiquidityScore    float64            `mapstructure:"min_liquidity_score"`
	MaxNetworkCost       float64            `mapstructure:"max_network_cost"`
	MaxExecutionTime     time.Duration      `mapstructure:"max_execution_time"`
	EmergencyDrawdownPct float64            `mapstructure:"emergency_drawdown_pct"`
	MaxConcentrationPct  float64            `mapstructure:"max_concentration_pct"`
	VolatilityMultiplier float64            `mapstructure:"volatility_multiplier"`
	HighVolatilityIndex  float64            `mapstructure:"high_volatility_index"`
	LowRiskThreshold     float64            `mapstructure:"low_risk_threshold"`
	MidRiskThreshold     float64            `mapstructure:"mid_risk_threshold"`
	KellyFraction        float64            `mapstructure:"kelly_fraction"`
	MaxKellyFraction     float64            `mapstructure:"max_kelly_fraction"`
	TargetAllocation     map[string]float64 `mapstructure:"target_allocation"`
	VenueWeights         map[string]float64 `mapstructure:"venue_weights"`
	ChainWeights         map[string]float64 `mapstructure:"chain_weights"`
}

// MarketDataConfig selects and configures the ticker feed.
type MarketDataConfig struct {
	Feed              string        `mapstructure:"feed"` // binance | simulated
	BinanceWSURL      string        `mapstructure:"binance_ws_url"`
	BinanceRESTURL    string        `mapstructure:"binance_rest_url"`
	StaleTimeout      time.Duration `mapstructure:"stale_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	SimulatedVenues   []string      `mapstructure:"simulated_venues"`
	SimulatedSeed     uint64        `mapstructure:"simulated_seed"`
	SimulatedTick     time.Duration `mapstructure:"simulated_tick"`
}

// ExecutionConfig selects the execution adapter.
type ExecutionConfig struct {
	Adapter           string        `mapstructure:"adapter"` // simulated | rest
	GatewayURL        string        `mapstructure:"gateway_url"`
	APIKey            string        `mapstructure:"api_key"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	SlippagePct       float64       `mapstructure:"slippage_pct"`
	Latency           time.Duration `mapstructure:"latency"`
	FailureRate       float64       `mapstructure:"failure_rate"`
	Seed              uint64        `mapstructure:"seed"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres | memory
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig configures the cross-process execution claim.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// KafkaConfig configures executed-trade publishing.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// EthereumConfig configures the network cost oracle.
type EthereumConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPCURL          string        `mapstructure:"rpc_url"`
	GasLimit        uint64        `mapstructure:"gas_limit"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	MaxGasPriceGwei float64       `mapstructure:"max_gas_price_gwei"`
	NativeSymbol    string        `mapstructure:"native_symbol"`
	NativePrice     float64       `mapstructure:"native_price"`
}

// TelegramConfig configures emergency-stop alerts.
type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	ChatID      int64  `mapstructure:"chat_id"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

// HTTPConfig configures the control API and health server.
type HTTPConfig struct {
	Port       int `mapstructure:"port"`
	HealthPort int `mapstructure:"health_port"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// MinProfitPctDecimal returns the admission floor as a decimal.
func (c *DetectionConfig) MinProfitPctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitPct)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("scanner.interval", "ARB_SCAN_INTERVAL")
	v.BindEnv("scanner.instruments", "ARB_INSTRUMENTS")

	v.BindEnv("marketdata.feed", "ARB_FEED")
	v.BindEnv("marketdata.binance_ws_url", "ARB_BINANCE_WS_URL", "BINANCE_WS_URL")
	v.BindEnv("marketdata.binance_rest_url", "ARB_BINANCE_REST_URL", "BINANCE_REST_URL")

	v.BindEnv("execution.adapter", "ARB_EXECUTION_ADAPTER")
	v.BindEnv("execution.gateway_url", "ARB_GATEWAY_URL")
	v.BindEnv("execution.api_key", "ARB_GATEWAY_API_KEY")

	v.BindEnv("storage.driver", "ARB_STORAGE_DRIVER")
	v.BindEnv("storage.path", "ARB_SQLITE_PATH")
	v.BindEnv("storage.dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")

	v.BindEnv("redis.enabled", "ARB_REDIS_ENABLED")
	v.BindEnv("redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")

	v.BindEnv("kafka.enabled", "ARB_KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "ARB_KAFKA_BROKERS", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "ARB_KAFKA_TOPIC")

	v.BindEnv("ethereum.enabled", "ARB_ETH_ENABLED")
	v.BindEnv("ethereum.rpc_url", "ARB_ETH_RPC_URL", "ETH_HTTP_URL")

	v.BindEnv("telegram.enabled", "ARB_TELEGRAM_ENABLED")
	v.BindEnv("telegram.token", "ARB_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "ARB_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arbitrage-scanner")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("scanner.interval", "5s")
	v.SetDefault("scanner.max_concurrent_scans", 5)
	v.SetDefault("scanner.batch_size", 3)
	v.SetDefault("scanner.execution_timeout", "10s")
	v.SetDefault("scanner.stop_timeout", "30s")
	v.SetDefault("scanner.rollup_interval", "1m")
	v.SetDefault("scanner.risk_check_interval", "15s")
	v.SetDefault("scanner.expiry_interval", "10s")
	v.SetDefault("scanner.performance_window", "24h")
	v.SetDefault("scanner.instruments", []string{"BTC/USDT", "ETH/USDT", "ETH/BTC", "SOL/USDT"})
	v.SetDefault("scanner.venues", []string{})
	v.SetDefault("scanner.auto_start", true)

	v.SetDefault("detection.min_profit_pct", 0.3)
	v.SetDefault("detection.max_profit_pct", 50)
	v.SetDefault("detection.triangular_cycles", []string{"USDT-BTC-ETH"})
	v.SetDefault("detection.momentum_min_change_pct", 3)
	v.SetDefault("detection.momentum_min_volume", 1000000)
	v.SetDefault("detection.momentum_capture", 0.1)
	v.SetDefault("detection.yield_min_spread_pct", 0.5)
	v.SetDefault("detection.venue_fee_pct", map[string]float64{"binance": 0.1, "coinbase": 0.6, "kraken": 0.26})
	v.SetDefault("detection.network_cost", 0)
	v.SetDefault("detection.candidate_ttl", "30s")
	v.SetDefault("detection.max_price", 10000000)
	v.SetDefault("detection.default_volume", 1)

	v.SetDefault("risk.portfolio_balance", 10000)
	v.SetDefault("risk.max_daily_loss", 500)
	v.SetDefault("risk.max_position_size", 2000)
	v.SetDefault("risk.min_position_size", 10)
	v.SetDefault("risk.max_concurrent_trades", 5)
	v.SetDefault("risk.max_fraction_per_trade", 0.1)
	v.SetDefault("risk.max_slippage_pct", 0.5)
	v.SetDefault("risk.min_liquidity_score", 30)
	v.SetDefault("risk.max_network_cost", 50)
	v.SetDefault("risk.max_execution_time", "60s")
	v.SetDefault("risk.emergency_drawdown_pct", 15)
	v.SetDefault("risk.max_concentration_pct", 40)
	v.SetDefault("risk.volatility_multiplier", 0.5)
	v.SetDefault("risk.high_volatility_index", 0.8)
	v.SetDefault("risk.low_risk_threshold", 30)
	v.SetDefault("risk.mid_risk_threshold", 60)
	v.SetDefault("risk.kelly_fraction", 0.5)
	v.SetDefault("risk.max_kelly_fraction", 0.25)
	v.SetDefault("risk.target_allocation", map[string]float64{"crypto": 0.7, "stablecoin": 0.3})
	v.SetDefault("risk.venue_weights", map[string]float64{"binance": 1.0})
	v.SetDefault("risk.chain_weights", map[string]float64{"ethereum": 1.0})

	v.SetDefault("marketdata.feed", "simulated")
	v.SetDefault("marketdata.binance_ws_url", "wss://stream.binance.com:9443")
	v.SetDefault("marketdata.binance_rest_url", "https://api.binance.com")
	v.SetDefault("marketdata.stale_timeout", "10s")
	v.SetDefault("marketdata.poll_interval", "30s")
	v.SetDefault("marketdata.requests_per_second", 5)
	v.SetDefault("marketdata.simulated_venues", []string{"binance", "coinbase", "kraken"})
	v.SetDefault("marketdata.simulated_seed", 42)
	v.SetDefault("marketdata.simulated_tick", "1s")

	v.SetDefault("execution.adapter", "simulated")
	v.SetDefault("execution.requests_per_second", 10)
	v.SetDefault("execution.slippage_pct", 0.05)
	v.SetDefault("execution.latency", "200ms")
	v.SetDefault("execution.failure_rate", 0.05)
	v.SetDefault("execution.seed", 7)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "scanner.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", "2m")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "executed-trades")

	v.SetDefault("ethereum.enabled", false)
	v.SetDefault("ethereum.gas_limit", 250000)
	v.SetDefault("ethereum.cache_ttl", "12s")
	v.SetDefault("ethereum.max_gas_price_gwei", 500)
	v.SetDefault("ethereum.native_symbol", "ETH/USDT")
	v.SetDefault("ethereum.native_price", 3000)

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.health_port", 8081)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "arbitrage-scanner")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration. Risk limits get a deeper check when
// the risk engine builds its configuration.
func (c *Config) Validate() error {
	if c.Scanner.Interval < time.Second {
		return fmt.Errorf("scanner.interval must be at least 1s, got %s", c.Scanner.Interval)
	}
	if c.Scanner.MaxConcurrentScans < 1 {
		return fmt.Errorf("scanner.max_concurrent_scans must be positive")
	}
	if c.Scanner.BatchSize < 1 {
		return fmt.Errorf("scanner.batch_size must be positive")
	}
	if c.Scanner.ExecutionTimeout <= 0 {
		return fmt.Errorf("scanner.execution_timeout must be positive")
	}
	if len(c.Scanner.Instruments) == 0 {
		return fmt.Errorf("scanner.instruments cannot be empty")
	}
	if c.Detection.MinProfitPct <= 0 {
		return fmt.Errorf("detection.min_profit_pct must be positive")
	}
	if c.Detection.MaxProfitPct <= c.Detection.MinProfitPct {
		return fmt.Errorf("detection.max_profit_pct must exceed min_profit_pct")
	}
	if c.Detection.CandidateTTL <= 0 {
		return fmt.Errorf("detection.candidate_ttl must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.EmergencyDrawdownPct <= 0 {
		return fmt.Errorf("risk emergency thresholds must be positive")
	}
	if !slices.Contains([]string{"binance", "simulated"}, c.MarketData.Feed) {
		return fmt.Errorf("unknown marketdata.feed %q", c.MarketData.Feed)
	}
	if !slices.Contains([]string{"simulated", "rest"}, c.Execution.Adapter) {
		return fmt.Errorf("unknown execution.adapter %q", c.Execution.Adapter)
	}
	if c.Execution.Adapter == "rest" && c.Execution.GatewayURL == "" {
		return fmt.Errorf("execution.gateway_url is required for the rest adapter")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if c.Ethereum.Enabled && c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required when ethereum is enabled")
	}
	return nil
}
