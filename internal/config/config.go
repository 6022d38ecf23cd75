package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Notify    NotifyConfig    `mapstructure:"notify"`

	Risk      RiskConfig      `mapstructure:"risk"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Venue     VenueConfig     `mapstructure:"venue"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Services  ServicesConfig  `mapstructure:"services"`
	Trader    TraderConfig    `mapstructure:"trader"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// DBConfig selects the storage backend. Driver is one of postgres, sqlite or
// memory; memory keeps everything in-process and is meant for backtests.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	Secret      string        `mapstructure:"secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	ServiceName string        `mapstructure:"service_name"`
	Disabled    bool          `mapstructure:"disabled"`
}

type ProfilingConfig struct {
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

type NotifyConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Agent   string `mapstructure:"agent"`
}

// RiskConfig carries the admission limits. Percentages are fractions of
// total capital except the drawdown thresholds, which are percent points.
type RiskConfig struct {
	MinConfidence           float64       `mapstructure:"min_confidence"`
	MaxTradePct             float64       `mapstructure:"max_trade_pct"`
	MaxMarketExposurePct    float64       `mapstructure:"max_market_exposure_pct"`
	KillSwitchDrawdownPct   float64       `mapstructure:"kill_switch_drawdown_pct"`
	PreservationDrawdownPct float64       `mapstructure:"preservation_drawdown_pct"`
	PreservationFactor      float64       `mapstructure:"preservation_factor"`
	CapitalBufferPct        float64       `mapstructure:"capital_buffer_pct"`
	MinTradeUSD             float64       `mapstructure:"min_trade_usd"`
	MaxOpenPositions        int           `mapstructure:"max_open_positions"`
	VolatilityWindow        int           `mapstructure:"volatility_window"`
	VolatilityMinSamples    int           `mapstructure:"volatility_min_samples"`
	VolatilityCacheTTL      time.Duration `mapstructure:"volatility_cache_ttl"`
	DefaultVolatility       float64       `mapstructure:"default_volatility"`
	SnapshotSchedule        string        `mapstructure:"snapshot_schedule"`
	MonteCarloHistoryDays   int           `mapstructure:"monte_carlo_history_days"`
	InitialCapital          float64       `mapstructure:"initial_capital"`
}

type ConsensusConfig struct {
	MinConfidence    float64 `mapstructure:"min_confidence"`
	MinSizeUSD       float64 `mapstructure:"min_size_usd"`
	WeakGap          float64 `mapstructure:"weak_gap"`
	GapPenalty       float64 `mapstructure:"gap_penalty"`
	EvidenceScale    float64 `mapstructure:"evidence_scale"`
	PriorAlpha       float64 `mapstructure:"prior_alpha"`
	PriorBeta        float64 `mapstructure:"prior_beta"`
	ReflectAlpha     float64 `mapstructure:"reflect_alpha"`
	MinWeight        float64 `mapstructure:"min_weight"`
	MaxWeight        float64 `mapstructure:"max_weight"`
	MinReflectTrades int     `mapstructure:"min_reflect_trades"`
	SellTieBreak     string  `mapstructure:"sell_tie_break"`
}

type ExecutorConfig struct {
	Simulation            bool          `mapstructure:"simulation"`
	MaxRetries            int           `mapstructure:"max_retries"`
	BaseDelay             time.Duration `mapstructure:"base_delay"`
	ConfirmTimeout        time.Duration `mapstructure:"confirm_timeout"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	MinConfirmations      uint64        `mapstructure:"min_confirmations"`
	MinGasBalance         float64       `mapstructure:"min_gas_balance"`
	DefaultMaxSlippageBps int           `mapstructure:"default_max_slippage_bps"`
	OrderTTL              time.Duration `mapstructure:"order_ttl"`
	FeeRateBps            int64         `mapstructure:"fee_rate_bps"`
	SimMaxSlippageBps     int           `mapstructure:"sim_max_slippage_bps"`
	SimDefaultPrice       float64       `mapstructure:"sim_default_price"`
}

type VenueConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	OrderPath    string        `mapstructure:"order_path"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	Passphrase   string        `mapstructure:"passphrase"`
	SignRequests bool          `mapstructure:"sign_requests"`
}

type ChainConfig struct {
	RPCURL            string `mapstructure:"rpc_url"`
	ChainID           int64  `mapstructure:"chain_id"`
	StableToken       string `mapstructure:"stable_token"`
	StableDecimals    int32  `mapstructure:"stable_decimals"`
	ExchangeContract  string `mapstructure:"exchange_contract"`
	ExchangeName      string `mapstructure:"exchange_name"`
	ExchangeVersion   string `mapstructure:"exchange_version"`
	SignatureType     int    `mapstructure:"signature_type"`
	NativeDecimals    int32  `mapstructure:"native_decimals"`
	NativeAssetSymbol string `mapstructure:"native_asset_symbol"`
}

// WalletConfig names where the signing key comes from. The key itself is
// never part of the config struct.
type WalletConfig struct {
	KeyEnv     string `mapstructure:"key_env"`
	SettingKey string `mapstructure:"setting_key"`
}

type ServicesConfig struct {
	RiskGateURL string        `mapstructure:"risk_gate_url"`
	ExecutorURL string        `mapstructure:"executor_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TraderConfig struct {
	Schedule        string         `mapstructure:"schedule"`
	ReflectSchedule string         `mapstructure:"reflect_schedule"`
	CycleTimeout    time.Duration  `mapstructure:"cycle_timeout"`
	PriceInterval   string         `mapstructure:"price_interval"`
	Markets         []MarketConfig `mapstructure:"markets"`
	Strategies      StrategyConfig `mapstructure:"strategies"`
}

type MarketConfig struct {
	ID         string `mapstructure:"id"`
	YesTokenID string `mapstructure:"yes_token_id"`
	NoTokenID  string `mapstructure:"no_token_id"`
}

type StrategyConfig struct {
	Momentum      MomentumConfig      `mapstructure:"momentum"`
	MeanReversion MeanReversionConfig `mapstructure:"mean_reversion"`
	Exit          ExitConfig          `mapstructure:"exit"`
}

type MomentumConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Lookback    int     `mapstructure:"lookback"`
	MinMovePct  float64 `mapstructure:"min_move_pct"`
	BaseSizePct float64 `mapstructure:"base_size_pct"`
}

type MeanReversionConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Window      int     `mapstructure:"window"`
	EntryZ      float64 `mapstructure:"entry_z"`
	BaseSizePct float64 `mapstructure:"base_size_pct"`
}

type ExitConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	StopLossPct   float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct float64 `mapstructure:"take_profit_pct"`
}

func Load(path string, envOnly bool) (Config, error) {
	// A missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "5m")
	v.SetDefault("auth.service_name", "")
	v.SetDefault("auth.disabled", false)
	v.SetDefault("profiling.server_address", "")
	v.SetDefault("profiling.application_name", "tradegate")
	v.SetDefault("notify.base_url", "")
	v.SetDefault("notify.api_key", "")
	v.SetDefault("notify.agent", "tradegate-risk")

	v.SetDefault("risk.min_confidence", 0.55)
	v.SetDefault("risk.max_trade_pct", 0.02)
	v.SetDefault("risk.max_market_exposure_pct", 0.10)
	v.SetDefault("risk.kill_switch_drawdown_pct", 3.0)
	v.SetDefault("risk.preservation_drawdown_pct", 1.5)
	v.SetDefault("risk.preservation_factor", 0.5)
	v.SetDefault("risk.capital_buffer_pct", 0.05)
	v.SetDefault("risk.min_trade_usd", 1.0)
	v.SetDefault("risk.max_open_positions", 10)
	v.SetDefault("risk.volatility_window", 50)
	v.SetDefault("risk.volatility_min_samples", 5)
	v.SetDefault("risk.volatility_cache_ttl", "5m")
	v.SetDefault("risk.default_volatility", 0.05)
	v.SetDefault("risk.snapshot_schedule", "0 55 23 * * *")
	v.SetDefault("risk.monte_carlo_history_days", 365)
	v.SetDefault("risk.initial_capital", 10000.0)

	v.SetDefault("consensus.min_confidence", 0.55)
	v.SetDefault("consensus.min_size_usd", 1.0)
	v.SetDefault("consensus.weak_gap", 0.1)
	v.SetDefault("consensus.gap_penalty", 0.5)
	v.SetDefault("consensus.evidence_scale", 10.0)
	v.SetDefault("consensus.prior_alpha", 2.0)
	v.SetDefault("consensus.prior_beta", 2.0)
	v.SetDefault("consensus.reflect_alpha", 0.3)
	v.SetDefault("consensus.min_weight", 0.1)
	v.SetDefault("consensus.max_weight", 2.0)
	v.SetDefault("consensus.min_reflect_trades", 5)
	v.SetDefault("consensus.sell_tie_break", "highest_confidence")

	v.SetDefault("executor.simulation", true)
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.base_delay", "1s")
	v.SetDefault("executor.confirm_timeout", "60s")
	v.SetDefault("executor.poll_interval", "2s")
	v.SetDefault("executor.min_confirmations", 1)
	v.SetDefault("executor.min_gas_balance", 0.05)
	v.SetDefault("executor.default_max_slippage_bps", 200)
	v.SetDefault("executor.order_ttl", "24h")
	v.SetDefault("executor.fee_rate_bps", 0)
	v.SetDefault("executor.sim_max_slippage_bps", 50)
	v.SetDefault("executor.sim_default_price", 0.5)

	v.SetDefault("venue.base_url", "https://clob.polymarket.com")
	v.SetDefault("venue.timeout", "15s")
	v.SetDefault("venue.order_path", "/order")
	v.SetDefault("venue.sign_requests", false)

	v.SetDefault("chain.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chain.chain_id", 137)
	v.SetDefault("chain.stable_token", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	v.SetDefault("chain.stable_decimals", 6)
	v.SetDefault("chain.exchange_contract", "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	v.SetDefault("chain.exchange_name", "Polymarket CTF Exchange")
	v.SetDefault("chain.exchange_version", "1")
	v.SetDefault("chain.signature_type", 0)
	v.SetDefault("chain.native_decimals", 18)
	v.SetDefault("chain.native_asset_symbol", "POL")

	v.SetDefault("wallet.key_env", "TG_WALLET_PRIVATE_KEY")
	v.SetDefault("wallet.setting_key", "wallet.private_key")

	v.SetDefault("services.risk_gate_url", "http://localhost:8081")
	v.SetDefault("services.executor_url", "http://localhost:8082")
	v.SetDefault("services.timeout", "90s")

	v.SetDefault("trader.schedule", "@every 60s")
	v.SetDefault("trader.reflect_schedule", "0 0 3 * * *")
	v.SetDefault("trader.cycle_timeout", "5m")
	v.SetDefault("trader.price_interval", "1h")
	v.SetDefault("trader.strategies.momentum.enabled", true)
	v.SetDefault("trader.strategies.momentum.lookback", 12)
	v.SetDefault("trader.strategies.momentum.min_move_pct", 0.03)
	v.SetDefault("trader.strategies.momentum.base_size_pct", 0.015)
	v.SetDefault("trader.strategies.mean_reversion.enabled", true)
	v.SetDefault("trader.strategies.mean_reversion.window", 24)
	v.SetDefault("trader.strategies.mean_reversion.entry_z", 1.5)
	v.SetDefault("trader.strategies.mean_reversion.base_size_pct", 0.01)
	v.SetDefault("trader.strategies.exit.enabled", true)
	v.SetDefault("trader.strategies.exit.stop_loss_pct", 0.15)
	v.SetDefault("trader.strategies.exit.take_profit_pct", 0.25)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
