package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MSTRUCT_DATA_SOURCE_API_KEY.
const EnvPrefix = "MSTRUCT"

// State modes for session-scoped ORB and FVG state.
const (
	StateRecompute   = "recompute"
	StateIncremental = "incremental"
)

// Config holds all application configuration.
type Config struct {
	DataSource DataSource `yaml:"data_source" envconfig:"DATA_SOURCE"`
	Cache      Cache      `yaml:"cache" envconfig:"CACHE"`
	Analysis   Analysis   `yaml:"analysis" envconfig:"ANALYSIS"`
	Session    Session    `yaml:"session" envconfig:"SESSION"`
	Server     Server     `yaml:"server" envconfig:"SERVER"`
	Scheduler  Scheduler  `yaml:"scheduler" envconfig:"SCHEDULER"`
	Telegram   Telegram   `yaml:"telegram" envconfig:"TELEGRAM"`
	Database   struct {
		SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	} `yaml:"database" envconfig:"DATABASE"`
	Log struct {
		Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=console json"`
	} `yaml:"log" envconfig:"LOG"`
	Proxy string `yaml:"proxy" envconfig:"PROXY"`
}

type DataSource struct {
	Provider        string        `yaml:"provider" envconfig:"PROVIDER" validate:"oneof=mock twelvedata yahoo"`
	BaseURL         string        `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	APIKey          string        `yaml:"api_key" envconfig:"API_KEY" validate:"required_if=Provider twelvedata"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gt=0"`
	Burst           int           `yaml:"burst" envconfig:"BURST" validate:"gte=1"`
	BreakerFailures uint32        `yaml:"breaker_failures" envconfig:"BREAKER_FAILURES"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" envconfig:"BREAKER_TIMEOUT"`
	MockPrice       float64       `yaml:"mock_price" envconfig:"MOCK_PRICE"`
}

type Cache struct {
	Backend       string        `yaml:"backend" envconfig:"BACKEND" validate:"oneof=none memory redis"`
	TTL           time.Duration `yaml:"ttl" envconfig:"TTL"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB"`
}

type Analysis struct {
	Timeframes     []string           `yaml:"timeframes" envconfig:"TIMEFRAMES" validate:"min=1,dive,oneof=1m 5m 15m 30m 1h 1d"`
	ZoneTimeframes []string           `yaml:"zone_timeframes" envconfig:"ZONE_TIMEFRAMES" validate:"min=1,dive,oneof=1m 5m 15m 30m 1h 1d"`
	ORBPeriods     []int              `yaml:"orb_periods" envconfig:"ORB_PERIODS" validate:"min=1,dive,gt=0"`
	ConfirmBars    int                `yaml:"confirm_bars" envconfig:"CONFIRM_BARS" validate:"gte=1"`
	ValueAreaPct   float64            `yaml:"value_area_pct" envconfig:"VALUE_AREA_PCT" validate:"gt=0,lte=1"`
	HVNMultiplier  float64            `yaml:"hvn_multiplier" envconfig:"HVN_MULTIPLIER" validate:"gt=0"`
	LVNFraction    float64            `yaml:"lvn_fraction" envconfig:"LVN_FRACTION" validate:"gt=0"`
	BinCount       int                `yaml:"bin_count" envconfig:"BIN_COUNT" validate:"gte=0"`
	TickSize       float64            `yaml:"tick_size" envconfig:"TICK_SIZE" validate:"gt=0"`
	TickSizes      map[string]float64 `yaml:"tick_sizes" envconfig:"TICK_SIZES"`
	ZoneTolerance  float64            `yaml:"zone_tolerance_pct" envconfig:"ZONE_TOLERANCE_PCT" validate:"gt=0"`
	MinGapPct      float64            `yaml:"fvg_min_gap_pct" envconfig:"FVG_MIN_GAP_PCT" validate:"gte=0"`
	NearestGaps    int                `yaml:"nearest_gap_limit" envconfig:"NEAREST_GAP_LIMIT" validate:"gte=1"`
	DailyLookback  int                `yaml:"daily_lookback_days" envconfig:"DAILY_LOOKBACK_DAYS" validate:"gte=2"`
	StateMode      string             `yaml:"state_mode" envconfig:"STATE_MODE" validate:"oneof=recompute incremental"`
	StateFile      string             `yaml:"state_file" envconfig:"STATE_FILE"`
}

type Session struct {
	Timezone string   `yaml:"timezone" envconfig:"TIMEZONE"`
	Open     string   `yaml:"open" envconfig:"OPEN"`
	Close    string   `yaml:"close" envconfig:"CLOSE"`
	Holidays []string `yaml:"holidays" envconfig:"HOLIDAYS"`
}

type Server struct {
	Addr string `yaml:"addr" envconfig:"ADDR"`
}

type Scheduler struct {
	Watchlist []string `yaml:"watchlist" envconfig:"WATCHLIST"`
	PollCron  string   `yaml:"poll_cron" envconfig:"POLL_CRON"`
	PurgeCron string   `yaml:"purge_cron" envconfig:"PURGE_CRON"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" envconfig:"CHAT_ID" validate:"required_with=BotToken"`
}

// Load reads config from a YAML file, then a .env file, then MSTRUCT_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	// HTTPS_PROXY is honored without the prefix, as most tooling does
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Proxy == "" {
		cfg.Proxy = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "mock"
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 30 * time.Second
	}
	if c.DataSource.RateLimitRPS == 0 {
		c.DataSource.RateLimitRPS = 8
	}
	if c.DataSource.Burst == 0 {
		c.DataSource.Burst = 4
	}
	if c.DataSource.BreakerFailures == 0 {
		c.DataSource.BreakerFailures = 5
	}
	if c.DataSource.BreakerTimeout == 0 {
		c.DataSource.BreakerTimeout = 30 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 30 * time.Second
	}

	a := &c.Analysis
	if len(a.Timeframes) == 0 {
		a.Timeframes = []string{"1m", "5m", "15m"}
	}
	if len(a.ZoneTimeframes) == 0 {
		a.ZoneTimeframes = []string{"1m", "5m", "1d"}
	}
	if len(a.ORBPeriods) == 0 {
		a.ORBPeriods = []int{5, 15, 30}
	}
	if a.ConfirmBars == 0 {
		a.ConfirmBars = 3
	}
	if a.ValueAreaPct == 0 {
		a.ValueAreaPct = 0.70
	}
	if a.HVNMultiplier == 0 {
		a.HVNMultiplier = 1.5
	}
	if a.LVNFraction == 0 {
		a.LVNFraction = 0.5
	}
	if a.TickSize == 0 {
		a.TickSize = 0.01
	}
	if a.ZoneTolerance == 0 {
		a.ZoneTolerance = 0.001
	}
	if a.NearestGaps == 0 {
		a.NearestGaps = 3
	}
	if a.DailyLookback == 0 {
		a.DailyLookback = 30
	}
	if a.StateMode == "" {
		a.StateMode = StateRecompute
	}

	if c.Session.Timezone == "" {
		c.Session.Timezone = "America/New_York"
	}
	if c.Session.Open == "" {
		c.Session.Open = "09:30"
	}
	if c.Session.Close == "" {
		c.Session.Close = "16:00"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Scheduler.PollCron == "" {
		c.Scheduler.PollCron = "0 */1 9-16 * * 1-5"
	}
	if c.Scheduler.PurgeCron == "" {
		c.Scheduler.PurgeCron = "0 0 3 * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/market_structure.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// TickFor returns the configured tick size of symbol.
func (c *Config) TickFor(symbol string) float64 {
	if t, ok := c.Analysis.TickSizes[symbol]; ok && t > 0 {
		return t
	}
	return c.Analysis.TickSize
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
