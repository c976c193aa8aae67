package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Unlimited is the sentinel for counters configured as "unlimited".
const Unlimited = -1

// Trading mode for the grid.
const (
	ModeLong    = "long"
	ModeShort   = "short"
	ModeNeutral = "neutral"
)

// Take-profit mode for grid positions.
const (
	TPModePercentage = "PERCENTAGE"
	TPModeGridRange  = "GRID_RANGE"
)

// Position size interpretation.
const (
	SizeTypeBase  = "BASE"  // size is base-asset quantity
	SizeTypeQuote = "QUOTE" // size is quote value, divided by price
)

// Behavior on NEUTRAL momentum for the market position.
const (
	NeutralActionStop     = "stop"
	NeutralActionContinue = "continue"
)

// Config holds the full bot configuration, loaded from environment variables.
type Config struct {
	// Grid trading
	Mode                      string
	Symbol                    string
	Leverage                  int
	StartPrice                float64
	EndPrice                  float64
	GridSize                  int // number of divisions of the price range
	PositionSizeType          string
	PositionSize              float64
	TPMode                    string
	TakeProfitPercent         float64 // 0 disables the take-profit check
	StopLossPercent           float64 // 0 disables the stop-loss check
	EnableRangeExitRule       bool
	RangeExitThresholdPercent float64
	MaxConsecutivePositions   int // Unlimited disables the rule
	EnablePositionReopen      bool
	GridBotNeutralOnly        bool
	DualSidePosition          bool

	// Market position logic (volatility detector driven)
	EnableMarketPositionLogic bool
	AnalysisInterval          time.Duration
	AnalysisMaxRetries        int
	AnalysisKlineInterval     string
	AnalysisKlineLimit        int
	MaxMarketPositionReopens  int // Unlimited disables the limit
	NeutralMomentumAction     string

	// Exchange
	BinanceAPIKey    string
	BinanceAPISecret string
	Testnet          bool
	PaperTrading     bool

	// Runtime
	CycleInterval    time.Duration
	ShutdownFlagFile string
	LogLevel         string
	DBPath           string
	APIServerPort    int // 0 disables the status server
	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from environment variables and validates it.
// Invalid required settings are returned as errors; the caller treats them as fatal.
func Load() (*Config, error) {
	cfg := &Config{
		Mode:                      strings.ToLower(getEnv("MODE", "long")),
		Symbol:                    strings.ToUpper(getEnv("SYMBOL", "BTCUSDT")),
		Leverage:                  getEnvInt("LEVERAGE", 20),
		StartPrice:                getEnvFloat("START_PRICE", 60000),
		EndPrice:                  getEnvFloat("END_PRICE", 70000),
		GridSize:                  getEnvInt("GRID_SIZE", 100),
		PositionSizeType:          strings.ToUpper(getEnv("POSITION_SIZE_TYPE", SizeTypeQuote)),
		PositionSize:              getEnvFloat("POSITION_SIZE", 10),
		TPMode:                    strings.ToUpper(getEnv("TP_MODE", TPModePercentage)),
		TakeProfitPercent:         getEnvFloat("TAKE_PROFIT_PERCENT", 0),
		StopLossPercent:           getEnvFloat("STOP_LOSS_PERCENT", 0),
		EnableRangeExitRule:       getEnvBool("ENABLE_RANGE_EXIT_RULE", true),
		RangeExitThresholdPercent: getEnvFloat("RANGE_EXIT_THRESHOLD_PERCENT", 100),
		MaxConsecutivePositions:   getEnvLimit("MAX_CONSECUTIVE_GRID_POSITIONS", 3),
		EnablePositionReopen:      getEnvBool("ENABLE_POSITION_REOPEN", true),
		GridBotNeutralOnly:        getEnvBool("GRID_BOT_NEUTRAL_ONLY", false),
		DualSidePosition:          getEnvBool("DUAL_SIDE_POSITION", false),

		EnableMarketPositionLogic: getEnvBool("ENABLE_MARKET_POSITION_LOGIC", true),
		AnalysisInterval:          time.Duration(getEnvInt("ANALYSIS_INTERVAL_MINUTES", 10)) * time.Minute,
		AnalysisMaxRetries:        getEnvInt("ANALYSIS_MAX_RETRIES", 3),
		AnalysisKlineInterval:     getEnv("ANALYSIS_KLINE_INTERVAL", "1m"),
		AnalysisKlineLimit:        getEnvInt("ANALYSIS_KLINE_LIMIT", 200),
		MaxMarketPositionReopens:  getEnvLimit("MAX_MARKET_POSITION_REOPENS", Unlimited),
		NeutralMomentumAction:     strings.ToLower(getEnv("NEUTRAL_MOMENTUM_ACTION", NeutralActionStop)),

		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		Testnet:          getEnvBool("TESTNET", true),
		PaperTrading:     getEnvBool("PAPER_TRADING", false),

		CycleInterval:    time.Duration(getEnvInt("CYCLE_INTERVAL_SECONDS", 10)) * time.Second,
		ShutdownFlagFile: getEnv("SHUTDOWN_FLAG_FILE", ".close_now"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DBPath:           getEnv("DB_PATH", "data/gridscalper.db"),
		APIServerPort:    getEnvInt("API_SERVER_PORT", 0),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeLong, ModeShort, ModeNeutral:
	default:
		return fmt.Errorf("MODE must be 'long', 'short', or 'neutral', got %q", c.Mode)
	}

	switch c.TPMode {
	case TPModePercentage, TPModeGridRange:
	default:
		return fmt.Errorf("TP_MODE must be 'PERCENTAGE' or 'GRID_RANGE', got %q", c.TPMode)
	}

	switch c.PositionSizeType {
	case SizeTypeBase, SizeTypeQuote:
	default:
		return fmt.Errorf("POSITION_SIZE_TYPE must be 'BASE' or 'QUOTE', got %q", c.PositionSizeType)
	}

	switch c.NeutralMomentumAction {
	case NeutralActionStop, NeutralActionContinue:
	default:
		return fmt.Errorf("NEUTRAL_MOMENTUM_ACTION must be 'stop' or 'continue', got %q", c.NeutralMomentumAction)
	}

	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL must not be empty")
	}
	if c.StartPrice >= c.EndPrice {
		return fmt.Errorf("START_PRICE (%.2f) must be below END_PRICE (%.2f)", c.StartPrice, c.EndPrice)
	}
	if c.GridSize < 2 {
		return fmt.Errorf("GRID_SIZE must be at least 2, got %d", c.GridSize)
	}
	if c.PositionSize <= 0 {
		return fmt.Errorf("POSITION_SIZE must be positive, got %.4f", c.PositionSize)
	}
	if c.Leverage < 1 {
		return fmt.Errorf("LEVERAGE must be at least 1, got %d", c.Leverage)
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL_SECONDS must be positive")
	}
	if !c.PaperTrading && (c.BinanceAPIKey == "" || c.BinanceAPISecret == "") {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET must be provided (or set PAPER_TRADING=true)")
	}

	return nil
}

// UnlimitedReopens reports whether market position reopens are uncapped.
func (c *Config) UnlimitedReopens() bool {
	return c.MaxMarketPositionReopens == Unlimited
}

// UnlimitedGridPositions reports whether the consecutive grid position rule is disabled.
func (c *Config) UnlimitedGridPositions() bool {
	return c.MaxConsecutivePositions == Unlimited
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return fallback
}

// getEnvLimit parses an integer limit that also accepts the string "unlimited".
func getEnvLimit(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if strings.EqualFold(v, "unlimited") {
		return Unlimited
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return fallback
}
