package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signal-systemv1/internal/analyzer"
	"signal-systemv1/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Stream identity
	Symbol    string
	Timeframe int // seconds

	// Feed: "ws", "sim" or "replay"
	FeedMode  string
	FeedWSURL string

	// Replay feed
	ReplayFromTS int64
	ReplaySpeed  float64

	// Exchange credentials (warm-up backfill; optional)
	ExchangeAPIKey     string
	ExchangeClientCode string
	ExchangePassword   string
	ExchangeTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Indicator periods
	SMAPeriod    int
	EMAPeriod    int
	RSIPeriod    int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	VolumePeriod int

	// History window capacity (bars kept in memory)
	WindowSize int

	// Analyzer
	Rule                   string
	RSILower               float64
	RSIUpper               float64
	MinScore               int
	CooldownMinutes        int
	GuardSeconds           int
	ResetCooldownOnRestart bool
	AutoStart              bool

	// Notification channels
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
// Call Validate before using the result.
func Load() *Config {
	return &Config{
		Symbol:    getEnv("SYMBOL", "BTCUSDT"),
		Timeframe: getEnvInt("TIMEFRAME", 60),

		FeedMode:  getEnv("FEED_MODE", "ws"),
		FeedWSURL: getEnv("FEED_WS_URL", "ws://localhost:8081/ws"),

		ReplayFromTS: int64(getEnvInt("REPLAY_FROM_TS", 0)),
		ReplaySpeed:  getEnvFloat("REPLAY_SPEED", 10),

		ExchangeAPIKey:     getEnv("EXCHANGE_API_KEY", ""),
		ExchangeClientCode: getEnv("EXCHANGE_CLIENT_CODE", ""),
		ExchangePassword:   getEnv("EXCHANGE_PASSWORD", ""),
		ExchangeTOTPSecret: getEnv("EXCHANGE_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		SMAPeriod:    getEnvInt("SMA_PERIOD", 20),
		EMAPeriod:    getEnvInt("EMA_PERIOD", 9),
		RSIPeriod:    getEnvInt("RSI_PERIOD", 14),
		MACDFast:     getEnvInt("MACD_FAST", 12),
		MACDSlow:     getEnvInt("MACD_SLOW", 26),
		MACDSignal:   getEnvInt("MACD_SIGNAL", 9),
		VolumePeriod: getEnvInt("VOLUME_PERIOD", 20),

		WindowSize: getEnvInt("WINDOW_SIZE", 500),

		Rule:                   getEnv("SIGNAL_RULE", "crossover"),
		RSILower:               getEnvFloat("RSI_LOWER", 20),
		RSIUpper:               getEnvFloat("RSI_UPPER", 80),
		MinScore:               getEnvInt("MIN_SCORE", 2),
		CooldownMinutes:        getEnvInt("COOLDOWN_MINUTES", 5),
		GuardSeconds:           getEnvInt("GUARD_SECONDS", 120),
		ResetCooldownOnRestart: getEnvBool("RESET_COOLDOWN_ON_RESTART", false),
		AutoStart:              getEnvBool("AUTO_START", true),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

// Validate rejects configurations that would make the engine misbehave
// silently. The process must refuse to start on any error returned here.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL must not be empty")
	}
	if c.Timeframe <= 0 {
		return fmt.Errorf("TIMEFRAME must be positive, got %d", c.Timeframe)
	}

	switch c.FeedMode {
	case "ws", "sim", "replay":
	default:
		return fmt.Errorf("FEED_MODE must be ws, sim or replay, got %q", c.FeedMode)
	}
	if c.FeedMode == "ws" && c.FeedWSURL == "" {
		return fmt.Errorf("FEED_WS_URL required for ws feed mode")
	}

	for name, v := range map[string]int{
		"SMA_PERIOD":    c.SMAPeriod,
		"EMA_PERIOD":    c.EMAPeriod,
		"RSI_PERIOD":    c.RSIPeriod,
		"MACD_FAST":     c.MACDFast,
		"MACD_SLOW":     c.MACDSlow,
		"MACD_SIGNAL":   c.MACDSignal,
		"VOLUME_PERIOD": c.VolumePeriod,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("MACD_FAST (%d) must be smaller than MACD_SLOW (%d)", c.MACDFast, c.MACDSlow)
	}

	minWindow := c.MACDSlow + c.MACDSignal
	if c.WindowSize < minWindow {
		return fmt.Errorf("WINDOW_SIZE (%d) too small for MACD warm-up, need at least %d", c.WindowSize, minWindow)
	}

	switch analyzer.Rule(c.Rule) {
	case analyzer.RuleCrossover, analyzer.RuleScoring:
	default:
		return fmt.Errorf("SIGNAL_RULE must be crossover or scoring, got %q", c.Rule)
	}
	if c.RSILower >= c.RSIUpper {
		return fmt.Errorf("RSI_LOWER (%v) must be smaller than RSI_UPPER (%v)", c.RSILower, c.RSIUpper)
	}
	if c.RSILower < 0 || c.RSIUpper > 100 {
		return fmt.Errorf("RSI band [%v, %v] must stay within [0, 100]", c.RSILower, c.RSIUpper)
	}
	if c.MinScore < 1 || c.MinScore > 3 {
		return fmt.Errorf("MIN_SCORE must be in [1, 3], got %d", c.MinScore)
	}
	if c.CooldownMinutes <= 0 {
		return fmt.Errorf("COOLDOWN_MINUTES must be positive, got %d", c.CooldownMinutes)
	}
	if c.GuardSeconds < 0 {
		return fmt.Errorf("GUARD_SECONDS must not be negative, got %d", c.GuardSeconds)
	}

	// REPLAY_SPEED 0 means "as fast as possible".
	if c.FeedMode == "replay" && c.ReplaySpeed < 0 {
		return fmt.Errorf("REPLAY_SPEED must not be negative, got %v", c.ReplaySpeed)
	}
	return nil
}

// IndicatorParams maps the config onto indicator periods.
func (c *Config) IndicatorParams() indicator.Params {
	return indicator.Params{
		SMAPeriod:    c.SMAPeriod,
		EMAPeriod:    c.EMAPeriod,
		RSIPeriod:    c.RSIPeriod,
		MACDFast:     c.MACDFast,
		MACDSlow:     c.MACDSlow,
		MACDSignal:   c.MACDSignal,
		VolumePeriod: c.VolumePeriod,
	}
}

// AnalyzerConfig maps the config onto the analyzer parameter bag.
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		Rule:                   analyzer.Rule(c.Rule),
		RSILower:               c.RSILower,
		RSIUpper:               c.RSIUpper,
		MinScore:               c.MinScore,
		CooldownMinutes:        c.CooldownMinutes,
		GuardWindow:            time.Duration(c.GuardSeconds) * time.Second,
		ResetCooldownOnRestart: c.ResetCooldownOnRestart,
	}
}

// HasExchangeCreds reports whether backfill via the exchange REST API
// is configured.
func (c *Config) HasExchangeCreds() bool {
	return c.ExchangeAPIKey != "" && c.ExchangeClientCode != "" &&
		c.ExchangePassword != "" && c.ExchangeTOTPSecret != ""
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
