package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"stock-signal-lab/internal/features"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string
	APIKey           string
	ServerPort       int

	WatchTickers []string
	LookbackDays int

	BacktestTrainWindow int
	BacktestTestWindow  int
	BacktestStep        int
	BacktestCostPct     float64
	InitialCash         float64

	SearchTrials int
	SearchSeed   int64

	RetrainEnabled bool
	RetrainHourUTC int

	Features features.Config
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           os.Getenv("API_KEY"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, bot disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Println("Warning: API_KEY not set, API auth disabled")
	}

	cfg.ServerPort = envInt("PORT", 8080)

	cfg.WatchTickers = splitTickers(os.Getenv("WATCH_TICKERS"))
	if len(cfg.WatchTickers) == 0 {
		cfg.WatchTickers = []string{"AAPL", "MSFT", "NVDA"}
	}

	cfg.LookbackDays = envInt("LOOKBACK_DAYS", 730)

	cfg.BacktestTrainWindow = envInt("BACKTEST_TRAIN_WINDOW", 0)
	cfg.BacktestTestWindow = envInt("BACKTEST_TEST_WINDOW", 5)
	cfg.BacktestStep = envInt("BACKTEST_STEP", 5)
	cfg.BacktestCostPct = envFloat("BACKTEST_COST_PCT", 0.0005)
	cfg.InitialCash = envFloat("BACKTEST_INITIAL_CASH", 10_000)

	cfg.SearchTrials = envInt("SEARCH_TRIALS", 50)
	cfg.SearchSeed = int64(envInt("SEARCH_SEED", 1))

	cfg.RetrainEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("RETRAIN_ENABLED")), "true")
	if h := envInt("RETRAIN_HOUR_UTC", 2); h >= 0 && h <= 23 {
		cfg.RetrainHourUTC = h
	}

	cfg.Features = loadFeatures()

	return cfg
}

// loadFeatures reads the indicator flags. Every group defaults to on;
// FEATURE_X=false switches one off.
func loadFeatures() features.Config {
	f := features.DefaultConfig()
	f.RSI = featureFlag("FEATURE_RSI")
	f.RSIMomentum = featureFlag("FEATURE_RSI_MOMENTUM")
	f.MACD = featureFlag("FEATURE_MACD")
	f.SMA20 = featureFlag("FEATURE_SMA_20")
	f.EMA10 = featureFlag("FEATURE_EMA_10")
	f.EMA50 = featureFlag("FEATURE_EMA_50")
	f.ATR = featureFlag("FEATURE_ATR")
	f.Bollinger = featureFlag("FEATURE_BOLLINGER")
	f.VolRegime = featureFlag("FEATURE_VOL_REGIME")
	f.OBV = featureFlag("FEATURE_OBV")
	f.MFI = featureFlag("FEATURE_MFI")
	f.SocialSentiment = featureFlag("FEATURE_SOCIAL_SENTIMENT")
	f.NewsSentiment = featureFlag("FEATURE_NEWS_SENTIMENT")

	if w := envInt("FEATURE_RSI_WINDOW", f.RSIWindow); w > 1 {
		f.RSIWindow = w
	}
	if w := envInt("FEATURE_MFI_WINDOW", f.MFIWindow); w > 1 {
		f.MFIWindow = w
	}
	return f
}

func featureFlag(name string) bool {
	return !strings.EqualFold(strings.TrimSpace(os.Getenv(name)), "false")
}

func envInt(name string, def int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %d", name, v, def)
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %f", name, v, def)
	}
	return def
}

func splitTickers(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
