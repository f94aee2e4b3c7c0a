package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("WATCH_TICKERS", "")
	t.Setenv("SEARCH_TRIALS", "")

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if len(cfg.WatchTickers) != 3 {
		t.Fatalf("expected default watchlist, got %v", cfg.WatchTickers)
	}
	if cfg.SearchTrials != 50 {
		t.Fatalf("expected default 50 trials, got %d", cfg.SearchTrials)
	}
	if cfg.BacktestCostPct != 0.0005 {
		t.Fatalf("expected default cost pct, got %f", cfg.BacktestCostPct)
	}
	if !cfg.Features.RSI || !cfg.Features.NewsSentiment {
		t.Fatalf("expected all feature groups on by default: %+v", cfg.Features)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WATCH_TICKERS", "tsla, amd ,")
	t.Setenv("SEARCH_TRIALS", "10")
	t.Setenv("FEATURE_MACD", "false")
	t.Setenv("FEATURE_RSI_WINDOW", "21")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.WatchTickers) != 2 || cfg.WatchTickers[0] != "TSLA" || cfg.WatchTickers[1] != "AMD" {
		t.Fatalf("unexpected watchlist %v", cfg.WatchTickers)
	}
	if cfg.SearchTrials != 10 {
		t.Fatalf("expected 10 trials, got %d", cfg.SearchTrials)
	}
	if cfg.Features.MACD {
		t.Fatal("FEATURE_MACD=false should disable MACD")
	}
	if cfg.Features.RSIWindow != 21 {
		t.Fatalf("expected RSI window 21, got %d", cfg.Features.RSIWindow)
	}

	t.Setenv("SEARCH_TRIALS", "bad")
	cfg = Load()
	if cfg.SearchTrials != 50 {
		t.Fatalf("invalid trials should fall back to default, got %d", cfg.SearchTrials)
	}
}
