package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"stock-signal-lab/internal/backtest"
	"stock-signal-lab/internal/bot"
	"stock-signal-lab/internal/cache"
	"stock-signal-lab/internal/config"
	"stock-signal-lab/internal/db"
	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/features"
	"stock-signal-lab/internal/handler"
	"stock-signal-lab/internal/job"
	"stock-signal-lab/internal/ml/registry"
	"stock-signal-lab/internal/provider"
	"stock-signal-lab/internal/repository"
	"stock-signal-lab/internal/search"
	"stock-signal-lab/internal/service"
	"stock-signal-lab/pkg/tracing"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newBarRepoFunc         = repository.NewBarRepository
	newResearchServiceFunc = service.NewResearchService
	startRetrainJobFunc    = func(j *job.RetrainJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repositories and run migrations
	var barStore service.BarStore
	var modelRegistry service.ModelRegistry
	if db.Pool != nil {
		barRepo := newBarRepoFunc(db.Pool, tracer)
		if err := barRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		barStore = barRepo
		modelRegistry = registry.NewRepository(db.Pool, tracer)
	}

	// Providers and feature pipeline
	stooq := provider.NewStooqProvider(tracer)
	var social, news features.SentimentSource
	if cfg.Features.SocialSentiment {
		social = provider.NewCachedSentimentSource("social", provider.NewSocialSentimentProvider(tracer), cache.Client)
	}
	if cfg.Features.NewsSentiment {
		news = provider.NewCachedSentimentSource("news", provider.NewNewsSentimentProvider(tracer), cache.Client)
	}
	builder := features.NewBuilder(cfg.Features, social, news)

	research := newResearchServiceFunc(
		tracer, stooq, barStore, modelRegistry, cache.Client,
		builder, search.NewSearcher(cfg.SearchSeed), cfg.LookbackDays,
	)

	backtestDefaults := backtest.DefaultParams()
	backtestDefaults.TrainWindow = cfg.BacktestTrainWindow
	backtestDefaults.TestWindow = cfg.BacktestTestWindow
	backtestDefaults.Step = cfg.BacktestStep
	backtestDefaults.CostPct = cfg.BacktestCostPct
	backtestDefaults.InitialCash = cfg.InitialCash

	// Nightly retrain over the watchlist (stopped by ctx cancel)
	if cfg.RetrainEnabled {
		retrain := job.NewRetrainJob(tracer, research, cfg.WatchTickers, domain.ModelFamilyBoost, cfg.RetrainHourUTC)
		startRetrainJobFunc(retrain, ctx)
	}

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(research, backtestDefaults)

	// Create handlers and routes
	h := newHandlerFunc(tracer, research, cfg.SearchTrials, backtestDefaults)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("stock-signal-lab"))

	h.RegisterRoutes(r, cfg.APIKey)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.ServerPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
