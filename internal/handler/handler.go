package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"stock-signal-lab/internal/backtest"
	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/service"
)

// ResearchRunner is the slice of the research service the HTTP layer
// consumes.
type ResearchRunner interface {
	BuildFeatures(ctx context.Context, ticker string) (*domain.FeatureMatrix, []float64, error)
	Backtest(ctx context.Context, ticker string, family string, params backtest.Params) (*backtest.Report, error)
	Train(ctx context.Context, ticker, family string) (*service.TrainSummary, error)
	Search(ctx context.Context, ticker string, trials int) (*service.SearchSummary, error)
	Predict(ctx context.Context, ticker string) (*service.Prediction, error)
	CompareModels(ctx context.Context, tickers []string) (map[string]map[string]float64, error)
}

type Handler struct {
	tracer       trace.Tracer
	research     ResearchRunner
	trialBudget  int
	defaultCosts backtest.Params
}

func New(tracer trace.Tracer, research ResearchRunner, trialBudget int, defaults backtest.Params) *Handler {
	if trialBudget <= 0 {
		trialBudget = 50
	}
	return &Handler{
		tracer:       tracer,
		research:     research,
		trialBudget:  trialBudget,
		defaultCosts: defaults,
	}
}

// RegisterRoutes wires the public health probe and the key-guarded API
// group. An empty apiKey leaves the group open.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.GET("/features/:ticker", h.GetFeatures)
	api.GET("/backtest/:ticker", h.RunBacktest)
	api.POST("/train/:ticker", h.TrainModel)
	api.POST("/search/:ticker", h.RunSearch)
	api.GET("/predict/:ticker", h.GetPrediction)
	api.GET("/compare", h.CompareModels)
}
