package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stock-signal-lab/internal/domain"
)

// GetFeatures godoc
// @Summary      Build the feature matrix for a ticker
// @Description  Returns the canonical feature schema, usable row count and the latest feature row
// @Tags         research
// @Produce      json
// @Param        ticker  path  string  true  "Ticker symbol"
// @Success      200  {object}  map[string]interface{}
// @Failure      422  {object}  map[string]string
// @Router       /api/features/{ticker} [get]
func (h *Handler) GetFeatures(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-features")
	defer span.End()

	ticker := c.Param("ticker")
	m, targets, err := h.research.BuildFeatures(ctx, ticker)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"ticker":  strings.ToUpper(ticker),
		"columns": m.Columns,
		"rows":    m.Len(),
		"targets": len(targets),
	}
	if n := m.Len(); n > 0 {
		resp["latest"] = gin.H{
			"date":   m.Dates[n-1],
			"values": m.Rows[n-1],
		}
		resp["from"] = m.Dates[0]
		resp["to"] = m.Dates[n-1]
	}
	c.JSON(http.StatusOK, resp)
}

// RunBacktest godoc
// @Summary      Walk-forward backtest for a ticker
// @Description  Retrains per window and simulates the signal portfolio over the test steps
// @Tags         research
// @Produce      json
// @Param        ticker     path   string   true   "Ticker symbol"
// @Param        family     query  string   false  "Model family (boost or logreg)"
// @Param        train      query  int      false  "Training window rows (0 = auto)"
// @Param        test       query  int      false  "Test window rows"
// @Param        step       query  int      false  "Step size in rows"
// @Param        cost       query  number   false  "Per-buy transaction cost fraction"
// @Param        threshold  query  number   false  "Buy probability threshold"
// @Success      200  {object}  backtest.Report
// @Failure      422  {object}  map[string]string
// @Router       /api/backtest/{ticker} [get]
func (h *Handler) RunBacktest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-backtest")
	defer span.End()

	params := h.defaultCosts
	params.TrainWindow = queryInt(c, "train", params.TrainWindow)
	params.TestWindow = queryInt(c, "test", params.TestWindow)
	params.Step = queryInt(c, "step", params.Step)
	params.CostPct = queryFloat(c, "cost", params.CostPct)
	params.Threshold = queryFloat(c, "threshold", params.Threshold)

	report, err := h.research.Backtest(ctx, c.Param("ticker"), familyParam(c), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// TrainModel godoc
// @Summary      Train and register a model version
// @Description  Fits the requested family on the chronological prefix, tunes the threshold on the tail and persists the version
// @Tags         research
// @Produce      json
// @Param        ticker  path   string  true   "Ticker symbol"
// @Param        family  query  string  false  "Model family (boost or logreg)"
// @Success      200  {object}  service.TrainSummary
// @Failure      422  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/train/{ticker} [post]
func (h *Handler) TrainModel(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.train-model")
	defer span.End()

	summary, err := h.research.Train(ctx, c.Param("ticker"), familyParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RunSearch godoc
// @Summary      Hyperparameter search for a ticker
// @Description  Runs the trial study, refits the winner and persists model plus study record
// @Tags         research
// @Produce      json
// @Param        ticker  path   string  true   "Ticker symbol"
// @Param        trials  query  int     false  "Trial budget"
// @Success      200  {object}  service.SearchSummary
// @Failure      422  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/search/{ticker} [post]
func (h *Handler) RunSearch(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-search")
	defer span.End()

	trials := queryInt(c, "trials", h.trialBudget)
	summary, err := h.research.Search(ctx, c.Param("ticker"), trials)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetPrediction godoc
// @Summary      Score the latest bar with the active model
// @Tags         research
// @Produce      json
// @Param        ticker  path  string  true  "Ticker symbol"
// @Success      200  {object}  service.Prediction
// @Failure      404  {object}  map[string]string
// @Router       /api/predict/{ticker} [get]
func (h *Handler) GetPrediction(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-prediction")
	defer span.End()

	pred, err := h.research.Predict(ctx, c.Param("ticker"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

// CompareModels godoc
// @Summary      Compare active models across tickers
// @Description  Evaluates each ticker's active model on its own fresh holdout tail
// @Tags         research
// @Produce      json
// @Param        tickers  query  string  true  "Comma-separated ticker symbols"
// @Success      200  {object}  map[string]map[string]float64
// @Failure      400  {object}  map[string]string
// @Router       /api/compare [get]
func (h *Handler) CompareModels(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.compare-models")
	defer span.End()

	var tickers []string
	for _, t := range strings.Split(c.Query("tickers"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tickers query parameter is required"})
		return
	}

	out, err := h.research.CompareModels(ctx, tickers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoData), errors.Is(err, domain.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSchema):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func familyParam(c *gin.Context) string {
	family := strings.ToLower(strings.TrimSpace(c.Query("family")))
	if family == domain.ModelFamilyLogReg {
		return domain.ModelFamilyLogReg
	}
	return domain.ModelFamilyBoost
}

func queryInt(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryFloat(c *gin.Context, name string, def float64) float64 {
	if v := c.Query(name); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}
