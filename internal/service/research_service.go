package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stock-signal-lab/internal/backtest"
	"stock-signal-lab/internal/cache"
	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/features"
	"stock-signal-lab/internal/ml/common"
	"stock-signal-lab/internal/ml/eval"
	"stock-signal-lab/internal/ml/models/boost"
	"stock-signal-lab/internal/ml/models/logreg"
	"stock-signal-lab/internal/search"
)

const defaultLookbackDays = 730

type BarProvider interface {
	FetchDailyBars(ctx context.Context, ticker string, start, end time.Time) (*domain.BarSeries, error)
}

type BarStore interface {
	UpsertBars(ctx context.Context, bars []domain.Bar) error
	GetBarsInRange(ctx context.Context, ticker string, from, to time.Time) (*domain.BarSeries, error)
}

type ModelRegistry interface {
	NextVersion(ctx context.Context, modelKey string) (int, error)
	InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error)
	GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error)
	ActivateModel(ctx context.Context, modelKey string, version int) error
	InsertStudy(ctx context.Context, study domain.StudyRecord) (*domain.StudyRecord, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ResearchService orchestrates the signal research pipeline: bars in,
// features built, models trained/backtested/searched, predictions out.
type ResearchService struct {
	tracer       trace.Tracer
	provider     BarProvider
	store        BarStore
	registry     ModelRegistry
	redis        RedisClient
	builder      *features.Builder
	searcher     *search.Searcher
	lookbackDays int
}

func NewResearchService(
	tracer trace.Tracer,
	provider BarProvider,
	store BarStore,
	registry ModelRegistry,
	redisClient RedisClient,
	builder *features.Builder,
	searcher *search.Searcher,
	lookbackDays int,
) *ResearchService {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	return &ResearchService{
		tracer:       tracer,
		provider:     provider,
		store:        store,
		registry:     registry,
		redis:        redisClient,
		builder:      builder,
		searcher:     searcher,
		lookbackDays: lookbackDays,
	}
}

// GetBars resolves a ticker's daily bars: redis first, then the local
// store, then the upstream provider (persisting what it fetched).
func (s *ResearchService) GetBars(ctx context.Context, ticker string) (*domain.BarSeries, error) {
	ctx, span := s.tracer.Start(ctx, "research.get-bars")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	if s.redis != nil {
		if series := s.getBarsCache(ctx, ticker); series != nil {
			return series, nil
		}
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -s.lookbackDays)

	if s.store != nil {
		series, err := s.store.GetBarsInRange(ctx, ticker, start, end)
		if err != nil {
			log.Printf("bar store read error for %s: %v", ticker, err)
		} else if series.Len() >= s.builder.Config().WarmupRows()+features.TargetHorizon+features.MinUsableRows {
			s.setBarsCache(ctx, ticker, series)
			return series, nil
		}
	}

	series, err := s.provider.FetchDailyBars(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if err := s.store.UpsertBars(ctx, series.Bars); err != nil {
			log.Printf("bar store write error for %s: %v", ticker, err)
		}
	}
	s.setBarsCache(ctx, ticker, series)
	return series, nil
}

// BuildFeatures fetches bars and runs the feature pipeline.
func (s *ResearchService) BuildFeatures(ctx context.Context, ticker string) (*domain.FeatureMatrix, []float64, error) {
	ctx, span := s.tracer.Start(ctx, "research.build-features")
	defer span.End()

	series, err := s.GetBars(ctx, ticker)
	if err != nil {
		return nil, nil, err
	}
	return s.builder.Build(ctx, series)
}

// Backtest runs the walk-forward simulation with fixed hyperparameters.
func (s *ResearchService) Backtest(ctx context.Context, ticker string, family string, params backtest.Params) (*backtest.Report, error) {
	ctx, span := s.tracer.Start(ctx, "research.backtest")
	defer span.End()

	m, targets, err := s.BuildFeatures(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return backtest.WalkForward(m, targets, trainerFor(family, 1), params)
}

type TrainSummary struct {
	ModelKey    string             `json:"model_key"`
	Version     int                `json:"version"`
	Family      string             `json:"family"`
	Threshold   float64            `json:"threshold"`
	Metrics     map[string]float64 `json:"metrics"`
	SampleCount int                `json:"sample_count"`
	TestCount   int                `json:"test_count"`
	Promoted    bool               `json:"promoted"`
}

// Train fits one model family with fixed hyperparameters on the
// chronological 80% prefix, evaluates and threshold-tunes on the 20%
// tail, and persists the version to the registry.
func (s *ResearchService) Train(ctx context.Context, ticker, family string) (*TrainSummary, error) {
	ctx, span := s.tracer.Start(ctx, "research.train")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	m, targets, err := s.BuildFeatures(ctx, ticker)
	if err != nil {
		return nil, err
	}
	n := m.Len()
	splitAt := n - n/5
	if splitAt <= 0 || splitAt >= n {
		return nil, fmt.Errorf("cannot split %d rows for training: %w", n, domain.ErrInsufficientData)
	}
	trainLabels := targets[:splitAt]
	if common.ClassCount(trainLabels) < 2 {
		return nil, fmt.Errorf("training slice is single-class: %w", domain.ErrInsufficientData)
	}

	model, hyperparams, format, err := fitFixed(family, m.Rows[:splitAt], trainLabels, m.Columns)
	if err != nil {
		return nil, err
	}

	valLabels := targets[splitAt:]
	probs := model.PredictBatch(m.Rows[splitAt:])
	threshold, f1, err := eval.TuneThreshold(valLabels, probs, eval.MetricF1, eval.DefaultThresholdPoints)
	if err != nil {
		return nil, err
	}
	metrics := eval.Report(valLabels, probs)
	metrics["threshold"] = threshold
	metrics["f1_at_threshold"] = f1

	summary := &TrainSummary{
		ModelKey:    ModelKey(ticker, family),
		Family:      family,
		Threshold:   threshold,
		Metrics:     metrics,
		SampleCount: n,
		TestCount:   len(valLabels),
	}
	if s.registry == nil {
		return summary, nil
	}

	blob, err := marshalClassifier(model)
	if err != nil {
		return nil, err
	}
	version, promoted, err := s.persistModel(ctx, summary.ModelKey, m, blob, format, hyperparams, metrics)
	if err != nil {
		return nil, err
	}
	summary.Version = version
	summary.Promoted = promoted
	return summary, nil
}

type SearchSummary struct {
	ModelKey string             `json:"model_key"`
	Version  int                `json:"version"`
	Study    *search.Study      `json:"study"`
	Params   search.Params      `json:"params"`
	Metrics  map[string]float64 `json:"metrics"`
	Promoted bool               `json:"promoted"`
}

// Search runs the hyperparameter study for a ticker and persists the
// refit winner plus the study record.
func (s *ResearchService) Search(ctx context.Context, ticker string, trials int) (*SearchSummary, error) {
	ctx, span := s.tracer.Start(ctx, "research.search")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	m, targets, err := s.BuildFeatures(ctx, ticker)
	if err != nil {
		return nil, err
	}

	result, err := s.searcher.Run(ctx, m, targets, trials)
	if err != nil {
		return nil, err
	}

	summary := &SearchSummary{
		ModelKey: ModelKey(ticker, result.Model.Family),
		Study:    result.Study,
		Params:   result.Model.Params,
		Metrics:  result.Model.Metrics,
	}
	if s.registry == nil {
		return summary, nil
	}

	blob, err := result.Model.Artifact()
	if err != nil {
		return nil, err
	}
	paramsJSON, _ := json.Marshal(result.Model.Params)
	version, promoted, err := s.persistModel(ctx, summary.ModelKey, m, blob,
		artifactFormat(result.Model.Family), string(paramsJSON), result.Model.Metrics)
	if err != nil {
		return nil, err
	}
	summary.Version = version
	summary.Promoted = promoted

	if _, err := s.registry.InsertStudy(ctx, domain.StudyRecord{
		Ticker:         ticker,
		Trials:         len(result.Study.Trials),
		FailedTrials:   result.Study.Failed,
		BestScore:      result.Study.Best.Score,
		BestParamsJSON: string(paramsJSON),
	}); err != nil {
		log.Printf("persist study for %s: %v", ticker, err)
	}
	return summary, nil
}

type Prediction struct {
	Ticker      string             `json:"ticker"`
	Date        time.Time          `json:"date"`
	Probability float64            `json:"probability"`
	Threshold   float64            `json:"threshold"`
	Signal      domain.SignalLabel `json:"signal"`
	ModelKey    string             `json:"model_key"`
	Version     int                `json:"version"`
}

// Predict scores the latest bar with the ticker's active model, aligning
// fresh features onto the trained schema.
func (s *ResearchService) Predict(ctx context.Context, ticker string) (*Prediction, error) {
	ctx, span := s.tracer.Start(ctx, "research.predict")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	record, model, err := s.activeModel(ctx, ticker)
	if err != nil {
		return nil, err
	}

	m, _, err := s.BuildFeatures(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("no feature rows for %s: %w", ticker, domain.ErrNoData)
	}

	aligned, err := features.AlignToModel(model.FeatureNames(), ticker, m)
	if err != nil {
		return nil, err
	}

	threshold := 0.5
	if v, ok := metricValue(record.MetricsJSON, "threshold"); ok && v > 0 && v < 1 {
		threshold = v
	}

	last := aligned.Len() - 1
	prob := common.Clamp01(model.PredictProb(aligned.Rows[last]))
	signal := domain.SignalHoldSell
	if prob >= threshold {
		signal = domain.SignalBuy
	}

	pred := &Prediction{
		Ticker:      ticker,
		Probability: prob,
		Threshold:   threshold,
		Signal:      signal,
		ModelKey:    record.ModelKey,
		Version:     record.Version,
	}
	if len(aligned.Dates) > last {
		pred.Date = aligned.Dates[last]
	}
	return pred, nil
}

// CompareModels evaluates each ticker's active model on its own fresh
// holdout tail, concurrently.
func (s *ResearchService) CompareModels(ctx context.Context, tickers []string) (map[string]map[string]float64, error) {
	ctx, span := s.tracer.Start(ctx, "research.compare-models")
	defer span.End()

	results := make([]map[string]float64, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	for i, ticker := range tickers {
		g.Go(func() error {
			metrics, err := s.evaluateActive(gctx, ticker)
			if err != nil {
				log.Printf("compare: %s skipped: %v", ticker, err)
				return nil
			}
			results[i] = metrics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]map[string]float64, len(tickers))
	for i, ticker := range tickers {
		if results[i] != nil {
			out[strings.ToUpper(ticker)] = results[i]
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no ticker produced a comparable model: %w", domain.ErrNoData)
	}
	return out, nil
}

func (s *ResearchService) evaluateActive(ctx context.Context, ticker string) (map[string]float64, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	record, model, err := s.activeModel(ctx, ticker)
	if err != nil {
		return nil, err
	}
	m, targets, err := s.BuildFeatures(ctx, ticker)
	if err != nil {
		return nil, err
	}
	aligned, err := features.AlignToModel(model.FeatureNames(), ticker, m)
	if err != nil {
		return nil, err
	}
	n := aligned.Len()
	holdout := n / 5
	if holdout < 1 {
		return nil, fmt.Errorf("no holdout rows for %s: %w", ticker, domain.ErrInsufficientData)
	}
	probs := model.PredictBatch(aligned.Rows[n-holdout:])
	metrics := eval.Report(targets[n-holdout:], probs)
	metrics["version"] = float64(record.Version)
	return metrics, nil
}

// activeModel loads the ticker's active registry entry, preferring the
// boost family.
func (s *ResearchService) activeModel(ctx context.Context, ticker string) (*domain.ModelVersion, common.Classifier, error) {
	if s.registry == nil {
		return nil, nil, fmt.Errorf("model registry unavailable")
	}
	for _, family := range []string{domain.ModelFamilyBoost, domain.ModelFamilyLogReg} {
		record, err := s.registry.GetActiveModel(ctx, ModelKey(ticker, family))
		if err != nil {
			return nil, nil, err
		}
		if record == nil {
			continue
		}
		model, err := unmarshalClassifier(family, record.ArtifactBlob)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", record.ModelKey, err)
		}
		return record, model, nil
	}
	return nil, nil, fmt.Errorf("no active model for %s: %w", ticker, domain.ErrNoData)
}

func (s *ResearchService) persistModel(
	ctx context.Context,
	modelKey string,
	m *domain.FeatureMatrix,
	blob []byte,
	format string,
	hyperparamsJSON string,
	metrics map[string]float64,
) (int, bool, error) {
	version, err := s.registry.NextVersion(ctx, modelKey)
	if err != nil {
		return 0, false, err
	}
	metricsJSON, _ := json.Marshal(metrics)

	var trainedFrom, trainedTo time.Time
	if len(m.Dates) > 0 {
		trainedFrom = m.Dates[0]
		trainedTo = m.Dates[len(m.Dates)-1]
	}

	inserted, err := s.registry.InsertModelVersion(ctx, domain.ModelVersion{
		ModelKey:           modelKey,
		Version:            version,
		FeatureSpecVersion: features.FeatureSpecVersion(),
		TrainedFrom:        trainedFrom,
		TrainedTo:          trainedTo,
		HyperparamsJSON:    hyperparamsJSON,
		MetricsJSON:        string(metricsJSON),
		ArtifactFormat:     format,
		ArtifactBlob:       blob,
	})
	if err != nil {
		return 0, false, err
	}

	promote, err := s.shouldPromote(ctx, modelKey, metrics["f1"])
	if err != nil {
		log.Printf("promotion check for %s: %v", modelKey, err)
		return inserted.Version, false, nil
	}
	if promote {
		if err := s.registry.ActivateModel(ctx, modelKey, inserted.Version); err != nil {
			log.Printf("activate %s v%d: %v", modelKey, inserted.Version, err)
			return inserted.Version, false, nil
		}
	}
	return inserted.Version, promote, nil
}

// shouldPromote activates a new version when there is no active model or
// when the holdout F1 does not regress.
func (s *ResearchService) shouldPromote(ctx context.Context, modelKey string, newF1 float64) (bool, error) {
	active, err := s.registry.GetActiveModel(ctx, modelKey)
	if err != nil {
		return false, err
	}
	if active == nil {
		return true, nil
	}
	activeF1, ok := metricValue(active.MetricsJSON, "f1")
	if !ok {
		return true, nil
	}
	return newF1 >= activeF1, nil
}

func (s *ResearchService) getBarsCache(ctx context.Context, ticker string) *domain.BarSeries {
	raw, err := s.redis.Get(ctx, cache.BarsKey(ticker)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("redis cache read error: %v", err)
		}
		return nil
	}
	var bars []domain.Bar
	if err := json.Unmarshal([]byte(raw), &bars); err != nil {
		log.Printf("bad cached bars for %s: %v", ticker, err)
		return nil
	}
	if len(bars) == 0 {
		return nil
	}
	return domain.NewBarSeries(ticker, bars)
}

func (s *ResearchService) setBarsCache(ctx context.Context, ticker string, series *domain.BarSeries) {
	if s.redis == nil || series.Len() == 0 {
		return
	}
	payload, err := json.Marshal(series.Bars)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cache.BarsKey(ticker), payload, cache.BarsTTL).Err(); err != nil {
		log.Printf("redis cache write error: %v", err)
	}
}

func ModelKey(ticker, family string) string {
	return strings.ToUpper(ticker) + ":" + family
}

func artifactFormat(family string) string {
	if family == domain.ModelFamilyLogReg {
		return "json/logreg-v1"
	}
	return "json/boo-boost-v1"
}

func trainerFor(family string, seed int64) common.TrainFunc {
	return func(samples [][]float64, labels []float64, names []string) (common.Classifier, error) {
		model, _, _, err := fitFixed(family, samples, labels, names)
		return model, err
	}
}

// fitFixed trains the given family with the fixed research defaults and
// reports the hyperparameters used as JSON.
func fitFixed(family string, samples [][]float64, labels []float64, names []string) (common.Classifier, string, string, error) {
	switch family {
	case domain.ModelFamilyLogReg:
		opts := logreg.DefaultTrainOptions()
		model, err := logreg.Train(samples, labels, names, opts)
		if err != nil {
			return nil, "", "", err
		}
		raw, _ := json.Marshal(map[string]any{
			"learning_rate": opts.LearningRate,
			"epochs":        opts.Epochs,
			"l2":            opts.L2,
		})
		return model, string(raw), artifactFormat(family), nil
	default:
		opts := boost.TrainOptions{Rounds: 200, LearningRate: 0.05, MaxDepth: 5, Seed: 1}
		model, err := boost.Train(samples, labels, names, opts)
		if err != nil {
			return nil, "", "", err
		}
		raw, _ := json.Marshal(map[string]any{
			"rounds":        opts.Rounds,
			"learning_rate": opts.LearningRate,
			"max_depth":     opts.MaxDepth,
		})
		return model, string(raw), artifactFormat(domain.ModelFamilyBoost), nil
	}
}

func marshalClassifier(model common.Classifier) ([]byte, error) {
	bm, ok := model.(interface{ MarshalBinary() ([]byte, error) })
	if !ok {
		return nil, fmt.Errorf("model is not serializable")
	}
	return bm.MarshalBinary()
}

func unmarshalClassifier(family string, blob []byte) (common.Classifier, error) {
	switch family {
	case domain.ModelFamilyLogReg:
		return logreg.UnmarshalBinary(blob)
	default:
		return boost.UnmarshalBinary(blob)
	}
}

func metricValue(metricsJSON, key string) (float64, bool) {
	var metrics map[string]float64
	if err := json.Unmarshal([]byte(metricsJSON), &metrics); err != nil {
		return 0, false
	}
	v, ok := metrics[key]
	return v, ok
}
