package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"stock-signal-lab/internal/backtest"
	"stock-signal-lab/internal/domain"
	"stock-signal-lab/internal/features"
	"stock-signal-lab/internal/search"
)

func testBars(n int) *domain.BarSeries {
	bars := make([]domain.Bar, n)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 100 + float64(i)*0.05 + math.Sin(float64(i)/7)*2
		bars[i] = domain.Bar{
			Ticker: "TEST",
			Date:   date,
			Open:   price * 0.995,
			High:   price * 1.01,
			Low:    price * 0.985,
			Close:  price,
			Volume: 1_000_000 + float64(i%5)*10_000,
		}
		date = date.AddDate(0, 0, 1)
	}
	return domain.NewBarSeries("TEST", bars)
}

type fakeBarProvider struct {
	series *domain.BarSeries
	calls  int
}

func (p *fakeBarProvider) FetchDailyBars(ctx context.Context, ticker string, start, end time.Time) (*domain.BarSeries, error) {
	p.calls++
	if p.series == nil {
		return nil, domain.ErrNoData
	}
	return domain.NewBarSeries(ticker, p.series.Bars), nil
}

type fakeBarStore struct {
	mu      sync.Mutex
	bars    []domain.Bar
	upserts int
}

func (s *fakeBarStore) UpsertBars(ctx context.Context, bars []domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bars...)
	s.upserts++
	return nil
}

func (s *fakeBarStore) GetBarsInRange(ctx context.Context, ticker string, from, to time.Time) (*domain.BarSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewBarSeries(ticker, s.bars), nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	models  map[string][]domain.ModelVersion
	active  map[string]int
	studies []domain.StudyRecord
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		models: make(map[string][]domain.ModelVersion),
		active: make(map[string]int),
	}
}

func (r *fakeRegistry) NextVersion(ctx context.Context, modelKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models[modelKey]) + 1, nil
}

func (r *fakeRegistry) InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	model.ID = int64(len(r.models[model.ModelKey]) + 1)
	model.CreatedAt = time.Now().UTC()
	r.models[model.ModelKey] = append(r.models[model.ModelKey], model)
	return &model, nil
}

func (r *fakeRegistry) GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version, ok := r.active[modelKey]
	if !ok {
		return nil, nil
	}
	for _, m := range r.models[modelKey] {
		if m.Version == version {
			out := m
			out.IsActive = true
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeRegistry) ActivateModel(ctx context.Context, modelKey string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.models[modelKey] {
		if m.Version == version {
			r.active[modelKey] = version
			return nil
		}
	}
	return errors.New("version not found")
}

func (r *fakeRegistry) InsertStudy(ctx context.Context, study domain.StudyRecord) (*domain.StudyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	study.ID = int64(len(r.studies) + 1)
	r.studies = append(r.studies, study)
	return &study, nil
}

func newTestService(provider *fakeBarProvider, store *fakeBarStore, registry *fakeRegistry) *ResearchService {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	builder := features.NewBuilder(features.DefaultConfig(), nil, nil)
	var barStore BarStore
	if store != nil {
		barStore = store
	}
	var modelRegistry ModelRegistry
	if registry != nil {
		modelRegistry = registry
	}
	return NewResearchService(tracer, provider, barStore, modelRegistry, nil, builder, search.NewSearcher(1), 0)
}

func TestGetBarsFallsBackToProvider(t *testing.T) {
	provider := &fakeBarProvider{series: testBars(260)}
	store := &fakeBarStore{}
	svc := newTestService(provider, store, nil)

	series, err := svc.GetBars(context.Background(), "test")
	if err != nil {
		t.Fatalf("GetBars failed: %v", err)
	}
	if series.Ticker != "TEST" {
		t.Errorf("expected upper-cased ticker, got %s", series.Ticker)
	}
	if series.Len() != 260 {
		t.Errorf("expected 260 bars, got %d", series.Len())
	}
	if provider.calls != 1 {
		t.Errorf("expected one provider call, got %d", provider.calls)
	}
	if store.upserts != 1 {
		t.Errorf("expected fetched bars persisted, got %d upserts", store.upserts)
	}
}

func TestGetBarsPrefersStore(t *testing.T) {
	provider := &fakeBarProvider{series: testBars(260)}
	store := &fakeBarStore{bars: testBars(260).Bars}
	svc := newTestService(provider, store, nil)

	if _, err := svc.GetBars(context.Background(), "TEST"); err != nil {
		t.Fatalf("GetBars failed: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider should not be hit when the store has enough bars, got %d calls", provider.calls)
	}
}

func TestGetBarsRequiresTicker(t *testing.T) {
	svc := newTestService(&fakeBarProvider{}, nil, nil)
	if _, err := svc.GetBars(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank ticker")
	}
}

func TestTrainPersistsAndPromotes(t *testing.T) {
	registry := newFakeRegistry()
	svc := newTestService(&fakeBarProvider{series: testBars(260)}, nil, registry)

	summary, err := svc.Train(context.Background(), "test", domain.ModelFamilyBoost)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if summary.ModelKey != "TEST:boost" {
		t.Errorf("unexpected model key %s", summary.ModelKey)
	}
	if summary.Version != 1 {
		t.Errorf("expected version 1, got %d", summary.Version)
	}
	if !summary.Promoted {
		t.Error("first trained version should be promoted")
	}
	if summary.Threshold <= 0 || summary.Threshold > 1 {
		t.Errorf("threshold out of range: %f", summary.Threshold)
	}
	if _, ok := summary.Metrics["f1"]; !ok {
		t.Error("expected f1 in metrics")
	}

	active, err := registry.GetActiveModel(context.Background(), "TEST:boost")
	if err != nil || active == nil {
		t.Fatalf("expected an active model, got %v err %v", active, err)
	}
	if len(active.ArtifactBlob) == 0 {
		t.Error("expected a serialized artifact")
	}
	if active.FeatureSpecVersion == "" {
		t.Error("expected feature spec version recorded")
	}
}

func TestPredictUsesActiveModel(t *testing.T) {
	registry := newFakeRegistry()
	svc := newTestService(&fakeBarProvider{series: testBars(260)}, nil, registry)

	if _, err := svc.Train(context.Background(), "TEST", domain.ModelFamilyBoost); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	pred, err := svc.Predict(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.Probability < 0 || pred.Probability > 1 {
		t.Errorf("probability out of range: %f", pred.Probability)
	}
	if pred.Signal != domain.SignalBuy && pred.Signal != domain.SignalHoldSell {
		t.Errorf("unexpected signal %q", pred.Signal)
	}
	if pred.ModelKey != "TEST:boost" || pred.Version != 1 {
		t.Errorf("unexpected model identity %s v%d", pred.ModelKey, pred.Version)
	}
	if pred.Date.IsZero() {
		t.Error("expected prediction date from the latest feature row")
	}
}

func TestPredictWithoutActiveModel(t *testing.T) {
	svc := newTestService(&fakeBarProvider{series: testBars(260)}, nil, newFakeRegistry())
	if _, err := svc.Predict(context.Background(), "TEST"); !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestBacktestProducesReport(t *testing.T) {
	svc := newTestService(&fakeBarProvider{series: testBars(260)}, nil, nil)

	report, err := svc.Backtest(context.Background(), "TEST", domain.ModelFamilyLogReg, backtest.DefaultParams())
	if err != nil {
		t.Fatalf("Backtest failed: %v", err)
	}
	if report.Empty {
		t.Fatal("expected a non-empty report on mixed-class data")
	}
	if report.Windows == 0 {
		t.Error("expected at least one walk-forward window")
	}
	if report.Portfolio.InitialCash != 10_000 {
		t.Errorf("unexpected initial cash %f", report.Portfolio.InitialCash)
	}
}

func TestCompareModelsSkipsTickersWithoutModels(t *testing.T) {
	registry := newFakeRegistry()
	svc := newTestService(&fakeBarProvider{series: testBars(260)}, nil, registry)

	if _, err := svc.Train(context.Background(), "AAA", domain.ModelFamilyBoost); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	out, err := svc.CompareModels(context.Background(), []string{"AAA", "ZZZ"})
	if err != nil {
		t.Fatalf("CompareModels failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one comparable ticker, got %d", len(out))
	}
	metrics, ok := out["AAA"]
	if !ok {
		t.Fatal("expected AAA in results")
	}
	if metrics["version"] != 1 {
		t.Errorf("expected version 1, got %f", metrics["version"])
	}
}

func TestCompareModelsAllMissing(t *testing.T) {
	svc := newTestService(&fakeBarProvider{series: testBars(260)}, nil, newFakeRegistry())
	if _, err := svc.CompareModels(context.Background(), []string{"ZZZ"}); !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestModelKey(t *testing.T) {
	if got := ModelKey("nvda", domain.ModelFamilyLogReg); got != "NVDA:logreg" {
		t.Errorf("unexpected model key %s", got)
	}
}
