package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"stock-signal-lab/internal/domain"
)

const stooqBaseURL = "https://stooq.com"

// StooqProvider fetches daily OHLCV bars from stooq's CSV endpoint.
type StooqProvider struct {
	client  *http.Client
	baseURL string
	limiter *RateLimiter
	tracer  trace.Tracer
}

func NewStooqProvider(tracer trace.Tracer) *StooqProvider {
	return &StooqProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: stooqBaseURL,
		limiter: NewRateLimiter(10, time.Second),
		tracer:  tracer,
	}
}

// FetchDailyBars loads bars for ticker in [start, end]. US tickers
// without an exchange suffix get ".us" appended, stooq's convention.
func (p *StooqProvider) FetchDailyBars(ctx context.Context, ticker string, start, end time.Time) (*domain.BarSeries, error) {
	_, span := p.tracer.Start(ctx, "stooq.fetch-daily-bars")
	defer span.End()

	ticker = strings.ToLower(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	symbol := ticker
	if !strings.Contains(symbol, ".") {
		symbol += ".us"
	}
	u := fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		strings.TrimRight(p.baseURL, "/"), symbol,
		start.UTC().Format("20060102"), end.UTC().Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stooq fetch error %d: %s", resp.StatusCode, string(body))
	}

	upper := strings.ToUpper(ticker)
	bars, err := parseStooqCSV(resp.Body, upper)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s: %w", ticker, domain.ErrNoData)
	}
	return domain.NewBarSeries(upper, bars), nil
}

func parseStooqCSV(r io.Reader, ticker string) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("stooq csv missing %q column: %w", required, domain.ErrSchema)
		}
	}

	var bars []domain.Bar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		date, err := time.Parse("2006-01-02", record[idx["date"]])
		if err != nil {
			continue
		}
		bar := domain.Bar{
			Ticker: ticker,
			Date:   date.UTC(),
			Open:   parseFloat(record[idx["open"]]),
			High:   parseFloat(record[idx["high"]]),
			Low:    parseFloat(record[idx["low"]]),
			Close:  parseFloat(record[idx["close"]]),
			Volume: parseFloat(record[idx["volume"]]),
		}
		if !bar.Valid() {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
