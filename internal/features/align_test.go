package features

import (
	"errors"
	"testing"

	"stock-signal-lab/internal/domain"
)

func freshMatrix() *domain.FeatureMatrix {
	return &domain.FeatureMatrix{
		Columns: []string{"Close", "RSI", "MACD"},
		Rows:    [][]float64{{100, 55, 0.2}, {101, 60, 0.3}},
	}
}

func TestAlignStripsTickerSuffixAndReorders(t *testing.T) {
	trained := []string{"MACD AAPL", "Close AAPL", "RSI"}
	aligned, err := AlignToModel(trained, "AAPL", freshMatrix())
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if len(aligned.Columns) != 3 || aligned.Columns[0] != "MACD AAPL" {
		t.Fatalf("columns not renamed to trained names: %v", aligned.Columns)
	}
	if aligned.Rows[0][0] != 0.2 || aligned.Rows[0][1] != 100 || aligned.Rows[0][2] != 55 {
		t.Fatalf("values not reordered with columns: %v", aligned.Rows[0])
	}
}

func TestAlignSubsetsToTrainedColumns(t *testing.T) {
	aligned, err := AlignToModel([]string{"RSI"}, "AAPL", freshMatrix())
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if len(aligned.Columns) != 1 || len(aligned.Rows[0]) != 1 {
		t.Fatalf("expected single-column matrix, got %v", aligned.Columns)
	}
}

func TestAlignUnresolvableNameFails(t *testing.T) {
	_, err := AlignToModel([]string{"RSI", "SMA_20 AAPL"}, "AAPL", freshMatrix())
	if !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestAlignIdempotentWhenNamesMatch(t *testing.T) {
	aligned, err := AlignToModel([]string{"Close", "RSI", "MACD"}, "MSFT", freshMatrix())
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}
	if aligned.Rows[1][0] != 101 {
		t.Fatalf("values shifted on identity alignment: %v", aligned.Rows[1])
	}
}
