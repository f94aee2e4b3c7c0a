package domain

import (
	"errors"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNewBarSeriesSortsAndDedupes(t *testing.T) {
	bars := []Bar{
		{Ticker: "AAPL", Date: day(2), Close: 102, Open: 1, High: 1, Low: 1},
		{Ticker: "AAPL", Date: day(0), Close: 100, Open: 1, High: 1, Low: 1},
		{Ticker: "AAPL", Date: day(1), Close: 101, Open: 1, High: 1, Low: 1},
		{Ticker: "AAPL", Date: day(1), Close: 999, Open: 1, High: 1, Low: 1},
	}
	s := NewBarSeries("AAPL", bars)
	if s.Len() != 3 {
		t.Fatalf("expected 3 bars after dedupe, got %d", s.Len())
	}
	closes := s.Closes()
	if closes[0] != 100 || closes[1] != 101 || closes[2] != 102 {
		t.Fatalf("unexpected close order: %v", closes)
	}
}

func TestBarValid(t *testing.T) {
	good := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 0}
	if !good.Valid() {
		t.Fatalf("expected bar to be valid")
	}
	bad := Bar{Open: 1, High: 2, Low: 0.5, Close: 0, Volume: 10}
	if bad.Valid() {
		t.Fatalf("expected zero-close bar to be invalid")
	}
	negVol := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: -1}
	if negVol.Valid() {
		t.Fatalf("expected negative-volume bar to be invalid")
	}
}

func TestFeatureMatrixSelect(t *testing.T) {
	m := &FeatureMatrix{
		Columns: []string{"a", "b", "c"},
		Rows:    [][]float64{{1, 2, 3}, {4, 5, 6}},
	}
	out, err := m.Select([]string{"c", "a"})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if out.Columns[0] != "c" || out.Columns[1] != "a" {
		t.Fatalf("unexpected columns: %v", out.Columns)
	}
	if out.Rows[1][0] != 6 || out.Rows[1][1] != 4 {
		t.Fatalf("unexpected row values: %v", out.Rows[1])
	}

	if _, err := m.Select([]string{"missing"}); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestFeatureMatrixSliceBounds(t *testing.T) {
	m := &FeatureMatrix{
		Columns: []string{"x"},
		Rows:    [][]float64{{1}, {2}, {3}},
		Dates:   []time.Time{day(0), day(1), day(2)},
	}
	s := m.Slice(1, 10)
	if s.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Len())
	}
	if !s.Dates[0].Equal(day(1)) {
		t.Fatalf("dates not sliced with rows")
	}
	empty := m.Slice(2, 1)
	if empty.Len() != 0 {
		t.Fatalf("expected empty slice for inverted bounds")
	}
}
