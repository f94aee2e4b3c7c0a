package domain

import "errors"

// Sentinel errors shared across the signal research core. Callers check
// them with errors.Is and map them to user-facing failures.
var (
	// ErrNoData signals an empty or unavailable upstream bar series.
	ErrNoData = errors.New("no data available")

	// ErrSchema signals missing required raw OHLCV columns.
	ErrSchema = errors.New("required columns missing")

	// ErrSchemaMismatch signals trained feature names that cannot be
	// resolved against a freshly built matrix.
	ErrSchemaMismatch = errors.New("trained feature names unresolvable")

	// ErrInsufficientData signals too few rows for a requested window or fold.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidMetric signals an unrecognized threshold-tuning metric.
	ErrInvalidMetric = errors.New("unsupported tuning metric")
)
