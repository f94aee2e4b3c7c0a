package features

import (
	"strings"

	"stock-signal-lab/internal/domain"
)

// AlignToModel maps a freshly built matrix onto the exact column set and
// order a trained model expects. Trained names may carry a per-ticker
// suffix (e.g. "MACD AAPL"); the suffix is stripped to find the base
// column, then the result is renamed back to the trained names. Any
// trained name without a matching base column fails the alignment.
func AlignToModel(trainedNames []string, ticker string, m *domain.FeatureMatrix) (*domain.FeatureMatrix, error) {
	suffix := " " + ticker
	base := make([]string, len(trainedNames))
	for i, name := range trainedNames {
		if ticker != "" && strings.HasSuffix(name, suffix) {
			base[i] = strings.TrimSuffix(name, suffix)
		} else {
			base[i] = strings.TrimSpace(name)
		}
	}
	aligned, err := m.Select(base)
	if err != nil {
		return nil, err
	}
	aligned.Columns = append([]string(nil), trainedNames...)
	return aligned, nil
}
