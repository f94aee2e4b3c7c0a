package logreg

import (
	"math"
	"testing"
)

func TestTrainPredictAndRoundTrip(t *testing.T) {
	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"x1", "x2"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	pLow := model.PredictProb([]float64{-2, -2})
	pHigh := model.PredictProb([]float64{3, 3})
	if pLow >= 0.5 {
		t.Fatalf("expected low sample prob < 0.5, got %.4f", pLow)
	}
	if pHigh <= 0.5 {
		t.Fatalf("expected high sample prob > 0.5, got %.4f", pHigh)
	}

	blob, err := model.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if diff := math.Abs(restored.PredictProb([]float64{3, 3}) - pHigh); diff > 1e-6 {
		t.Fatalf("roundtrip changed prediction by %.8f", diff)
	}
}

func TestFeatureImportancesSumToOne(t *testing.T) {
	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"x1", "x2"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	imps := model.FeatureImportances()
	if len(imps) != 2 {
		t.Fatalf("expected 2 importances, got %d", len(imps))
	}
	sum := 0.0
	for _, v := range imps {
		if v < 0 {
			t.Fatalf("negative importance %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("importances should sum to 1, got %v", sum)
	}
}

func TestPredictProbDimensionMismatch(t *testing.T) {
	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"x1", "x2"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if p := model.PredictProb([]float64{1}); p != 0.5 {
		t.Fatalf("mismatched sample width should give neutral 0.5, got %v", p)
	}
}

func separableData() ([][]float64, []float64) {
	samples := make([][]float64, 0, 80)
	labels := make([]float64, 0, 80)
	for i := 0; i < 40; i++ {
		samples = append(samples, []float64{-1.5 - float64(i)/40, -1.0 - float64(i)/60})
		labels = append(labels, 0)
	}
	for i := 0; i < 40; i++ {
		samples = append(samples, []float64{1.0 + float64(i)/40, 1.4 + float64(i)/60})
		labels = append(labels, 1)
	}
	return samples, labels
}
