package boost

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"

	"stock-signal-lab/internal/ml/eval"
)

type TrainOptions struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	Subsample    float64
	ColSample    float64
	Seed         int64
}

type artifact struct {
	FeatureNames []string  `json:"feature_names"`
	ColMask      []int     `json:"col_mask,omitempty"`
	Importances  []float64 `json:"importances,omitempty"`
	ModelText    string    `json:"model_text"`
}

// Model wraps a boo multiclass booster restricted to binary targets.
// When trained with ColSample < 1 it carries the sampled column mask and
// projects every incoming sample before prediction, so callers always
// pass full-width feature vectors.
type Model struct {
	featureNames []string
	colMask      []int
	importances  []float64
	boost        *boo.MultiClass
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:       40,
		LearningRate: 0.08,
		MaxDepth:     4,
		Subsample:    1,
		ColSample:    1,
		Seed:         1,
	}
}

func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	if len(samples[0]) == 0 {
		return nil, errors.New("empty feature vectors")
	}
	classSet := make(map[int]struct{}, 2)
	intLabels := make([]int, len(labels))
	for i, v := range labels {
		label := 0
		if v >= 0.5 {
			label = 1
		}
		intLabels[i] = label
		classSet[label] = struct{}{}
	}
	if len(classSet) < 2 {
		return nil, errors.New("boost training requires at least two classes")
	}

	def := DefaultTrainOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = def.Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.Seed == 0 {
		opts.Seed = def.Seed
	}
	if len(featureNames) != len(samples[0]) {
		featureNames = make([]string, len(samples[0]))
		for i := range featureNames {
			featureNames[i] = "f"
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	colMask := sampleColumns(len(samples[0]), opts.ColSample, rng)
	trainSamples := projectRows(samples, colMask)
	trainLabels := intLabels
	keys := projectNames(featureNames, colMask)

	if opts.Subsample > 0 && opts.Subsample < 1 {
		rows := sampleRows(len(trainSamples), opts.Subsample, rng)
		sub := make([][]float64, len(rows))
		subLabels := make([]int, len(rows))
		oneClass := true
		for i, r := range rows {
			sub[i] = trainSamples[r]
			subLabels[i] = intLabels[r]
			if i > 0 && subLabels[i] != subLabels[0] {
				oneClass = false
			}
		}
		// a draw that loses a class would make the booster degenerate;
		// fall back to the full window instead.
		if !oneClass {
			trainSamples = sub
			trainLabels = subLabels
		}
	}

	o := boo.DefaultXOptions()
	o.Rounds = opts.Rounds
	o.LearningRate = opts.LearningRate
	o.MaxDepth = opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	data := &utils.DataBunch{
		Data:   trainSamples,
		Labels: trainLabels,
		Keys:   keys,
	}
	booster := boo.NewMultiClass(data, o)
	if booster == nil {
		return nil, errors.New("failed to train boosted model")
	}
	m := &Model{
		featureNames: append([]string(nil), featureNames...),
		colMask:      colMask,
		boost:        booster,
	}
	m.importances = eval.PermutationImportance(m, samples, labels)
	return m, nil
}

func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || m.boost == nil {
		return 0.5
	}
	probs := m.boost.PredictSingle(project(sample, m.colMask))
	labels := m.boost.ClassLabels()
	for i := range labels {
		if labels[i] == 1 {
			return clamp01(probs[i])
		}
	}
	if len(probs) == 0 {
		return 0.5
	}
	return clamp01(probs[len(probs)-1])
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		out[i] = m.PredictProb(samples[i])
	}
	return out
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// FeatureImportances reports normalized permutation importances over the
// full feature schema; columns dropped by the mask score zero.
func (m *Model) FeatureImportances() []float64 {
	if m == nil {
		return nil
	}
	out := make([]float64, len(m.importances))
	copy(out, m.importances)
	return out
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(m.boost, "softmax", &buf); err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		FeatureNames: m.featureNames,
		ColMask:      m.colMask,
		Importances:  m.importances,
		ModelText:    buf.String(),
	})
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	reader := bufio.NewReader(bytes.NewReader([]byte(a.ModelText)))
	booster, err := boo.UnJSONMultiClass(reader)
	if err != nil {
		return nil, err
	}
	return &Model{
		featureNames: append([]string(nil), a.FeatureNames...),
		colMask:      a.ColMask,
		importances:  a.Importances,
		boost:        booster,
	}, nil
}

// sampleColumns picks a sorted subset of column indices, or nil when the
// whole schema is kept.
func sampleColumns(dim int, frac float64, rng *rand.Rand) []int {
	if frac <= 0 || frac >= 1 {
		return nil
	}
	k := int(math.Round(float64(dim) * frac))
	if k < 1 {
		k = 1
	}
	if k >= dim {
		return nil
	}
	mask := rng.Perm(dim)[:k]
	sort.Ints(mask)
	return mask
}

// sampleRows picks row indices without replacement, preserving
// chronological order.
func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	k := int(math.Round(float64(n) * frac))
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}
	rows := rng.Perm(n)[:k]
	sort.Ints(rows)
	return rows
}

func project(sample []float64, mask []int) []float64 {
	if mask == nil {
		return sample
	}
	out := make([]float64, len(mask))
	for i, j := range mask {
		if j < len(sample) {
			out[i] = sample[j]
		}
	}
	return out
}

func projectRows(samples [][]float64, mask []int) [][]float64 {
	if mask == nil {
		return samples
	}
	out := make([][]float64, len(samples))
	for i := range samples {
		out[i] = project(samples[i], mask)
	}
	return out
}

func projectNames(names []string, mask []int) []string {
	if mask == nil {
		return names
	}
	out := make([]string, len(mask))
	for i, j := range mask {
		out[i] = names[j]
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
