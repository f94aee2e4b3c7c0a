package search

import (
	"math"
	"math/rand"
	"sort"
)

// sampler proposes hyperparameter configurations. The first
// startupTrials proposals are uniform random; afterwards it splits the
// completed history into a good quantile and the rest, models each
// numeric dimension with a kernel density per group, and picks the
// candidate maximizing the good/bad density ratio. The family choice is
// drawn from smoothed counts over the good group.
type sampler struct {
	rng           *rand.Rand
	startupTrials int
	gamma         float64
	candidates    int
}

func newSampler(seed int64) *sampler {
	return &sampler{
		rng:           rand.New(rand.NewSource(seed)),
		startupTrials: 10,
		gamma:         0.25,
		candidates:    24,
	}
}

func (s *sampler) propose(history []Trial) Params {
	completed := make([]Trial, 0, len(history))
	for _, t := range history {
		if t.State == TrialComplete {
			completed = append(completed, t)
		}
	}
	if len(completed) < s.startupTrials {
		return randomParams(s.rng)
	}

	sort.Slice(completed, func(i, j int) bool { return completed[i].Score > completed[j].Score })
	nGood := int(math.Ceil(s.gamma * float64(len(completed))))
	if nGood < 2 {
		nGood = 2
	}
	good, bad := completed[:nGood], completed[nGood:]
	if len(bad) == 0 {
		return randomParams(s.rng)
	}

	v := make([]float64, len(numericDims))
	for dim, d := range numericDims {
		goodVals := dimValues(good, dim)
		badVals := dimValues(bad, dim)
		bw := bandwidth(d, len(goodVals))

		best := goodVals[s.rng.Intn(len(goodVals))]
		bestRatio := math.Inf(-1)
		for c := 0; c < s.candidates; c++ {
			x := goodVals[s.rng.Intn(len(goodVals))] + s.rng.NormFloat64()*bw
			x = clampDim(x, d)
			ratio := kernelDensity(x, goodVals, bw) / (kernelDensity(x, badVals, bw) + 1e-12)
			if ratio > bestRatio {
				bestRatio = ratio
				best = x
			}
		}
		v[dim] = best
	}

	return paramsFromVector(v, s.proposeFamily(good))
}

func (s *sampler) proposeFamily(good []Trial) string {
	weights := make([]float64, len(families))
	total := 0.0
	for i, fam := range families {
		weights[i] = 1 // smoothing so no family ever starves
		for _, t := range good {
			if t.Params.Family == fam {
				weights[i]++
			}
		}
		total += weights[i]
	}
	r := s.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return families[i]
		}
	}
	return families[len(families)-1]
}

func dimValues(trials []Trial, dim int) []float64 {
	out := make([]float64, len(trials))
	for i, t := range trials {
		out[i] = t.Params.vector()[dim]
	}
	return out
}

func bandwidth(d dimension, n int) float64 {
	bw := (d.max - d.min) / math.Sqrt(float64(n)+1)
	if bw <= 0 {
		bw = (d.max - d.min) / 10
	}
	return bw
}

func kernelDensity(x float64, centers []float64, bw float64) float64 {
	if len(centers) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range centers {
		z := (x - c) / bw
		sum += math.Exp(-0.5 * z * z)
	}
	return sum / (float64(len(centers)) * bw)
}
