package vector

import (
	"fmt"
	"math"
	"sort"
)

func magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

type scored struct {
	idx   int
	score float64
}

// rankCosine scores every candidate against query and returns the indexes of
// the k most similar, highest first. Zero-magnitude candidates are skipped.
// Equal scores keep no particular order.
func rankCosine(query []float64, candidates [][]float64, k int) ([]scored, error) {
	qm := magnitude(query)
	if qm == 0 {
		return nil, nil
	}
	out := make([]scored, 0, len(candidates))
	for i, vec := range candidates {
		if len(vec) != len(query) {
			return nil, fmt.Errorf("vector: dimension mismatch %d vs query %d; re-ingest after changing embedder", len(vec), len(query))
		}
		m := magnitude(vec)
		if m == 0 {
			continue
		}
		s := dot(query, vec) / (qm * m)
		if math.IsNaN(s) {
			continue
		}
		out = append(out, scored{idx: i, score: s})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].score > out[b].score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}
