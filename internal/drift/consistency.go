package drift

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PairwiseScore is the similarity between responses i and j of a single
// provider's response set. I < J always; no self-pairs.
type PairwiseScore struct {
	I     int
	J     int
	Score float64
}

// ProviderRun holds one provider's sampled responses for a prompt together
// with the derived intra-provider consistency statistics.
//
// MeanSimilarity and MinSimilarity satisfy
// 0.0 <= MinSimilarity <= MeanSimilarity <= 1.0.
type ProviderRun struct {
	Name           string
	Responses      []string
	Pairwise       []PairwiseScore
	MeanSimilarity float64
	MinSimilarity  float64
}

// NewProviderRun computes all pairwise similarities within responses and
// derives the aggregate consistency statistics.
//
// A set with fewer than two responses has no pairs; both statistics default
// to 1.0 since a single sample cannot disagree with itself.
func NewProviderRun(name string, responses []string) *ProviderRun {
	n := len(responses)

	var pairwise []PairwiseScore
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairwise = append(pairwise, PairwiseScore{
				I:     i,
				J:     j,
				Score: Similarity(responses[i], responses[j]),
			})
		}
	}

	mean, minimum := 1.0, 1.0
	if len(pairwise) > 0 {
		scores := make([]float64, len(pairwise))
		for i, p := range pairwise {
			scores[i] = p.Score
		}
		mean = stat.Mean(scores, nil)
		minimum = floats.Min(scores)
	}

	return &ProviderRun{
		Name:           name,
		Responses:      responses,
		Pairwise:       pairwise,
		MeanSimilarity: mean,
		MinSimilarity:  minimum,
	}
}
