package drift

import "gonum.org/v1/gonum/stat"

// CrossSimilarity returns the average best-match similarity across two
// response sets. For every response in either set, its best similarity
// against the other set is recorded; the result is the mean over all
// |a|+|b| recorded maxima. Symmetric by construction and tolerant of
// reordering and count mismatches between the sets.
//
// If either set is empty there is no comparable data; the score defaults
// to 1.0 so that missing responses are never reported as drift.
func CrossSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1.0
	}

	totals := make([]float64, 0, len(a)+len(b))
	for _, ai := range a {
		totals = append(totals, bestMatch(ai, b))
	}
	for _, bj := range b {
		totals = append(totals, bestMatch(bj, a))
	}

	return stat.Mean(totals, nil)
}

// bestMatch returns the maximum similarity between s and any candidate.
func bestMatch(s string, candidates []string) float64 {
	best := 0.0
	for _, c := range candidates {
		if score := Similarity(s, c); score > best {
			best = score
		}
	}
	return best
}
