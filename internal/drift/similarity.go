// Package drift implements the cross-provider divergence detection core:
// pairwise response similarity, per-provider consistency statistics,
// best-match cross-provider similarity, and severity classification.
// All functions are pure and safe for concurrent use.
package drift

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns a similarity score in [0,1] between two text strings,
// where 1.0 means identical and 0.0 means no matching content.
//
// The metric is the classic sequence-matcher ratio: the total length of
// matching contiguous blocks (found greedily, longest first) doubled and
// divided by the combined length of both inputs. Comparison is rune-wise,
// so multi-byte characters are matched as single units.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	matcher := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return matcher.Ratio()
}

// splitRunes splits a string into per-rune elements for the sequence matcher.
func splitRunes(s string) []string {
	return strings.Split(s, "")
}
