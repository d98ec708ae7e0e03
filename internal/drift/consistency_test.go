package drift

import "testing"

func TestNewProviderRun_EmptySet(t *testing.T) {
	run := NewProviderRun("openai", nil)

	if len(run.Pairwise) != 0 {
		t.Errorf("Expected no pairwise scores, got %d", len(run.Pairwise))
	}
	if run.MeanSimilarity != 1.0 {
		t.Errorf("Expected mean 1.0 for empty set, got %v", run.MeanSimilarity)
	}
	if run.MinSimilarity != 1.0 {
		t.Errorf("Expected min 1.0 for empty set, got %v", run.MinSimilarity)
	}
}

func TestNewProviderRun_SingleResponse(t *testing.T) {
	run := NewProviderRun("anthropic", []string{"only one sample"})

	if len(run.Pairwise) != 0 {
		t.Errorf("Expected no pairwise scores for single response, got %d", len(run.Pairwise))
	}
	if run.MeanSimilarity != 1.0 || run.MinSimilarity != 1.0 {
		t.Errorf("Expected mean=min=1.0, got mean=%v min=%v", run.MeanSimilarity, run.MinSimilarity)
	}
}

func TestNewProviderRun_PairCount(t *testing.T) {
	tests := []struct {
		n         int
		wantPairs int
	}{
		{2, 1},
		{3, 3},
		{4, 6},
		{5, 10},
	}

	for _, tt := range tests {
		responses := make([]string, tt.n)
		for i := range responses {
			responses[i] = "response"
		}

		run := NewProviderRun("test", responses)
		if len(run.Pairwise) != tt.wantPairs {
			t.Errorf("n=%d: expected %d pairs, got %d", tt.n, tt.wantPairs, len(run.Pairwise))
		}
	}
}

func TestNewProviderRun_PairOrdering(t *testing.T) {
	run := NewProviderRun("test", []string{"a", "b", "c"})

	for _, p := range run.Pairwise {
		if p.I >= p.J {
			t.Errorf("Pairwise score has i >= j: (%d, %d)", p.I, p.J)
		}
		if p.Score < 0.0 || p.Score > 1.0 {
			t.Errorf("Pairwise score out of [0,1]: %v", p.Score)
		}
	}
}

func TestNewProviderRun_Statistics(t *testing.T) {
	run := NewProviderRun("test", []string{
		"The sky is blue.",
		"The sky is blue.",
		"Something entirely different and unrelated.",
	})

	if run.MinSimilarity > run.MeanSimilarity {
		t.Errorf("min (%v) must not exceed mean (%v)", run.MinSimilarity, run.MeanSimilarity)
	}
	if run.MeanSimilarity > 1.0 || run.MinSimilarity < 0.0 {
		t.Errorf("Statistics out of bounds: mean=%v min=%v", run.MeanSimilarity, run.MinSimilarity)
	}

	// Two identical responses guarantee at least one pairwise score of 1.0,
	// while the unrelated one keeps the minimum well below it.
	if run.MinSimilarity >= 0.9 {
		t.Errorf("Expected low min similarity with an unrelated response, got %v", run.MinSimilarity)
	}
}

func TestNewProviderRun_IdenticalResponses(t *testing.T) {
	run := NewProviderRun("test", []string{"same", "same", "same"})

	if run.MeanSimilarity != 1.0 || run.MinSimilarity != 1.0 {
		t.Errorf("Identical responses should give mean=min=1.0, got mean=%v min=%v",
			run.MeanSimilarity, run.MinSimilarity)
	}
}
