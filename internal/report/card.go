// Package report assembles and persists anomaly cards, the artifact a
// probe run leaves behind.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anomalyscope/anomalyscope-go/internal/drift"
)

// maxSampleResponses caps how many raw responses per provider are embedded
// in a card, so record size stays bounded.
const maxSampleResponses = 3

// nowFunc returns the current time. Overridable in tests.
var nowFunc = time.Now

// ConfigurationError indicates the probe was invoked with an unusable
// configuration. It is fatal: no retry, no partial record.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

// Card is one probe's persisted finding: identifying metadata, the numeric
// evidence, and truncated raw samples for audit. Immutable once built.
type Card struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity"`
	Timestamp   string                 `json:"timestamp"`
	Meta        map[string]interface{} `json:"meta"`
}

// ProbeParams carries the run context a card is built from.
type ProbeParams struct {
	Prompt      string
	Runs        int
	Temperature float64
	Threshold   float64
}

// NewCard builds an anomaly card from the per-provider runs. The first two
// providers in selection order are the compared pair; additional providers
// still contribute their consistency statistics to classification.
//
// At least two provider runs are required; fewer is a *ConfigurationError
// since cross-provider comparison is undefined with a single set.
//
// A classification of "none" is stored as "low": the card's existence is the
// audit trail of a probe having run, so it always carries at least minimal
// severity.
func NewCard(params ProbeParams, selection []string, runs map[string]*drift.ProviderRun) (*Card, error) {
	if len(selection) < 2 {
		return nil, &ConfigurationError{
			msg: fmt.Sprintf("need at least two providers for cross-provider drift, got %d", len(selection)),
		}
	}

	a, b := selection[0], selection[1]
	runA, okA := runs[a]
	runB, okB := runs[b]
	if !okA || !okB {
		return nil, &ConfigurationError{
			msg: fmt.Sprintf("missing provider runs for %q and %q", a, b),
		}
	}

	crossSim := drift.CrossSimilarity(runA.Responses, runB.Responses)

	severity := drift.Classify(crossSim, runs, params.Threshold)
	if severity == drift.SeverityNone {
		severity = drift.SeverityLow
	}

	description := fmt.Sprintf(
		"Cross-provider drift on prompt with runs=%d, temp=%g. "+
			"cross_similarity=%.3f; "+
			"%s: mean=%.3f, min=%.3f; "+
			"%s: mean=%.3f, min=%.3f.",
		params.Runs, params.Temperature,
		crossSim,
		a, runA.MeanSimilarity, runA.MinSimilarity,
		b, runB.MeanSimilarity, runB.MinSimilarity,
	)

	return &Card{
		ID:          fmt.Sprintf("%s-vs-%s-DIVERGENCE", strings.ToUpper(a), strings.ToUpper(b)),
		Description: description,
		Severity:    severity.String(),
		Timestamp:   nowFunc().UTC().Format(time.RFC3339),
		Meta: map[string]interface{}{
			"run_id":      uuid.NewString(),
			"prompt":      params.Prompt,
			"threshold":   params.Threshold,
			"providers":   selection,
			"runs":        params.Runs,
			"temperature": params.Temperature,
			"samples": map[string][]string{
				a: truncateSamples(runA.Responses),
				b: truncateSamples(runB.Responses),
			},
			"cross_similarity": crossSim,
			"within": map[string]map[string]float64{
				a: {"mean": runA.MeanSimilarity, "min": runA.MinSimilarity},
				b: {"mean": runB.MeanSimilarity, "min": runB.MinSimilarity},
			},
		},
	}, nil
}

// truncateSamples returns at most maxSampleResponses entries.
func truncateSamples(responses []string) []string {
	if len(responses) <= maxSampleResponses {
		return responses
	}
	return responses[:maxSampleResponses]
}
