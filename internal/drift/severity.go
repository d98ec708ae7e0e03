package drift

// Severity classifies detected drift, ordered least to most severe.
type Severity int

// Severity levels.
const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

// highDivergenceCutoff is the fixed boundary below which cross-provider
// similarity is classified as high severity. It is intentionally a separate
// constant, independent of the configurable threshold.
const highDivergenceCutoff = 0.60

// String returns the lowercase name of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Classify maps a cross-provider similarity score and per-provider
// consistency statistics to a severity level. Rules are evaluated in
// strict order, first match wins:
//
//  1. cross score below 0.60: high (unambiguous divergence)
//  2. cross score below threshold: medium (exceeds configured tolerance)
//  3. any provider's mean self-similarity below threshold: low
//     (providers agree, but one is inconsistent across its own samples)
//  4. otherwise: none
func Classify(crossScore float64, runs map[string]*ProviderRun, threshold float64) Severity {
	if crossScore < highDivergenceCutoff {
		return SeverityHigh
	}
	if crossScore < threshold {
		return SeverityMedium
	}
	for _, run := range runs {
		if run.MeanSimilarity < threshold {
			return SeverityLow
		}
	}
	return SeverityNone
}
