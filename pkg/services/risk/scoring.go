package risk

import (
	"math"

	"github.com/de-tools/storage-guard/pkg/models/domain"
)

const (
	MaxScore = 100

	internetExposureMultiplier      = 1.5
	authenticatedExposureMultiplier = 1.2
	defaultCriticality              = 1.0
	maxCriticality                  = 2.0
)

// Factors are the inputs of a single score computation. They are never stored.
type Factors struct {
	BaseSeverity       domain.Severity
	InternetAccessible bool
	AuthenticatedOnly  bool
	Criticality        float64 // business criticality multiplier, <= 0 means 1.0, capped at 2.0
}

func NewFactors(severity domain.Severity, exposure domain.Exposure, criticality float64) Factors {
	return Factors{
		BaseSeverity:       severity,
		InternetAccessible: exposure.InternetAccessible,
		AuthenticatedOnly:  exposure.AuthenticatedOnly,
		Criticality:        criticality,
	}
}

// SeverityWeight returns the base score for a severity, 0 for unknown levels.
func SeverityWeight(s domain.Severity) int {
	weights := map[domain.Severity]int{
		domain.SeverityInfo:     10,
		domain.SeverityLow:      25,
		domain.SeverityMedium:   50,
		domain.SeverityHigh:     75,
		domain.SeverityCritical: 100,
	}
	return weights[s]
}

// ExposureMultiplier gives internet exposure precedence over authenticated-only exposure.
func ExposureMultiplier(internetAccessible, authenticatedOnly bool) float64 {
	switch {
	case internetAccessible:
		return internetExposureMultiplier
	case authenticatedOnly:
		return authenticatedExposureMultiplier
	default:
		return 1.0
	}
}

// Score is deterministic: the result lies in [base weight, 100] for every input.
func Score(f Factors) int {
	base := SeverityWeight(f.BaseSeverity)

	criticality := f.Criticality
	if criticality <= 0 || math.IsNaN(criticality) || math.IsInf(criticality, 0) {
		criticality = defaultCriticality
	}
	criticality = math.Min(criticality, maxCriticality)

	final := math.Round(float64(base) * ExposureMultiplier(f.InternetAccessible, f.AuthenticatedOnly) * criticality)

	score := int(math.Min(final, MaxScore))
	if score < base {
		score = base
	}
	return score
}
