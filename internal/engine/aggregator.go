package engine

import (
	"fraudguard/internal/domain"
)

// Default aggregation cutoffs. The alert threshold is a product decision,
// not a tuned value; hosts override it through configuration.
const (
	DefaultAlertThreshold = 50
	DefaultRuleMinimum    = 20
	DefaultAnomalyMinimum = 25
)

// Aggregator combines the rule and anomaly partials into one bounded score
// and a confidence level. It is stateless and monotonic: the same partials
// always yield the same score and decision.
type Aggregator struct {
	alertThreshold int
	ruleMinimum    int
	anomalyMinimum int
}

func NewAggregator(alertThreshold int) *Aggregator {
	if alertThreshold <= 0 {
		alertThreshold = DefaultAlertThreshold
	}
	return &Aggregator{
		alertThreshold: alertThreshold,
		ruleMinimum:    DefaultRuleMinimum,
		anomalyMinimum: DefaultAnomalyMinimum,
	}
}

// Aggregate clamps the summed partials to [0, 100] and derives confidence
// from signal agreement: high when both subsystems independently cross
// their minima, medium when only one does, low otherwise.
func (a *Aggregator) Aggregate(rulePartial, anomalyPartial int) (int, domain.Confidence) {
	final := rulePartial + anomalyPartial
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	ruleAgrees := rulePartial >= a.ruleMinimum
	anomalyAgrees := anomalyPartial >= a.anomalyMinimum

	var confidence domain.Confidence
	switch {
	case ruleAgrees && anomalyAgrees:
		confidence = domain.ConfidenceHigh
	case ruleAgrees || anomalyAgrees:
		confidence = domain.ConfidenceMedium
	default:
		confidence = domain.ConfidenceLow
	}

	return final, confidence
}

// ShouldAlert is the sole trigger for alert emission.
func (a *Aggregator) ShouldAlert(finalScore int) bool {
	return finalScore >= a.alertThreshold
}
