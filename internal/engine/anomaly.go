package engine

import (
	"fmt"
	"math"

	"fraudguard/internal/domain"
)

// Anomaly scoring parameters. The sub-scores are bounded individually and
// the total is capped so statistical signals alone cannot saturate the
// final score; configured rules keep room to contribute.
const (
	anomalyTotalCap = 70

	amountScoreCap = 30
	amountZScale   = 6.0

	// With a single historical sample std is zero; a fixed contribution
	// applies only above an absolute floor, so brand-new users spending
	// ordinary amounts never look anomalous.
	stdZeroFloorAmount = 200.0
	stdZeroScore       = 10

	timeRarityCap = 15
	// An hour bucket holding at least 1/12 of history counts as routine.
	timeCommonShare = 1.0 / 12

	velocityScoreCap = 15
	velocityZScale   = 3.0
	velocityZMin     = 2.0

	geoCountryScore = 15
	geoCityScore    = 8
)

// AnomalyScorer computes statistical deviation signals independent of the
// configured rule set. It is pure: the same transaction, profile and recent
// count always produce the same factors.
type AnomalyScorer struct{}

func NewAnomalyScorer() *AnomalyScorer {
	return &AnomalyScorer{}
}

// Score returns the bounded anomaly partial and its factors.
// recentHourCount is the number of previously recorded transactions for the
// user in the trailing hour, excluding the current one.
func (s *AnomalyScorer) Score(tx *domain.Transaction, profile *domain.UserBehaviorProfile, recentHourCount int) (int, []domain.RiskFactor) {
	var factors []domain.RiskFactor

	if f, ok := s.amountDeviation(tx, profile); ok {
		factors = append(factors, f)
	}
	if f, ok := s.timeRarity(tx, profile); ok {
		factors = append(factors, f)
	}
	if f, ok := s.velocityBurst(profile, recentHourCount); ok {
		factors = append(factors, f)
	}
	if f, ok := s.geographicNovelty(tx, profile); ok {
		factors = append(factors, f)
	}

	var total int
	for _, f := range factors {
		total += f.Contribution
	}
	if total > anomalyTotalCap {
		total = anomalyTotalCap
	}
	return total, factors
}

// amountDeviation maps the amount z-score through a saturating linear
// function. Only positive deviations score: spending below the usual mean
// is not a fraud signal, and scoring it would break monotonicity in amount.
func (s *AnomalyScorer) amountDeviation(tx *domain.Transaction, profile *domain.UserBehaviorProfile) (domain.RiskFactor, bool) {
	if profile.TxCount == 0 {
		return domain.RiskFactor{}, false
	}

	amount := tx.Amount.InexactFloat64()
	if profile.StdAmount == 0 {
		if amount <= stdZeroFloorAmount {
			return domain.RiskFactor{}, false
		}
		return domain.RiskFactor{
			Code:         "amount_deviation",
			Reason:       fmt.Sprintf("amount %s with too little history to estimate spread", tx.Amount.StringFixed(2)),
			Contribution: stdZeroScore,
		}, true
	}

	z := (amount - profile.MeanAmount) / profile.StdAmount
	if z <= 0 {
		return domain.RiskFactor{}, false
	}

	contribution := int(math.Min(amountScoreCap, z*amountZScale))
	if contribution == 0 {
		return domain.RiskFactor{}, false
	}
	return domain.RiskFactor{
		Code:         "amount_deviation",
		Reason:       fmt.Sprintf("amount is %.1f standard deviations above the user's mean", z),
		Contribution: contribution,
	}, true
}

// timeRarity scores how rarely the transaction's hour bucket appears in the
// user's history; an unseen hour contributes the maximum for this signal.
func (s *AnomalyScorer) timeRarity(tx *domain.Transaction, profile *domain.UserBehaviorProfile) (domain.RiskFactor, bool) {
	if profile.TxCount == 0 {
		return domain.RiskFactor{}, false
	}

	hour := tx.Timestamp.Hour()
	share := profile.HourShare(hour)
	if share >= timeCommonShare {
		return domain.RiskFactor{}, false
	}

	contribution := int(math.Round(timeRarityCap * (1 - share/timeCommonShare)))
	if contribution == 0 {
		return domain.RiskFactor{}, false
	}
	return domain.RiskFactor{
		Code:         "time_rarity",
		Reason:       fmt.Sprintf("hour %02d:00 is unusual for this user", hour),
		Contribution: contribution,
	}, true
}

// velocityBurst compares the trailing-hour count (including the current
// transaction) against the rate implied by the user's daily frequency,
// using a Poisson-style z-score.
func (s *AnomalyScorer) velocityBurst(profile *domain.UserBehaviorProfile, recentHourCount int) (domain.RiskFactor, bool) {
	if profile.DailyFrequency <= 0 {
		return domain.RiskFactor{}, false
	}

	expected := profile.DailyFrequency / 24
	observed := float64(recentHourCount + 1)
	z := (observed - expected) / math.Sqrt(math.Max(expected, 1))
	if z <= velocityZMin {
		return domain.RiskFactor{}, false
	}

	contribution := int(math.Min(velocityScoreCap, (z-velocityZMin)*velocityZScale))
	if contribution == 0 {
		return domain.RiskFactor{}, false
	}
	return domain.RiskFactor{
		Code:         "velocity_burst",
		Reason:       fmt.Sprintf("%d transactions in the last hour against an expected %.2f", recentHourCount+1, expected),
		Contribution: contribution,
	}, true
}

// geographicNovelty scores country novelty above city novelty; a new
// country implies a new city, so only the stronger signal is reported.
func (s *AnomalyScorer) geographicNovelty(tx *domain.Transaction, profile *domain.UserBehaviorProfile) (domain.RiskFactor, bool) {
	if tx.Country != "" && len(profile.UsualCountries) > 0 && !profile.UsualCountries[tx.Country] {
		return domain.RiskFactor{
			Code:         "geo_novelty",
			Reason:       fmt.Sprintf("country %q is new for this user", tx.Country),
			Contribution: geoCountryScore,
		}, true
	}
	if tx.City != "" && len(profile.UsualCities) > 0 && !profile.UsualCities[tx.City] {
		return domain.RiskFactor{
			Code:         "geo_novelty",
			Reason:       fmt.Sprintf("city %q is new for this user", tx.City),
			Contribution: geoCityScore,
		}, true
	}
	return domain.RiskFactor{}, false
}
