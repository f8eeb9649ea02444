package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
)

// RuleEngine evaluates the caller-supplied rule set against a transaction
// and a profile snapshot. It holds no rule state of its own: the host owns
// rule configuration and passes it in wholesale on every call.
type RuleEngine struct {
	velocity repository.RecentTransactionLookup
	logger   *slog.Logger
}

func NewRuleEngine(velocity repository.RecentTransactionLookup, logger *slog.Logger) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{
		velocity: velocity,
		logger:   logger,
	}
}

// Evaluate runs every active rule in configuration order. A malformed rule
// is skipped and reported as a warning; it never aborts the rest of the
// evaluation. Factors preserve rule order so a score is reproducible.
func (e *RuleEngine) Evaluate(ctx context.Context, tx *domain.Transaction, profile *domain.UserBehaviorProfile, rules []domain.FraudRule) (int, []domain.RiskFactor, []string) {
	var score int
	var factors []domain.RiskFactor
	var warnings []string

	for _, rule := range rules {
		if !rule.Active {
			continue
		}

		fired, contribution, reason, err := e.evaluateRule(ctx, rule, tx, profile)
		if err != nil {
			warning := fmt.Sprintf("rule %q skipped: %v", rule.Name, err)
			warnings = append(warnings, warning)
			e.logger.WarnContext(ctx, "rule skipped",
				slog.String("rule", rule.Name),
				slog.String("type", string(rule.Type)),
				slog.String("error", err.Error()))
			continue
		}
		if !fired {
			continue
		}

		score += contribution
		factors = append(factors, domain.RiskFactor{
			Code:         rule.Name,
			Reason:       reason,
			Contribution: contribution,
		})
	}

	return score, factors, warnings
}

func (e *RuleEngine) evaluateRule(ctx context.Context, rule domain.FraudRule, tx *domain.Transaction, profile *domain.UserBehaviorProfile) (bool, int, string, error) {
	if rule.RiskWeight <= 0 || rule.RiskWeight > 100 {
		return false, 0, "", fmt.Errorf("risk_weight %d out of range", rule.RiskWeight)
	}

	switch rule.Type {
	case domain.RuleAmountThreshold:
		return evalAmountThreshold(rule, tx, profile)
	case domain.RuleLocationCheck:
		return evalLocationCheck(rule, tx, profile)
	case domain.RuleVelocityCheck:
		return e.evalVelocityCheck(ctx, rule, tx)
	case domain.RuleTimePattern:
		return evalTimePattern(rule, tx, profile)
	case domain.RuleMerchantRisk:
		return evalMerchantRisk(rule, tx, profile)
	case domain.RuleDeviceCheck:
		return evalDeviceCheck(rule, tx, profile)
	default:
		return false, 0, "", fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// evalAmountThreshold fires when the amount exceeds the profile mean times
// the configured multiplier. The contribution scales with how far the
// threshold is exceeded, capped at the rule's weight. Users without history
// have no meaningful mean, so the rule stays silent for them.
func evalAmountThreshold(rule domain.FraudRule, tx *domain.Transaction, profile *domain.UserBehaviorProfile) (bool, int, string, error) {
	if rule.Conditions.Multiplier <= 0 {
		return false, 0, "", fmt.Errorf("amount_threshold requires a positive multiplier")
	}
	if profile.TxCount == 0 || profile.MeanAmount <= 0 {
		return false, 0, "", nil
	}

	amount := tx.Amount.InexactFloat64()
	threshold := profile.MeanAmount * rule.Conditions.Multiplier
	if amount <= threshold {
		return false, 0, "", nil
	}

	excess := (amount - threshold) / threshold
	contribution := int(math.Round(float64(rule.RiskWeight) * excess))
	if contribution < 1 {
		contribution = 1
	}
	if contribution > rule.RiskWeight {
		contribution = rule.RiskWeight
	}

	reason := fmt.Sprintf("amount %s exceeds %.1fx the user's average of %.2f", tx.Amount.StringFixed(2), rule.Conditions.Multiplier, profile.MeanAmount)
	return true, contribution, reason, nil
}

func evalLocationCheck(rule domain.FraudRule, tx *domain.Transaction, profile *domain.UserBehaviorProfile) (bool, int, string, error) {
	if rule.Conditions.MinAmount > 0 && tx.Amount.InexactFloat64() < rule.Conditions.MinAmount {
		return false, 0, "", nil
	}

	if rule.Conditions.CheckCity {
		if tx.City == "" || len(profile.UsualCities) == 0 || profile.UsualCities[tx.City] {
			return false, 0, "", nil
		}
		return true, rule.RiskWeight, fmt.Sprintf("city %q not among the user's usual cities", tx.City), nil
	}

	if tx.Country == "" || len(profile.UsualCountries) == 0 || profile.UsualCountries[tx.Country] {
		return false, 0, "", nil
	}
	return true, rule.RiskWeight, fmt.Sprintf("country %q not among the user's usual countries", tx.Country), nil
}

// evalVelocityCheck counts the user's transactions in the trailing window up
// to and including the current one. The lookup holds only previously
// recorded transactions, so the current one is added to the count here.
func (e *RuleEngine) evalVelocityCheck(ctx context.Context, rule domain.FraudRule, tx *domain.Transaction) (bool, int, string, error) {
	window, err := time.ParseDuration(rule.Conditions.TimeWindow)
	if err != nil || window <= 0 {
		return false, 0, "", fmt.Errorf("velocity_check has invalid time_window %q", rule.Conditions.TimeWindow)
	}
	if rule.Conditions.MaxTransactions <= 0 {
		return false, 0, "", fmt.Errorf("velocity_check requires a positive max_transactions")
	}

	count, err := e.velocity.CountSince(ctx, tx.UserID, tx.Timestamp.Add(-window))
	if err != nil {
		return false, 0, "", fmt.Errorf("recent transaction lookup failed: %w", err)
	}

	observed := count + 1
	if observed <= rule.Conditions.MaxTransactions {
		return false, 0, "", nil
	}

	reason := fmt.Sprintf("%d transactions within %s exceeds the limit of %d", observed, window, rule.Conditions.MaxTransactions)
	return true, rule.RiskWeight, reason, nil
}

func evalTimePattern(rule domain.FraudRule, tx *domain.Transaction, profile *domain.UserBehaviorProfile) (bool, int, string, error) {
	cond := rule.Conditions
	if cond.StartHour == cond.EndHour && cond.WeekendMultiplier <= 0 {
		return false, 0, "", fmt.Errorf("time_pattern requires an hour range or a weekend_multiplier")
	}

	if cond.StartHour != cond.EndHour && hourInRange(tx.Timestamp.Hour(), cond.StartHour, cond.EndHour) {
		reason := fmt.Sprintf("transaction at %02d:00 falls in the %02d:00-%02d:00 watch window", tx.Timestamp.Hour(), cond.StartHour, cond.EndHour)
		return true, rule.RiskWeight, reason, nil
	}

	if cond.WeekendMultiplier > 0 && tx.IsWeekend && profile.MeanAmount > 0 &&
		tx.Amount.InexactFloat64() > profile.MeanAmount*cond.WeekendMultiplier {
		reason := fmt.Sprintf("weekend amount %s above %.1fx the user's average", tx.Amount.StringFixed(2), cond.WeekendMultiplier)
		return true, rule.RiskWeight, reason, nil
	}

	return false, 0, "", nil
}

func evalMerchantRisk(rule domain.FraudRule, tx *domain.Transaction, profile *domain.UserBehaviorProfile) (bool, int, string, error) {
	if rule.Conditions.AmountMultiplier <= 0 {
		return false, 0, "", fmt.Errorf("merchant_risk requires a positive amount_multiplier")
	}
	if tx.MerchantName == "" || profile.MeanAmount <= 0 {
		return false, 0, "", nil
	}
	if _, known := profile.FrequentMerchants[tx.MerchantName]; known {
		return false, 0, "", nil
	}
	if tx.Amount.InexactFloat64() <= profile.MeanAmount*rule.Conditions.AmountMultiplier {
		return false, 0, "", nil
	}

	reason := fmt.Sprintf("unfamiliar merchant %q with amount above %.1fx the user's average", tx.MerchantName, rule.Conditions.AmountMultiplier)
	return true, rule.RiskWeight, reason, nil
}

func evalDeviceCheck(rule domain.FraudRule, tx *domain.Transaction, profile *domain.UserBehaviorProfile) (bool, int, string, error) {
	if tx.DeviceFingerprint == "" || len(profile.KnownDevices) == 0 {
		return false, 0, "", nil
	}
	if _, known := profile.KnownDevices[tx.DeviceFingerprint]; known {
		return false, 0, "", nil
	}
	return true, rule.RiskWeight, "transaction from a device not seen before for this user", nil
}

// hourInRange reports whether h falls inside [start, end], wrapping past
// midnight when start > end.
func hourInRange(h, start, end int) bool {
	if start <= end {
		return h >= start && h <= end
	}
	return h >= start || h <= end
}
