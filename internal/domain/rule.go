package domain

type RuleType string

const (
	RuleAmountThreshold RuleType = "amount_threshold"
	RuleLocationCheck   RuleType = "location_check"
	RuleVelocityCheck   RuleType = "velocity_check"
	RuleTimePattern     RuleType = "time_pattern"
	RuleMerchantRisk    RuleType = "merchant_risk"
	RuleDeviceCheck     RuleType = "device_check"
)

// RuleConditions carries the per-type parameters of a rule. Which fields are
// meaningful depends on the rule type; the engine dispatches on the type and
// reads only the fields that belong to it.
type RuleConditions struct {
	// amount_threshold: fires when amount > mean * Multiplier.
	Multiplier float64 `json:"multiplier,omitempty"`

	// location_check: compare city instead of country, and an optional
	// minimum amount below which the rule stays silent.
	CheckCity bool    `json:"check_city,omitempty"`
	MinAmount float64 `json:"min_amount,omitempty"`

	// velocity_check: trailing window as a duration string ("5m", "1h")
	// and the transaction count above which the rule fires.
	TimeWindow      string `json:"time_window,omitempty"`
	MaxTransactions int    `json:"max_transactions,omitempty"`

	// time_pattern: night-hour range wrapping past midnight, or a weekend
	// amount multiplier checked against the profile mean.
	StartHour         int     `json:"start_hour,omitempty"`
	EndHour           int     `json:"end_hour,omitempty"`
	WeekendMultiplier float64 `json:"weekend_multiplier,omitempty"`

	// merchant_risk: unknown merchant combined with amount above
	// AmountMultiplier times the profile mean.
	AmountMultiplier float64 `json:"amount_multiplier,omitempty"`
}

// FraudRule is configuration, not code: the type plus conditions are the
// sole driver of its evaluation. Rules never reference other rules.
type FraudRule struct {
	Name       string         `json:"name"`
	Type       RuleType       `json:"type"`
	Conditions RuleConditions `json:"conditions"`
	RiskWeight int            `json:"risk_weight"`
	Active     bool           `json:"active"`
}
