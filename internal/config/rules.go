package config

import (
	"encoding/json"
	"fmt"
	"os"

	"fraudguard/internal/domain"
)

// LoadRules reads a rule set from a JSON file. The file holds an ordered
// array: factor order on an alert follows the order rules appear here.
// Rule names must be unique. An empty path yields the built-in defaults.
func LoadRules(path string) ([]domain.FraudRule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var rules []domain.FraudRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	names := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rules file %s: rule with empty name", path)
		}
		if names[r.Name] {
			return nil, fmt.Errorf("rules file %s: duplicate rule name %q", path, r.Name)
		}
		names[r.Name] = true
	}

	return rules, nil
}

// DefaultRules mirrors the product's stock rule set. The multipliers and
// weights are product decisions preserved as defaults, not values tuned
// against a false-positive target.
func DefaultRules() []domain.FraudRule {
	return []domain.FraudRule{
		{
			Name:       "High Amount Deviation",
			Type:       domain.RuleAmountThreshold,
			Conditions: domain.RuleConditions{Multiplier: 5},
			RiskWeight: 50,
			Active:     true,
		},
		{
			Name:       "Unusual Country",
			Type:       domain.RuleLocationCheck,
			Conditions: domain.RuleConditions{MinAmount: 100},
			RiskWeight: 25,
			Active:     true,
		},
		{
			Name:       "Rapid Successive Transactions",
			Type:       domain.RuleVelocityCheck,
			Conditions: domain.RuleConditions{TimeWindow: "5m", MaxTransactions: 3},
			RiskWeight: 35,
			Active:     true,
		},
		{
			Name:       "Night Hours Activity",
			Type:       domain.RuleTimePattern,
			Conditions: domain.RuleConditions{StartHour: 22, EndHour: 5},
			RiskWeight: 20,
			Active:     true,
		},
		{
			Name:       "New Merchant High Amount",
			Type:       domain.RuleMerchantRisk,
			Conditions: domain.RuleConditions{AmountMultiplier: 3},
			RiskWeight: 30,
			Active:     true,
		},
		{
			Name:       "Unknown Device",
			Type:       domain.RuleDeviceCheck,
			RiskWeight: 20,
			Active:     true,
		},
	}
}
