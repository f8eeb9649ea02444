package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudguard/internal/domain"
	"fraudguard/internal/repository/memory"
)

var (
	baseTime  = time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC) // Tuesday afternoon
	nightTime = time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)
)

func seededProfile(userID string) *domain.UserBehaviorProfile {
	p := domain.NewUserBehaviorProfile(userID)
	p.TxCount = 50
	p.MeanAmount = 100
	p.StdAmount = 20
	p.AmountM2 = 20 * 20 * 50
	p.MaxAmount = 180
	p.HourCounts[14] = 50
	p.FrequentMerchants["Grocery Plus"] = baseTime.AddDate(0, 0, -3)
	p.UsualCountries["US"] = true
	p.UsualCities["New York"] = true
	p.KnownDevices["device-1"] = baseTime.AddDate(0, 0, -1)
	p.DailyFrequency = 2
	p.FirstSeen = baseTime.AddDate(0, -2, 0)
	p.UpdatedAt = baseTime.AddDate(0, 0, -1)
	return p
}

func testTx(amount float64, ts time.Time) *domain.Transaction {
	return domain.NewTransaction("user-1", decimal.NewFromFloat(amount), "USD", domain.TypePayment, ts)
}

func TestRuleEngine_AmountThreshold(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rule := domain.FraudRule{
		Name:       "High Amount Deviation",
		Type:       domain.RuleAmountThreshold,
		Conditions: domain.RuleConditions{Multiplier: 5},
		RiskWeight: 50,
		Active:     true,
	}

	tests := []struct {
		name         string
		amount       float64
		profile      *domain.UserBehaviorProfile
		wantFired    bool
		contribution int
	}{
		{"below threshold", 400, seededProfile("user-1"), false, 0},
		{"at threshold", 500, seededProfile("user-1"), false, 0},
		{"just above threshold", 600, seededProfile("user-1"), true, 10},
		{"far above threshold capped at weight", 5000, seededProfile("user-1"), true, 50},
		{"new user never fires", 600, domain.NewUserBehaviorProfile("user-1"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, factors, warnings := e.Evaluate(context.Background(), testTx(tt.amount, baseTime), tt.profile, []domain.FraudRule{rule})
			assert.Empty(t, warnings)
			if !tt.wantFired {
				assert.Zero(t, score)
				assert.Empty(t, factors)
				return
			}
			require.Len(t, factors, 1)
			assert.Equal(t, "High Amount Deviation", factors[0].Code)
			assert.Equal(t, tt.contribution, factors[0].Contribution)
			assert.Equal(t, tt.contribution, score)
		})
	}
}

func TestRuleEngine_LocationCheck(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rule := domain.FraudRule{
		Name:       "Unusual Country",
		Type:       domain.RuleLocationCheck,
		Conditions: domain.RuleConditions{MinAmount: 100},
		RiskWeight: 25,
		Active:     true,
	}

	t.Run("foreign country above minimum fires", func(t *testing.T) {
		tx := testTx(150, baseTime).WithLocation("RU", "Moscow")
		score, factors, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		require.Len(t, factors, 1)
		assert.Equal(t, 25, score)
	})

	t.Run("foreign country below minimum stays silent", func(t *testing.T) {
		tx := testTx(50, baseTime).WithLocation("RU", "Moscow")
		score, _, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})

	t.Run("usual country stays silent", func(t *testing.T) {
		tx := testTx(150, baseTime).WithLocation("US", "New York")
		score, _, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})

	t.Run("empty usual set stays silent", func(t *testing.T) {
		tx := testTx(150, baseTime).WithLocation("RU", "Moscow")
		score, _, _ := e.Evaluate(context.Background(), tx, domain.NewUserBehaviorProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})

	t.Run("check_city compares cities", func(t *testing.T) {
		cityRule := rule
		cityRule.Conditions = domain.RuleConditions{CheckCity: true}
		tx := testTx(150, baseTime).WithLocation("US", "Chicago")
		score, factors, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{cityRule})
		require.Len(t, factors, 1)
		assert.Equal(t, 25, score)
	})
}

func TestRuleEngine_VelocityCheck(t *testing.T) {
	velocity := memory.NewVelocityRepository()
	e := NewRuleEngine(velocity, nil)
	rule := domain.FraudRule{
		Name:       "Rapid Successive Transactions",
		Type:       domain.RuleVelocityCheck,
		Conditions: domain.RuleConditions{TimeWindow: "5m", MaxTransactions: 3},
		RiskWeight: 35,
		Active:     true,
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, velocity.Record(ctx, "user-1", baseTime.Add(time.Duration(i)*time.Minute)))
	}

	t.Run("fourth transaction in window fires", func(t *testing.T) {
		score, factors, warnings := e.Evaluate(ctx, testTx(10, baseTime.Add(3*time.Minute)), seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Empty(t, warnings)
		require.Len(t, factors, 1)
		assert.Equal(t, 35, score)
	})

	t.Run("transaction outside window stays silent", func(t *testing.T) {
		score, _, _ := e.Evaluate(ctx, testTx(10, baseTime.Add(10*time.Minute)), seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})

	t.Run("malformed window is a warning, not a failure", func(t *testing.T) {
		bad := rule
		bad.Conditions.TimeWindow = "five minutes"
		score, factors, warnings := e.Evaluate(ctx, testTx(10, baseTime), seededProfile("user-1"), []domain.FraudRule{bad})
		assert.Zero(t, score)
		assert.Empty(t, factors)
		assert.Len(t, warnings, 1)
	})
}

func TestRuleEngine_TimePattern(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rule := domain.FraudRule{
		Name:       "Night Hours Activity",
		Type:       domain.RuleTimePattern,
		Conditions: domain.RuleConditions{StartHour: 22, EndHour: 5},
		RiskWeight: 20,
		Active:     true,
	}

	t.Run("wrapped night range fires at 2am", func(t *testing.T) {
		score, factors, _ := e.Evaluate(context.Background(), testTx(10, nightTime), seededProfile("user-1"), []domain.FraudRule{rule})
		require.Len(t, factors, 1)
		assert.Equal(t, 20, score)
	})

	t.Run("afternoon stays silent", func(t *testing.T) {
		score, _, _ := e.Evaluate(context.Background(), testTx(10, baseTime), seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})

	t.Run("weekend multiplier fires on big weekend spend", func(t *testing.T) {
		weekend := rule
		weekend.Conditions = domain.RuleConditions{WeekendMultiplier: 2}
		saturday := time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)
		score, factors, _ := e.Evaluate(context.Background(), testTx(250, saturday), seededProfile("user-1"), []domain.FraudRule{weekend})
		require.Len(t, factors, 1)
		assert.Equal(t, 20, score)
	})
}

func TestRuleEngine_MerchantRisk(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rule := domain.FraudRule{
		Name:       "New Merchant High Amount",
		Type:       domain.RuleMerchantRisk,
		Conditions: domain.RuleConditions{AmountMultiplier: 3},
		RiskWeight: 30,
		Active:     true,
	}

	t.Run("unknown merchant with big amount fires", func(t *testing.T) {
		tx := testTx(400, baseTime).WithMerchant("Casino Royale", "gambling")
		score, factors, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		require.Len(t, factors, 1)
		assert.Equal(t, 30, score)
	})

	t.Run("known merchant stays silent", func(t *testing.T) {
		tx := testTx(400, baseTime).WithMerchant("Grocery Plus", "grocery")
		score, _, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})

	t.Run("unknown merchant with ordinary amount stays silent", func(t *testing.T) {
		tx := testTx(120, baseTime).WithMerchant("Casino Royale", "gambling")
		score, _, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})
}

func TestRuleEngine_DeviceCheck(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rule := domain.FraudRule{
		Name:       "Unknown Device",
		Type:       domain.RuleDeviceCheck,
		RiskWeight: 20,
		Active:     true,
	}

	t.Run("new device fires", func(t *testing.T) {
		tx := testTx(10, baseTime).WithDevice("device-9", "10.0.0.1")
		score, _, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Equal(t, 20, score)
	})

	t.Run("known device stays silent", func(t *testing.T) {
		tx := testTx(10, baseTime).WithDevice("device-1", "10.0.0.1")
		score, _, _ := e.Evaluate(context.Background(), tx, seededProfile("user-1"), []domain.FraudRule{rule})
		assert.Zero(t, score)
	})
}

func TestRuleEngine_SkipsInactiveAndMalformed(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rules := []domain.FraudRule{
		{
			Name:       "Disabled Catch All",
			Type:       domain.RuleAmountThreshold,
			Conditions: domain.RuleConditions{Multiplier: 0.01},
			RiskWeight: 99,
			Active:     false,
		},
		{
			Name:       "Broken Type",
			Type:       domain.RuleType("hunch"),
			RiskWeight: 50,
			Active:     true,
		},
		{
			Name:       "Zero Weight",
			Type:       domain.RuleAmountThreshold,
			Conditions: domain.RuleConditions{Multiplier: 1},
			RiskWeight: 0,
			Active:     true,
		},
		{
			Name:       "Night Hours Activity",
			Type:       domain.RuleTimePattern,
			Conditions: domain.RuleConditions{StartHour: 22, EndHour: 5},
			RiskWeight: 20,
			Active:     true,
		},
	}

	score, factors, warnings := e.Evaluate(context.Background(), testTx(500, nightTime), seededProfile("user-1"), rules)

	assert.Equal(t, 20, score, "only the well-formed active rule may contribute")
	require.Len(t, factors, 1)
	assert.Equal(t, "Night Hours Activity", factors[0].Code)
	assert.Len(t, warnings, 2)
}

func TestRuleEngine_FactorsPreserveConfigurationOrder(t *testing.T) {
	e := NewRuleEngine(memory.NewVelocityRepository(), nil)
	rules := []domain.FraudRule{
		{Name: "Night Hours Activity", Type: domain.RuleTimePattern, Conditions: domain.RuleConditions{StartHour: 22, EndHour: 5}, RiskWeight: 20, Active: true},
		{Name: "High Amount Deviation", Type: domain.RuleAmountThreshold, Conditions: domain.RuleConditions{Multiplier: 2}, RiskWeight: 40, Active: true},
	}

	_, factors, _ := e.Evaluate(context.Background(), testTx(900, nightTime), seededProfile("user-1"), rules)

	require.Len(t, factors, 2)
	assert.Equal(t, "Night Hours Activity", factors[0].Code)
	assert.Equal(t, "High Amount Deviation", factors[1].Code)
}
