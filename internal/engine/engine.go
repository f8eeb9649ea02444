// Package engine scores transactions against per-user behavior profiles
// and a configurable rule set, and emits fraud alerts when the combined
// risk crosses the alert threshold.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fraudguard/internal/domain"
	"fraudguard/internal/profile"
	"fraudguard/internal/repository"
	"fraudguard/pkg/metrics"
	"fraudguard/pkg/validator"
)

// ScoringResult is what ProcessTransaction hands back to the host. It is
// populated even when alert or profile persistence fails, so the host can
// retry persistence without rescoring.
type ScoringResult struct {
	TransactionID string              `json:"transaction_id"`
	FinalScore    int                 `json:"final_score"`
	Confidence    domain.Confidence   `json:"confidence"`
	Factors       []domain.RiskFactor `json:"factors"`
	Warnings      []string            `json:"warnings,omitempty"`
	AlertRaised   bool                `json:"alert_raised"`
	Alert         *domain.FraudAlert  `json:"alert,omitempty"`
}

type Engine struct {
	profiles   *profile.Accessor
	velocity   repository.RecentTransactionLookup
	ruleEngine *RuleEngine
	anomaly    *AnomalyScorer
	aggregator *Aggregator
	emitter    *AlertEmitter
	validator  *validator.TransactionValidator
	collector  *metrics.Collector
	logger     *slog.Logger
}

func NewEngine(
	profiles *profile.Accessor,
	velocity repository.RecentTransactionLookup,
	alerts repository.AlertStore,
	collector *metrics.Collector,
	alertThreshold int,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		profiles:   profiles,
		velocity:   velocity,
		ruleEngine: NewRuleEngine(velocity, logger),
		anomaly:    NewAnomalyScorer(),
		aggregator: NewAggregator(alertThreshold),
		emitter:    NewAlertEmitter(alerts, logger),
		validator:  validator.NewTransactionValidator(),
		collector:  collector,
		logger:     logger,
	}
}

// ProcessTransaction validates, scores and records one transaction.
//
// Scoring reads a profile snapshot and is free of side effects; the profile
// update and velocity record are applied afterwards, serialized per user by
// the accessor. A cancelled context between scoring and commit leaves the
// profile untouched. Persistence failures come back as ErrPersistence
// alongside a fully populated result.
func (e *Engine) ProcessTransaction(ctx context.Context, tx *domain.Transaction, rules []domain.FraudRule) (*ScoringResult, error) {
	start := time.Now()

	if err := e.validator.ValidateTransaction(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	var warnings []string

	prof, err := e.profiles.Fetch(ctx, tx.UserID)
	if err != nil {
		// Under-scoring beats blocking commerce: score against the
		// conservative default profile and say so.
		warnings = append(warnings, "profile store unavailable, scoring against a default profile")
		e.logger.WarnContext(ctx, "profile unavailable",
			slog.String("user_id", tx.UserID),
			slog.String("error", err.Error()))
	}

	recentHourCount, err := e.velocity.CountSince(ctx, tx.UserID, tx.Timestamp.Add(-time.Hour))
	if err != nil {
		warnings = append(warnings, "recent transaction lookup unavailable, velocity signals skipped")
		e.logger.WarnContext(ctx, "velocity lookup unavailable",
			slog.String("user_id", tx.UserID),
			slog.String("error", err.Error()))
		recentHourCount = 0
	}

	ruleScore, ruleFactors, ruleWarnings := e.ruleEngine.Evaluate(ctx, tx, prof, rules)
	warnings = append(warnings, ruleWarnings...)

	anomalyScore, anomalyFactors := e.anomaly.Score(tx, prof, recentHourCount)

	finalScore, confidence := e.aggregator.Aggregate(ruleScore, anomalyScore)
	alertRaised := e.aggregator.ShouldAlert(finalScore)

	factors := make([]domain.RiskFactor, 0, len(ruleFactors)+len(anomalyFactors))
	factors = append(factors, ruleFactors...)
	factors = append(factors, anomalyFactors...)

	tx.RiskScore = finalScore
	tx.IsFlagged = alertRaised

	result := &ScoringResult{
		TransactionID: tx.ID,
		FinalScore:    finalScore,
		Confidence:    confidence,
		Factors:       factors,
		Warnings:      warnings,
		AlertRaised:   alertRaised,
	}

	if e.collector != nil {
		e.collector.RecordScoring(time.Since(start), finalScore, alertRaised)
		e.collector.RecordRuleWarnings(len(ruleWarnings))
	}

	var persistErr error
	if alertRaised {
		alert, err := e.emitter.Emit(ctx, tx, finalScore, confidence, factors)
		if err != nil {
			persistErr = err
		} else {
			result.Alert = alert
		}
	}

	// The enclosing request may have been cancelled while scoring; commit
	// no partial profile update in that case.
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if _, err := e.profiles.Update(ctx, tx); err != nil {
		persistErr = errors.Join(persistErr, fmt.Errorf("%w: profile update: %v", ErrPersistence, err))
	}
	if err := e.velocity.Record(ctx, tx.UserID, tx.Timestamp); err != nil {
		persistErr = errors.Join(persistErr, fmt.Errorf("%w: velocity record: %v", ErrPersistence, err))
	}

	e.logger.InfoContext(ctx, "transaction scored",
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", tx.UserID),
		slog.Int("risk_score", finalScore),
		slog.String("confidence", string(confidence)),
		slog.Bool("alert_raised", alertRaised))

	return result, persistErr
}
