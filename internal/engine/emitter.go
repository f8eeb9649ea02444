package engine

import (
	"context"
	"fmt"
	"log/slog"

	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
)

// AlertEmitter materializes the alert payload and hands it to the sink
// exactly once. It does not decide whether to fire and it does not retry:
// a sink failure surfaces to the caller as ErrPersistence.
type AlertEmitter struct {
	sink   repository.AlertStore
	logger *slog.Logger
}

func NewAlertEmitter(sink repository.AlertStore, logger *slog.Logger) *AlertEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertEmitter{
		sink:   sink,
		logger: logger,
	}
}

func (e *AlertEmitter) Emit(ctx context.Context, tx *domain.Transaction, finalScore int, confidence domain.Confidence, factors []domain.RiskFactor) (*domain.FraudAlert, error) {
	alert := domain.NewFraudAlert(tx.ID, tx.UserID, finalScore, confidence, factors)

	if err := e.sink.Store(ctx, alert); err != nil {
		return alert, fmt.Errorf("%w: storing alert for transaction %s: %v", ErrPersistence, tx.ID, err)
	}

	e.logger.InfoContext(ctx, "fraud alert emitted",
		slog.String("alert_id", alert.ID),
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", tx.UserID),
		slog.Int("risk_score", finalScore),
		slog.String("confidence", string(confidence)))

	return alert, nil
}
