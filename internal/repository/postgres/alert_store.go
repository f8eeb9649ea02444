package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
)

var _ repository.AlertStore = (*AlertStore)(nil)

type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fraud_alerts (
			id              VARCHAR(36) PRIMARY KEY,
			transaction_id  VARCHAR(36) NOT NULL UNIQUE,
			user_id         VARCHAR(64) NOT NULL,
			risk_score      INTEGER NOT NULL,
			confidence      VARCHAR(10) NOT NULL,
			status          VARCHAR(20) NOT NULL DEFAULT 'pending',
			factors         JSONB NOT NULL DEFAULT '[]',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_fraud_alerts_user ON fraud_alerts(user_id);
		CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status ON fraud_alerts(status);
		CREATE INDEX IF NOT EXISTS idx_fraud_alerts_created ON fraud_alerts(created_at DESC);
	`)
	return err
}

func (s *AlertStore) Store(ctx context.Context, alert *domain.FraudAlert) error {
	factors, err := json.Marshal(alert.Factors)
	if err != nil {
		return fmt.Errorf("encoding alert factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_alerts (id, transaction_id, user_id, risk_score, confidence, status, factors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, alert.ID, alert.TransactionID, alert.UserID, alert.RiskScore,
		alert.Confidence, alert.Status, factors, alert.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: alert for transaction %s", repository.ErrDuplicate, alert.TransactionID)
		}
		return fmt.Errorf("%w: storing alert %s: %v", repository.ErrUnavailable, alert.ID, err)
	}
	return nil
}

func (s *AlertStore) GetByID(ctx context.Context, id string) (*domain.FraudAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, user_id, risk_score, confidence, status, factors, created_at
		FROM fraud_alerts WHERE id = $1
	`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alert %s", repository.ErrNotFound, id)
	}
	return alert, err
}

func (s *AlertStore) GetByUserID(ctx context.Context, userID string, limit int) ([]*domain.FraudAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, risk_score, confidence, status, factors, created_at
		FROM fraud_alerts WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing alerts for %s: %v", repository.ErrUnavailable, userID, err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *AlertStore) GetByStatus(ctx context.Context, status domain.AlertStatus) ([]*domain.FraudAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, risk_score, confidence, status, factors, created_at
		FROM fraud_alerts WHERE status = $1
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s alerts: %v", repository.ErrUnavailable, status, err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *AlertStore) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE fraud_alerts SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("%w: updating alert %s: %v", repository.ErrUnavailable, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: alert %s", repository.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.FraudAlert, error) {
	var alert domain.FraudAlert
	var factors []byte
	if err := row.Scan(&alert.ID, &alert.TransactionID, &alert.UserID, &alert.RiskScore,
		&alert.Confidence, &alert.Status, &factors, &alert.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(factors, &alert.Factors); err != nil {
		return nil, fmt.Errorf("decoding alert factors: %w", err)
	}
	return &alert, nil
}

func scanAlerts(rows *sql.Rows) ([]*domain.FraudAlert, error) {
	var result []*domain.FraudAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}
