package domain

import (
	"time"

	"github.com/google/uuid"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

type AlertStatus string

const (
	AlertPending        AlertStatus = "pending"
	AlertConfirmedFraud AlertStatus = "confirmed_fraud"
	AlertFalsePositive  AlertStatus = "false_positive"
	AlertInvestigating  AlertStatus = "investigating"
	AlertResolved       AlertStatus = "resolved"
)

// RiskFactor records one contributing signal. Order within an alert is the
// evaluation order, so a score can be reproduced factor by factor.
type RiskFactor struct {
	Code         string `json:"code"`
	Reason       string `json:"reason"`
	Contribution int    `json:"contribution"`
}

// FraudAlert is created at most once per transaction. Status is mutated by
// the external analyst workflow, never by the engine.
type FraudAlert struct {
	ID            string       `json:"id"`
	TransactionID string       `json:"transaction_id"`
	UserID        string       `json:"user_id"`
	RiskScore     int          `json:"risk_score"`
	Confidence    Confidence   `json:"confidence"`
	Status        AlertStatus  `json:"status"`
	Factors       []RiskFactor `json:"factors"`
	CreatedAt     time.Time    `json:"created_at"`
}

func NewFraudAlert(transactionID, userID string, riskScore int, confidence Confidence, factors []RiskFactor) *FraudAlert {
	return &FraudAlert{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		UserID:        userID,
		RiskScore:     riskScore,
		Confidence:    confidence,
		Status:        AlertPending,
		Factors:       factors,
		CreatedAt:     time.Now(),
	}
}
