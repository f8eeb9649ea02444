package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDebit      TransactionType = "debit"
	TypeCredit     TransactionType = "credit"
	TypeTransfer   TransactionType = "transfer"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeDeposit    TransactionType = "deposit"
	TypePayment    TransactionType = "payment"
)

// Night window used for the is_night flag, wrapping past midnight.
const (
	NightStartHour = 22
	NightEndHour   = 5
)

// Transaction is an immutable scoring input. The derived IsWeekend and
// IsNight flags are computed once at construction and never recomputed.
// RiskScore and IsFlagged are written exactly once by the engine.
type Transaction struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Type              TransactionType `json:"type"`
	MerchantName      string          `json:"merchant_name,omitempty"`
	MerchantCategory  string          `json:"merchant_category,omitempty"`
	Country           string          `json:"country,omitempty"`
	City              string          `json:"city,omitempty"`
	DeviceFingerprint string          `json:"device_fingerprint,omitempty"`
	IPAddress         string          `json:"ip_address,omitempty"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	IsWeekend         bool            `json:"is_weekend"`
	IsNight           bool            `json:"is_night"`
	RiskScore         int             `json:"risk_score"`
	IsFlagged         bool            `json:"is_flagged"`
}

func NewTransaction(userID string, amount decimal.Decimal, currency string, txType TransactionType, timestamp time.Time) *Transaction {
	tx := &Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Type:      txType,
		Timestamp: timestamp,
	}
	tx.IsWeekend = isWeekend(timestamp)
	tx.IsNight = isNight(timestamp)
	return tx
}

func (tx *Transaction) WithMerchant(name, category string) *Transaction {
	tx.MerchantName = name
	tx.MerchantCategory = category
	return tx
}

func (tx *Transaction) WithLocation(country, city string) *Transaction {
	tx.Country = country
	tx.City = city
	return tx
}

func (tx *Transaction) WithDevice(fingerprint, ipAddress string) *Transaction {
	tx.DeviceFingerprint = fingerprint
	tx.IPAddress = ipAddress
	return tx
}

func (tx *Transaction) WithPaymentMethod(method string) *Transaction {
	tx.PaymentMethod = method
	return tx
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func isNight(t time.Time) bool {
	h := t.Hour()
	return h >= NightStartHour || h <= NightEndHour
}
