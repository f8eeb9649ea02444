package validator

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fraudguard/internal/domain"
)

var (
	ErrMissingID            = errors.New("missing transaction id")
	ErrMissingUser          = errors.New("missing user reference")
	ErrInvalidAmount        = errors.New("invalid transaction amount")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInvalidType          = errors.New("unknown transaction type")
	ErrMissingTimestamp     = errors.New("missing timestamp")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

var validTypes = map[domain.TransactionType]bool{
	domain.TypeDebit:      true,
	domain.TypeCredit:     true,
	domain.TypeTransfer:   true,
	domain.TypeWithdrawal: true,
	domain.TypeDeposit:    true,
	domain.TypePayment:    true,
}

type TransactionValidator struct {
	currencyRegex *regexp.Regexp
	mu            sync.Mutex
	seen          map[string]struct{}
}

func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{
		currencyRegex: regexp.MustCompile(`^[A-Z]{3}$`),
		seen:          make(map[string]struct{}),
	}
}

// ValidateTransaction fails fast on input the engine must never score:
// missing required fields, non-positive amounts, sub-cent precision, or a
// transaction id seen before.
func (v *TransactionValidator) ValidateTransaction(tx *domain.Transaction) error {
	var errs []error

	if tx.ID == "" {
		errs = append(errs, ErrMissingID)
	}
	if tx.UserID == "" {
		errs = append(errs, ErrMissingUser)
	}
	if tx.Amount.Cmp(decimal.Zero) <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if tx.Amount.Exponent() < -2 {
		errs = append(errs, fmt.Errorf("%w: more than 2 fractional digits", ErrInvalidAmount))
	}
	if !v.currencyRegex.MatchString(tx.Currency) {
		errs = append(errs, ErrInvalidCurrency)
	}
	if !validTypes[tx.Type] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidType, tx.Type))
	}
	if tx.Timestamp.IsZero() {
		errs = append(errs, ErrMissingTimestamp)
	}
	if tx.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		errs = append(errs, errors.New("timestamp cannot be in the future"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[tx.ID]; ok {
		return ErrDuplicateTransaction
	}
	v.seen[tx.ID] = struct{}{}

	return nil
}
