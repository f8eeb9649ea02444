// Package profile owns the per-user behavior profile lifecycle: snapshot
// reads for scoring and serialized read-modify-write updates afterwards.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
)

// dailyFrequencyAlpha is the EWMA smoothing factor for the transactions-per-day
// estimate.
const dailyFrequencyAlpha = 0.2

type Accessor struct {
	store  repository.ProfileStore
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccessor(store repository.ProfileStore, logger *slog.Logger) *Accessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accessor{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Fetch returns the user's profile snapshot, or a fresh zero profile when the
// user has no history. A missing profile is never an error; a failing store
// is reported so the caller can fall back to conservative defaults.
func (a *Accessor) Fetch(ctx context.Context, userID string) (*domain.UserBehaviorProfile, error) {
	p, err := a.store.Fetch(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewUserBehaviorProfile(userID), nil
		}
		return domain.NewUserBehaviorProfile(userID), fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return p, nil
}

// Update applies the transaction to the user's stored profile and commits the
// result. The read-modify-write runs under a per-user lock so concurrent
// transactions for the same user cannot lose updates; different users never
// contend.
func (a *Accessor) Update(ctx context.Context, tx *domain.Transaction) (*domain.UserBehaviorProfile, error) {
	lock := a.userLock(tx.UserID)
	lock.Lock()
	defer lock.Unlock()

	current, err := a.store.Fetch(ctx, tx.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("fetching profile for update: %w", err)
		}
		current = domain.NewUserBehaviorProfile(tx.UserID)
	}

	updated := Apply(current, tx)
	if err := a.store.Commit(ctx, tx.UserID, updated); err != nil {
		return nil, fmt.Errorf("committing profile: %w", err)
	}

	a.logger.DebugContext(ctx, "profile updated",
		slog.String("user_id", tx.UserID),
		slog.Int64("tx_count", updated.TxCount))

	return updated, nil
}

func (a *Accessor) userLock(userID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[userID] = lock
	}
	return lock
}

// Apply folds one transaction into a profile and returns the result. It is
// pure and deterministic: given the same profile and transaction it always
// produces the same output, and it never reads the clock.
func Apply(p *domain.UserBehaviorProfile, tx *domain.Transaction) *domain.UserBehaviorProfile {
	next := p.Clone()
	amount := tx.Amount.InexactFloat64()

	// Welford's streaming update for mean and variance.
	next.TxCount++
	delta := amount - next.MeanAmount
	next.MeanAmount += delta / float64(next.TxCount)
	next.AmountM2 += delta * (amount - next.MeanAmount)
	if next.TxCount >= 2 && next.AmountM2 > 0 {
		next.StdAmount = math.Sqrt(next.AmountM2 / float64(next.TxCount))
	} else {
		next.StdAmount = 0
	}

	if amount > next.MaxAmount {
		next.MaxAmount = amount
	}

	next.HourCounts[tx.Timestamp.Hour()]++

	if tx.MerchantName != "" {
		insertWithRecency(next.FrequentMerchants, tx.MerchantName, tx.Timestamp, domain.MaxFrequentMerchants)
	}
	if tx.DeviceFingerprint != "" {
		insertWithRecency(next.KnownDevices, tx.DeviceFingerprint, tx.Timestamp, domain.MaxKnownDevices)
	}
	if tx.Country != "" && (next.UsualCountries[tx.Country] || len(next.UsualCountries) < domain.MaxUsualCountries) {
		next.UsualCountries[tx.Country] = true
	}
	if tx.City != "" && (next.UsualCities[tx.City] || len(next.UsualCities) < domain.MaxUsualCities) {
		next.UsualCities[tx.City] = true
	}

	if tx.IsWeekend {
		next.WeekendCount++
	}
	if tx.IsNight {
		next.NightCount++
	}

	next.DailyFrequency = updateDailyFrequency(next.DailyFrequency, next.UpdatedAt, tx.Timestamp)

	if next.FirstSeen.IsZero() {
		next.FirstSeen = tx.Timestamp
	}
	next.UpdatedAt = tx.Timestamp

	return next
}

// insertWithRecency adds key with the given last-seen time, evicting the
// stalest entry once the set is full.
func insertWithRecency(set map[string]time.Time, key string, seen time.Time, max int) {
	if last, ok := set[key]; ok {
		if seen.After(last) {
			set[key] = seen
		}
		return
	}
	if len(set) >= max {
		var oldestKey string
		var oldest time.Time
		for k, v := range set {
			if oldestKey == "" || v.Before(oldest) || (v.Equal(oldest) && k < oldestKey) {
				oldestKey, oldest = k, v
			}
		}
		delete(set, oldestKey)
	}
	set[key] = seen
}

// updateDailyFrequency maintains an EWMA of transactions per day based on
// the gap between consecutive transactions.
func updateDailyFrequency(current float64, lastSeen, now time.Time) float64 {
	if lastSeen.IsZero() {
		return 1
	}
	gapDays := now.Sub(lastSeen).Hours() / 24
	if gapDays < 1.0/1440 { // floor at one minute to bound the instant rate
		gapDays = 1.0 / 1440
	}
	instant := 1 / gapDays
	return dailyFrequencyAlpha*instant + (1-dailyFrequencyAlpha)*current
}
