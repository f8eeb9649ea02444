package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
)

var _ repository.ProfileStore = (*ProfileStore)(nil)

// ProfileStore keeps one row per user; the bounded sets are stored as JSONB
// since they are only ever read back whole.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS behavior_profiles (
			user_id          VARCHAR(64) PRIMARY KEY,
			tx_count         BIGINT NOT NULL DEFAULT 0,
			mean_amount      DOUBLE PRECISION NOT NULL DEFAULT 0,
			amount_m2        DOUBLE PRECISION NOT NULL DEFAULT 0,
			std_amount       DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_amount       DOUBLE PRECISION NOT NULL DEFAULT 0,
			hour_counts      JSONB NOT NULL DEFAULT '{}',
			merchants        JSONB NOT NULL DEFAULT '{}',
			countries        JSONB NOT NULL DEFAULT '{}',
			cities           JSONB NOT NULL DEFAULT '{}',
			devices          JSONB NOT NULL DEFAULT '{}',
			daily_frequency  DOUBLE PRECISION NOT NULL DEFAULT 0,
			weekend_count    BIGINT NOT NULL DEFAULT 0,
			night_count      BIGINT NOT NULL DEFAULT 0,
			first_seen       TIMESTAMPTZ,
			updated_at       TIMESTAMPTZ
		);
	`)
	return err
}

func (s *ProfileStore) Fetch(ctx context.Context, userID string) (*domain.UserBehaviorProfile, error) {
	p := domain.NewUserBehaviorProfile(userID)
	var hourCounts, merchants, countries, cities, devices []byte
	var firstSeen, updatedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT tx_count, mean_amount, amount_m2, std_amount, max_amount,
		       hour_counts, merchants, countries, cities, devices,
		       daily_frequency, weekend_count, night_count, first_seen, updated_at
		FROM behavior_profiles WHERE user_id = $1
	`, userID).Scan(
		&p.TxCount, &p.MeanAmount, &p.AmountM2, &p.StdAmount, &p.MaxAmount,
		&hourCounts, &merchants, &countries, &cities, &devices,
		&p.DailyFrequency, &p.WeekendCount, &p.NightCount, &firstSeen, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", repository.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching profile %s: %v", repository.ErrUnavailable, userID, err)
	}

	decode := func(raw []byte, dst any) {
		if err == nil && len(raw) > 0 {
			err = json.Unmarshal(raw, dst)
		}
	}
	err = nil
	decode(hourCounts, &p.HourCounts)
	decode(merchants, &p.FrequentMerchants)
	decode(countries, &p.UsualCountries)
	decode(cities, &p.UsualCities)
	decode(devices, &p.KnownDevices)
	if err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", userID, err)
	}

	if firstSeen.Valid {
		p.FirstSeen = firstSeen.Time
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	return p, nil
}

func (s *ProfileStore) Commit(ctx context.Context, userID string, profile *domain.UserBehaviorProfile) error {
	hourCounts, err := json.Marshal(profile.HourCounts)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", userID, err)
	}
	merchants, _ := json.Marshal(profile.FrequentMerchants)
	countries, _ := json.Marshal(profile.UsualCountries)
	cities, _ := json.Marshal(profile.UsualCities)
	devices, _ := json.Marshal(profile.KnownDevices)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO behavior_profiles (
			user_id, tx_count, mean_amount, amount_m2, std_amount, max_amount,
			hour_counts, merchants, countries, cities, devices,
			daily_frequency, weekend_count, night_count, first_seen, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (user_id) DO UPDATE SET
			tx_count = EXCLUDED.tx_count,
			mean_amount = EXCLUDED.mean_amount,
			amount_m2 = EXCLUDED.amount_m2,
			std_amount = EXCLUDED.std_amount,
			max_amount = EXCLUDED.max_amount,
			hour_counts = EXCLUDED.hour_counts,
			merchants = EXCLUDED.merchants,
			countries = EXCLUDED.countries,
			cities = EXCLUDED.cities,
			devices = EXCLUDED.devices,
			daily_frequency = EXCLUDED.daily_frequency,
			weekend_count = EXCLUDED.weekend_count,
			night_count = EXCLUDED.night_count,
			first_seen = EXCLUDED.first_seen,
			updated_at = EXCLUDED.updated_at
	`, userID, profile.TxCount, profile.MeanAmount, profile.AmountM2, profile.StdAmount,
		profile.MaxAmount, hourCounts, merchants, countries, cities, devices,
		profile.DailyFrequency, profile.WeekendCount, profile.NightCount,
		nullTime(profile.FirstSeen), nullTime(profile.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: committing profile %s: %v", repository.ErrUnavailable, userID, err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
