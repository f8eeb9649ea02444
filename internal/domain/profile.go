package domain

import (
	"time"
)

// Bounds on the rolling sets kept per profile.
const (
	MaxFrequentMerchants = 20
	MaxUsualCountries    = 10
	MaxUsualCities       = 20
	MaxKnownDevices      = 10
)

// UserBehaviorProfile is the rolling per-user statistical summary used as
// the baseline for anomaly comparisons. It is created lazily with zero
// defaults on a user's first transaction and updated incrementally after
// every scored transaction. MeanAmount and AmountM2 follow Welford's
// streaming formula; StdAmount is derived from them.
type UserBehaviorProfile struct {
	UserID            string               `json:"user_id"`
	TxCount           int64                `json:"tx_count"`
	MeanAmount        float64              `json:"mean_amount"`
	AmountM2          float64              `json:"amount_m2"`
	StdAmount         float64              `json:"std_amount"`
	MaxAmount         float64              `json:"max_amount"`
	HourCounts        map[int]int64        `json:"hour_counts"`
	FrequentMerchants map[string]time.Time `json:"frequent_merchants"`
	UsualCountries    map[string]bool      `json:"usual_countries"`
	UsualCities       map[string]bool      `json:"usual_cities"`
	KnownDevices      map[string]time.Time `json:"known_devices"`
	DailyFrequency    float64              `json:"daily_frequency"`
	WeekendCount      int64                `json:"weekend_count"`
	NightCount        int64                `json:"night_count"`
	FirstSeen         time.Time            `json:"first_seen"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func NewUserBehaviorProfile(userID string) *UserBehaviorProfile {
	return &UserBehaviorProfile{
		UserID:            userID,
		HourCounts:        make(map[int]int64),
		FrequentMerchants: make(map[string]time.Time),
		UsualCountries:    make(map[string]bool),
		UsualCities:       make(map[string]bool),
		KnownDevices:      make(map[string]time.Time),
	}
}

// Clone returns a deep copy so a scoring pass reads a stable snapshot while
// the original keeps receiving updates.
func (p *UserBehaviorProfile) Clone() *UserBehaviorProfile {
	c := *p
	c.HourCounts = make(map[int]int64, len(p.HourCounts))
	for k, v := range p.HourCounts {
		c.HourCounts[k] = v
	}
	c.FrequentMerchants = make(map[string]time.Time, len(p.FrequentMerchants))
	for k, v := range p.FrequentMerchants {
		c.FrequentMerchants[k] = v
	}
	c.UsualCountries = make(map[string]bool, len(p.UsualCountries))
	for k, v := range p.UsualCountries {
		c.UsualCountries[k] = v
	}
	c.UsualCities = make(map[string]bool, len(p.UsualCities))
	for k, v := range p.UsualCities {
		c.UsualCities[k] = v
	}
	c.KnownDevices = make(map[string]time.Time, len(p.KnownDevices))
	for k, v := range p.KnownDevices {
		c.KnownDevices[k] = v
	}
	return &c
}

func (p *UserBehaviorProfile) WeekendRatio() float64 {
	if p.TxCount == 0 {
		return 0
	}
	return float64(p.WeekendCount) / float64(p.TxCount)
}

func (p *UserBehaviorProfile) NightRatio() float64 {
	if p.TxCount == 0 {
		return 0
	}
	return float64(p.NightCount) / float64(p.TxCount)
}

// HourShare returns the fraction of the user's history that falls into the
// given hour-of-day bucket.
func (p *UserBehaviorProfile) HourShare(hour int) float64 {
	var total int64
	for _, c := range p.HourCounts {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(p.HourCounts[hour]) / float64(total)
}
