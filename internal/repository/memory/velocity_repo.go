package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// retention bounds how far back the in-memory window keeps observations;
// velocity rules never look further back than this.
const retention = 24 * time.Hour

type VelocityRepository struct {
	mu         sync.RWMutex
	timestamps map[string][]time.Time
}

func NewVelocityRepository() *VelocityRepository {
	return &VelocityRepository{
		timestamps: make(map[string][]time.Time),
	}
}

func (r *VelocityRepository) Record(ctx context.Context, userID string, timestamp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := append(r.timestamps[userID], timestamp)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	cutoff := timestamp.Add(-retention)
	for len(ts) > 0 && ts[0].Before(cutoff) {
		ts = ts[1:]
	}
	r.timestamps[userID] = ts

	return nil
}

func (r *VelocityRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	for _, ts := range r.timestamps[userID] {
		if !ts.Before(since) {
			count++
		}
	}
	return count, nil
}
