package memory

import (
	"context"
	"fmt"
	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
	"sync"
)

type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.UserBehaviorProfile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles: make(map[string]*domain.UserBehaviorProfile),
	}
}

// Fetch returns a deep copy so callers can score against a stable snapshot.
func (r *ProfileRepository) Fetch(ctx context.Context, userID string) (*domain.UserBehaviorProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return nil, fmt.Errorf("%w: profile %s", repository.ErrNotFound, userID)
	}
	return profile.Clone(), nil
}

func (r *ProfileRepository) Commit(ctx context.Context, userID string, profile *domain.UserBehaviorProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[userID] = profile.Clone()
	return nil
}
