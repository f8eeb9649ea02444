package memory

import (
	"context"
	"fmt"
	"fraudguard/internal/domain"
	"fraudguard/internal/repository"
	"sort"
	"sync"
)

type AlertRepository struct {
	mu          sync.RWMutex
	alerts      map[string]*domain.FraudAlert
	byTx        map[string]string
	byUserIndex map[string][]string
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		alerts:      make(map[string]*domain.FraudAlert),
		byTx:        make(map[string]string),
		byUserIndex: make(map[string][]string),
	}
}

func (r *AlertRepository) Store(ctx context.Context, alert *domain.FraudAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTx[alert.TransactionID]; exists {
		return fmt.Errorf("%w: alert for transaction %s", repository.ErrDuplicate, alert.TransactionID)
	}

	r.alerts[alert.ID] = alert
	r.byTx[alert.TransactionID] = alert.ID
	r.byUserIndex[alert.UserID] = append(r.byUserIndex[alert.UserID], alert.ID)

	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.FraudAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, exists := r.alerts[id]
	if !exists {
		return nil, fmt.Errorf("%w: alert %s", repository.ErrNotFound, id)
	}
	return alert, nil
}

func (r *AlertRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*domain.FraudAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUserIndex[userID]
	result := make([]*domain.FraudAlert, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.alerts[id])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *AlertRepository) GetByStatus(ctx context.Context, status domain.AlertStatus) ([]*domain.FraudAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.FraudAlert
	for _, alert := range r.alerts {
		if alert.Status == status {
			result = append(result, alert)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *AlertRepository) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, exists := r.alerts[id]
	if !exists {
		return fmt.Errorf("%w: alert %s", repository.ErrNotFound, id)
	}

	alert.Status = status
	return nil
}
