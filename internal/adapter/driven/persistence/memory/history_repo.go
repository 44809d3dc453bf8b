package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type HistoryRepository struct {
	mu      sync.Mutex
	records []domain.CallRecord
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		records: make([]domain.CallRecord, 0),
	}
}

func (r *HistoryRepository) Save(ctx context.Context, rec domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.CallRecord, 0, n)
	for i := len(r.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}
