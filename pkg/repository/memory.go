package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/tandemlab/tandem/pkg/model"
)

// memoryRepo is an in-process Repository for local runs and tests
type memoryRepo struct {
	mu        sync.RWMutex
	contexts  map[model.SessionID][]byte
	histories []*model.SearchHistory
}

// NewMemory creates a new in-memory repository
func NewMemory() Repository {
	return &memoryRepo{
		contexts: make(map[model.SessionID][]byte),
	}
}

func (r *memoryRepo) GetContext(ctx context.Context, id model.SessionID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blob, ok := r.contexts[id]
	if !ok {
		return nil, nil
	}

	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

func (r *memoryRepo) PutContext(ctx context.Context, id model.SessionID, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := make([]byte, len(blob))
	copy(cp, blob)
	r.contexts[id] = cp
	return nil
}

func (r *memoryRepo) PutSearchHistory(ctx context.Context, history *model.SearchHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *history
	r.histories = append(r.histories, &cp)
	return nil
}

func (r *memoryRepo) ListSearchHistory(ctx context.Context, id model.SessionID, limit int) ([]*model.SearchHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var histories []*model.SearchHistory
	for _, h := range r.histories {
		if h.SessionID == id {
			cp := *h
			histories = append(histories, &cp)
		}
	}

	sort.Slice(histories, func(i, j int) bool {
		return histories[i].CreatedAt.After(histories[j].CreatedAt)
	})

	if limit > 0 && len(histories) > limit {
		histories = histories[:limit]
	}

	return histories, nil
}
