package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryDedupStore is a process-local dedup set with expiry.
type MemoryDedupStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *MemoryDedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if exp, ok := r.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	r.entries[key] = now.Add(ttl)
	r.sweep(now)
	return true, nil
}

func (r *MemoryDedupStore) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// Len reports the number of live keys.
func (r *MemoryDedupStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep(r.now())
	return len(r.entries)
}

// sweep drops expired keys; the caller holds mu.
func (r *MemoryDedupStore) sweep(now time.Time) {
	for k, exp := range r.entries {
		if !now.Before(exp) {
			delete(r.entries, k)
		}
	}
}

type MemoryDraftStore struct {
	drafts sync.Map
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{}
}

func (r *MemoryDraftStore) SaveDraft(ctx context.Context, sessionID string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.drafts.Store(sessionID, cp)
	return nil
}

func (r *MemoryDraftStore) LoadDraft(ctx context.Context, sessionID string) ([]byte, error) {
	val, ok := r.drafts.Load(sessionID)
	if !ok {
		return nil, nil
	}
	return val.([]byte), nil
}

func (r *MemoryDraftStore) ClearDraft(ctx context.Context, sessionID string) error {
	r.drafts.Delete(sessionID)
	return nil
}
