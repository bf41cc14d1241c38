package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Keeper for local runs.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]IdempotencyRecord
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

func NewMemoryStore(ttlWindow time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   map[string]IdempotencyRecord{},
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (m *MemoryStore) CreateIfNotExists(ctx context.Context, key, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	if rec, ok := m.records[key]; ok && rec.ExpiresAt >= now.Unix() {
		return false, nil
	}
	m.records[key] = IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		Fingerprint:    fingerprint,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.ttlWindow).Unix(),
	}
	return true, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.ExpiresAt < m.nowFunc().Unix() {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Reopen(ctx context.Context, key string) error {
	return m.transition(key, StatusFailed, StatusInProgress, func(*IdempotencyRecord) {})
}

func (m *MemoryStore) MarkDone(ctx context.Context, key string, resp Response) error {
	return m.transition(key, StatusInProgress, StatusDone, func(rec *IdempotencyRecord) {
		rec.ResponseBody = resp.Body
		rec.ResponseStatus = resp.Status
		if resp.OrderID != "" {
			rec.OrderID = resp.OrderID
		}
	})
}

func (m *MemoryStore) MarkFailed(ctx context.Context, key, note string) error {
	return m.transition(key, StatusInProgress, StatusFailed, func(rec *IdempotencyRecord) {
		rec.Note = note
	})
}

func (m *MemoryStore) transition(key, from, to string, apply func(*IdempotencyRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Status != from {
		return ErrConditionFailed
	}
	rec.Status = to
	rec.UpdatedAt = m.nowFunc()
	apply(&rec)
	m.records[key] = rec
	return nil
}
