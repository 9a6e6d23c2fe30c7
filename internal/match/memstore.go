package match

import (
	"context"
	"sync"
	"time"
)

// memstore is an in-memory Store used by tests and DB-less development
// runs. Mutations copy records so callers never share memory with the
// store.
type memstore struct {
	mu sync.RWMutex

	nextID     int64
	byExternal map[string]*Record
}

func NewMemoryStore() Store {
	return &memstore{byExternal: make(map[string]*Record)}
}

func (m *memstore) NextInternalID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *memstore) Insert(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byExternal[rec.ExternalID]; exists {
		return ErrDuplicateExternalID
	}
	cp := *rec
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.byExternal[cp.ExternalID] = &cp
	return nil
}

func (m *memstore) GetByExternalID(ctx context.Context, externalID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memstore) SetActive(ctx context.Context, externalID, guestID string) error {
	return m.update(externalID, func(rec *Record) {
		rec.GuestID = guestID
		rec.Status = StatusActive
	})
}

func (m *memstore) SetCancelled(ctx context.Context, externalID string) error {
	return m.update(externalID, func(rec *Record) {
		rec.Status = StatusCancelled
	})
}

func (m *memstore) SetCompleted(ctx context.Context, externalID string, method EndMethod, didHostWin, didDraw bool, moveLog string) error {
	return m.update(externalID, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.EndMethod = method
		rec.DidHostWin = didHostWin
		rec.DidDraw = didDraw
		rec.MoveLogSummary = moveLog
	})
}

func (m *memstore) update(externalID string, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byExternal[externalID]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now()
	return nil
}
