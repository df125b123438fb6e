package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"call-router/internal/calls"
)

// MemoryStore is an in-memory Store used by unit tests. It applies exactly
// the same merge semantics as SQLStore so handler tests exercise the real
// upsert contract.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]calls.CallRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]calls.CallRecord)}
}

func (m *MemoryStore) Upsert(_ context.Context, rec calls.CallRecord) (calls.CallRecord, error) {
	if rec.CallID == "" {
		return calls.CallRecord{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[rec.CallID]; ok {
		rec = calls.Merge(existing, rec)
	}
	m.records[rec.CallID] = rec
	return rec, nil
}

func (m *MemoryStore) Get(_ context.Context, callID string) (calls.CallRecord, error) {
	if callID == "" {
		return calls.CallRecord{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[callID]
	if !ok {
		return calls.CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]calls.CallRecord, error) {
	f = f.withDefaults()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []calls.CallRecord
	for _, rec := range m.records {
		if f.CallType != "" && rec.CallType != f.CallType {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].StartTime, out[j].StartTime
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.After(*tj)
	})

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkNotified(_ context.Context, callID string, at time.Time) error {
	if callID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[callID]
	if !ok {
		return ErrNotFound
	}
	if rec.ZapierSent {
		return ErrAlreadyNotified
	}
	rec.ZapierSent = true
	rec.ZapierSentAt = calls.TimePtr(at.UTC())
	m.records[callID] = rec
	return nil
}
