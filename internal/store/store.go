package store

import (
	"context"
	"errors"
	"time"

	"call-router/internal/calls"
)

var (
	ErrNotFound        = errors.New("store: call record not found")
	ErrAlreadyNotified = errors.New("store: record already marked notified")
	ErrInvalidArgument = errors.New("store: invalid argument")
)

// Store is the persistence contract for call records.
//
// Upsert contract: inserts a new row keyed by call_id or, on conflict, merges
// the supplied fields over the existing row (calls.Merge); an omitted field
// never erases previously stored data. Returns the row as stored.
//
// All implementations must be safe for concurrent callers; the SQL
// implementation funnels every operation through a single-writer Lane.
type Store interface {
	Upsert(ctx context.Context, rec calls.CallRecord) (calls.CallRecord, error)
	Get(ctx context.Context, callID string) (calls.CallRecord, error)
	List(ctx context.Context, f ListFilter) ([]calls.CallRecord, error)

	// MarkNotified flips zapier_sent false -> true exactly once.
	// Returns ErrAlreadyNotified if the record was already marked.
	MarkNotified(ctx context.Context, callID string, at time.Time) error
}

// ListFilter narrows List results. Rows are always ordered by start_time
// descending (newest first).
type ListFilter struct {
	CallType calls.CallType
	Limit    int
	Offset   int
}

func (f ListFilter) withDefaults() ListFilter {
	out := f
	if out.Limit <= 0 || out.Limit > 500 {
		out.Limit = 50
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
