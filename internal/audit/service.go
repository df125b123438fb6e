package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for trail events.
//
// It MUST be append-only. There are no update or delete methods.

type Repository interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Service records the internal call event trail.
//
// IMPORTANT:
// - Callers should treat trail logging as best-effort; a nil *Service is
//   valid and drops everything.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Log records a call-scoped trail event, ignoring failures.
func (s *Service) Log(ctx context.Context, t EventType, callID, message string) {
	_ = s.Append(ctx, Event{Type: t, CallID: callID, Message: message})
}

// LogOperator records an operator-initiated action.
func (s *Service) LogOperator(ctx context.Context, actor, callID, message string) {
	_ = s.Append(ctx, Event{Type: EventTypeOperatorAction, Actor: actor, CallID: callID, Message: message})
}

// Recent returns the newest trail events, best-effort.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Recent(ctx, limit)
}
