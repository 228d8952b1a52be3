package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-concierge/core"
)

// OutboxQueue is a delivery executor that defers side effects: instead of
// sending inline, each action tag becomes a pending outbox row for the
// runner to deliver with retries.
type OutboxQueue struct {
	store core.DeliveryOutboxStore
	now   func() time.Time
}

func NewOutboxQueue(store core.DeliveryOutboxStore) (*OutboxQueue, error) {
	if store == nil {
		return nil, fmt.Errorf("delivery: outbox store is required")
	}
	return &OutboxQueue{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (q *OutboxQueue) Execute(ctx context.Context, sender string, response core.Response) error {
	if q == nil || q.store == nil {
		return fmt.Errorf("delivery: outbox queue is not configured")
	}
	var execErr error
	for _, tag := range response.Actions {
		action := core.DeliveryAction{
			ID:     uuid.NewString(),
			Sender: sender,
			Tag:    tag,
			Payload: map[string]any{
				"reply": response.Reply,
			},
			Status:    core.DeliveryStatusPending,
			CreatedAt: q.now(),
			UpdatedAt: q.now(),
		}
		if err := q.store.Enqueue(ctx, action); err != nil {
			execErr = joinErrors(execErr, fmt.Errorf("delivery: enqueue action %q: %w", tag, err))
		}
	}
	return execErr
}

var _ core.DeliveryExecutor = (*OutboxQueue)(nil)

// MemoryOutboxStore backs tests and persistence-free deployments.
type MemoryOutboxStore struct {
	mu      sync.Mutex
	actions map[string]core.DeliveryAction
	order   []string
	now     func() time.Time
}

func NewMemoryOutboxStore() *MemoryOutboxStore {
	return &MemoryOutboxStore{
		actions: map[string]core.DeliveryAction{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryOutboxStore) Enqueue(_ context.Context, action core.DeliveryAction) error {
	if s == nil {
		return fmt.Errorf("delivery: memory outbox store is nil")
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Status == "" {
		action.Status = core.DeliveryStatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actions[action.ID]; !exists {
		s.order = append(s.order, action.ID)
	}
	s.actions[action.ID] = action
	return nil
}

func (s *MemoryOutboxStore) ClaimBatch(_ context.Context, limit int) ([]core.DeliveryAction, error) {
	if s == nil {
		return nil, fmt.Errorf("delivery: memory outbox store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var claimed []core.DeliveryAction
	for _, id := range s.order {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		action := s.actions[id]
		if action.Status != core.DeliveryStatusPending {
			continue
		}
		if action.NextAttemptAt != nil && action.NextAttemptAt.After(now) {
			continue
		}
		action.Status = core.DeliveryStatusProcessing
		action.UpdatedAt = now
		s.actions[id] = action
		claimed = append(claimed, action)
	}
	return claimed, nil
}

func (s *MemoryOutboxStore) Ack(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("delivery: memory outbox store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return fmt.Errorf("delivery: unknown outbox action %q", id)
	}
	action.Status = core.DeliveryStatusDelivered
	action.UpdatedAt = s.now()
	s.actions[id] = action
	return nil
}

func (s *MemoryOutboxStore) Retry(_ context.Context, id string, cause error, nextAttemptAt time.Time) error {
	if s == nil {
		return fmt.Errorf("delivery: memory outbox store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return fmt.Errorf("delivery: unknown outbox action %q", id)
	}
	action.Attempts++
	if cause != nil {
		action.LastError = cause.Error()
	}
	if nextAttemptAt.IsZero() {
		action.Status = core.DeliveryStatusDead
		action.NextAttemptAt = nil
	} else {
		action.Status = core.DeliveryStatusPending
		at := nextAttemptAt
		action.NextAttemptAt = &at
	}
	action.UpdatedAt = s.now()
	s.actions[id] = action
	return nil
}

// Snapshot returns a copy of every action, in insertion order.
func (s *MemoryOutboxStore) Snapshot() []core.DeliveryAction {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.DeliveryAction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.actions[id])
	}
	return out
}

var _ core.DeliveryOutboxStore = (*MemoryOutboxStore)(nil)
