package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-concierge/core"
)

// MemoryAuditStore keeps events in order of arrival. Used by tests and by
// deployments without persistence.
type MemoryAuditStore struct {
	mu     sync.RWMutex
	events []core.AuditEvent
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Append(_ context.Context, event core.AuditEvent) error {
	if s == nil {
		return fmt.Errorf("audit: memory store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded trail.
func (s *MemoryAuditStore) Events() []core.AuditEvent {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

var _ core.AuditStore = (*MemoryAuditStore)(nil)
