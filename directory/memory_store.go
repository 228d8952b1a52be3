package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-concierge/core"
)

// MemoryAuthorizationStore is a mutex-guarded in-memory store used by tests
// and by deployments that have not wired persistence yet.
type MemoryAuthorizationStore struct {
	mu      sync.RWMutex
	records map[string]core.AuthorizationRecord
}

func NewMemoryAuthorizationStore() *MemoryAuthorizationStore {
	return &MemoryAuthorizationStore{
		records: map[string]core.AuthorizationRecord{},
	}
}

func (s *MemoryAuthorizationStore) Create(_ context.Context, record core.AuthorizationRecord) (core.AuthorizationRecord, error) {
	if s == nil {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: memory store is nil")
	}
	if strings.TrimSpace(record.Sender) == "" {
		return core.AuthorizationRecord{}, fmt.Errorf("directory: sender identifier is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *MemoryAuthorizationStore) FindActive(_ context.Context, sender string, role core.Role) (core.AuthorizationRecord, bool, error) {
	if s == nil {
		return core.AuthorizationRecord{}, false, fmt.Errorf("directory: memory store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.Sender == sender && record.Role == role && record.Active {
			return record, true, nil
		}
	}
	return core.AuthorizationRecord{}, false, nil
}

func (s *MemoryAuthorizationStore) FindBySender(_ context.Context, sender string) ([]core.AuthorizationRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("directory: memory store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.AuthorizationRecord
	for _, record := range s.records {
		if record.Sender == sender {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *MemoryAuthorizationStore) SetActive(_ context.Context, sender string, active bool) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("directory: memory store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for id, record := range s.records {
		if record.Sender != sender {
			continue
		}
		record.Active = active
		s.records[id] = record
		updated++
	}
	return updated, nil
}

func (s *MemoryAuthorizationStore) Delete(_ context.Context, sender string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("directory: memory store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if record.Sender != sender {
			continue
		}
		delete(s.records, id)
		removed++
	}
	return removed, nil
}

var _ core.AuthorizationStore = (*MemoryAuthorizationStore)(nil)
