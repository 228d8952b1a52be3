package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-concierge/core"
)

type stubAuthorizationStore struct {
	mu        sync.Mutex
	records   map[string]core.AuthorizationRecord
	findCalls int
	findErr   error
}

func newStubAuthorizationStore() *stubAuthorizationStore {
	return &stubAuthorizationStore{records: map[string]core.AuthorizationRecord{}}
}

func (s *stubAuthorizationStore) Create(_ context.Context, record core.AuthorizationRecord) (core.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *stubAuthorizationStore) FindActive(_ context.Context, sender string, role core.Role) (core.AuthorizationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return core.AuthorizationRecord{}, false, s.findErr
	}
	for _, record := range s.records {
		if record.Sender == sender && record.Role == role && record.Active {
			return record, true, nil
		}
	}
	return core.AuthorizationRecord{}, false, nil
}

func (s *stubAuthorizationStore) FindBySender(_ context.Context, sender string) ([]core.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuthorizationRecord
	for _, record := range s.records {
		if record.Sender == sender {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubAuthorizationStore) SetActive(_ context.Context, sender string, active bool) (int, error) {
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

func (s *stubAuthorizationStore) Delete(_ context.Context, sender string) (int, error) {
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

func newTestAuthorizationCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedAuthorizationStore_FindActive_MissFetchThenHit(t *testing.T) {
	base := newStubAuthorizationStore()
	base.records["grant_1"] = core.AuthorizationRecord{
		ID: "grant_1", Sender: "+15550000002", Role: core.RoleAdmin, Active: true,
	}
	store, err := NewCachedAuthorizationStore(base, newTestAuthorizationCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	ctx := context.Background()
	if _, found, err := store.FindActive(ctx, "+15550000002", core.RoleAdmin); err != nil || !found {
		t.Fatalf("first find: found=%v err=%v", found, err)
	}
	if base.findCalls != 1 {
		t.Fatalf("expected one base read, got %d", base.findCalls)
	}

	if _, found, err := store.FindActive(ctx, "+15550000002", core.RoleAdmin); err != nil || !found {
		t.Fatalf("second find: found=%v err=%v", found, err)
	}
	if base.findCalls != 1 {
		t.Fatalf("expected cache hit on second read, base calls=%d", base.findCalls)
	}
}

func TestCachedAuthorizationStore_WritesInvalidate(t *testing.T) {
	base := newStubAuthorizationStore()
	store, err := NewCachedAuthorizationStore(base, newTestAuthorizationCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	// Prime a negative entry: no grant yet.
	if _, found, err := store.FindActive(ctx, "+15550000003", core.RoleStaff); err != nil || found {
		t.Fatalf("expected no grant, found=%v err=%v", found, err)
	}

	if _, err := store.Create(ctx, core.AuthorizationRecord{
		ID: "grant_2", Sender: "+15550000003", Role: core.RoleStaff, Active: true,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The create must evict the stale negative entry.
	if _, found, err := store.FindActive(ctx, "+15550000003", core.RoleStaff); err != nil || !found {
		t.Fatalf("expected grant after create, found=%v err=%v", found, err)
	}

	if _, err := store.SetActive(ctx, "+15550000003", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, found, _ := store.FindActive(ctx, "+15550000003", core.RoleStaff); found {
		t.Fatalf("deactivated grant must not be served from cache")
	}

	if _, err := store.Delete(ctx, "+15550000003"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, err := store.FindBySender(ctx, "+15550000003")
	if err != nil {
		t.Fatalf("find by sender: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records after delete, got %d", len(records))
	}
}

func TestCachedAuthorizationStore_PropagatesBaseErrors(t *testing.T) {
	base := newStubAuthorizationStore()
	base.findErr = errors.New("db offline")
	store, err := NewCachedAuthorizationStore(base, newTestAuthorizationCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	if _, _, err := store.FindActive(context.Background(), "+15550000002", core.RoleAdmin); err == nil {
		t.Fatalf("expected base error propagation")
	}
}

func TestAuthorizationCacheKey_Contract(t *testing.T) {
	key, err := AuthorizationCacheKey("+15550000002", core.RoleAdmin)
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "go-concierge::authorization::v1::+15550000002::admin"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := AuthorizationCacheKey("", core.RoleAdmin); err == nil {
		t.Fatalf("blank sender must be rejected")
	}
}
