package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-concierge/core"
)

const authorizationCacheKeyPrefix = "go-concierge::authorization::v1"

// CachedAuthorizationStore serves FindActive reads through a cache. Every
// write path invalidates the affected sender's cached entries, since
// authorization checks run on each restricted dispatch.
type CachedAuthorizationStore struct {
	base  core.AuthorizationStore
	cache repositorycache.CacheService
}

func NewCachedAuthorizationStore(
	base core.AuthorizationStore,
	cacheService repositorycache.CacheService,
) (*CachedAuthorizationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base authorization store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: authorization cache service is required")
	}
	return &CachedAuthorizationStore{base: base, cache: cacheService}, nil
}

// AuthorizationCacheKey returns the deterministic cache key for an active
// grant lookup: go-concierge::authorization::v1::<sender>::<role> with each
// segment URL-path escaped.
func AuthorizationCacheKey(sender string, role core.Role) (string, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "", fmt.Errorf("sqlstore: sender is required")
	}
	if strings.TrimSpace(string(role)) == "" {
		return "", fmt.Errorf("sqlstore: role is required")
	}
	segments := []string{
		url.PathEscape(sender),
		url.PathEscape(string(role)),
	}
	return strings.Join(append([]string{authorizationCacheKeyPrefix}, segments...), "::"), nil
}

type cachedActiveGrant struct {
	Record core.AuthorizationRecord
	Found  bool
}

func (s *CachedAuthorizationStore) FindActive(ctx context.Context, sender string, role core.Role) (core.AuthorizationRecord, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AuthorizationRecord{}, false, fmt.Errorf("sqlstore: cached authorization store is not configured")
	}
	cacheKey, err := AuthorizationCacheKey(sender, role)
	if err != nil {
		return core.AuthorizationRecord{}, false, err
	}

	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedActiveGrant, error) {
		record, found, fetchErr := s.base.FindActive(ctx, sender, role)
		if fetchErr != nil {
			return cachedActiveGrant{}, fetchErr
		}
		return cachedActiveGrant{Record: record, Found: found}, nil
	})
	if err != nil {
		return core.AuthorizationRecord{}, false, err
	}
	return entry.Record, entry.Found, nil
}

func (s *CachedAuthorizationStore) Create(ctx context.Context, record core.AuthorizationRecord) (core.AuthorizationRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AuthorizationRecord{}, fmt.Errorf("sqlstore: cached authorization store is not configured")
	}
	created, err := s.base.Create(ctx, record)
	if err != nil {
		return core.AuthorizationRecord{}, err
	}
	if err := s.invalidateSender(ctx, created.Sender); err != nil {
		return core.AuthorizationRecord{}, err
	}
	return created, nil
}

func (s *CachedAuthorizationStore) FindBySender(ctx context.Context, sender string) ([]core.AuthorizationRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached authorization store is not configured")
	}
	return s.base.FindBySender(ctx, sender)
}

func (s *CachedAuthorizationStore) SetActive(ctx context.Context, sender string, active bool) (int, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached authorization store is not configured")
	}
	updated, err := s.base.SetActive(ctx, sender, active)
	if err != nil {
		return 0, err
	}
	if err := s.invalidateSender(ctx, sender); err != nil {
		return 0, err
	}
	return updated, nil
}

func (s *CachedAuthorizationStore) Delete(ctx context.Context, sender string) (int, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached authorization store is not configured")
	}
	removed, err := s.base.Delete(ctx, sender)
	if err != nil {
		return 0, err
	}
	if err := s.invalidateSender(ctx, sender); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *CachedAuthorizationStore) invalidateSender(ctx context.Context, sender string) error {
	for _, role := range core.RolesByPrivilege() {
		cacheKey, err := AuthorizationCacheKey(sender, role)
		if err != nil {
			return err
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

var _ core.AuthorizationStore = (*CachedAuthorizationStore)(nil)
