// Package sqlstore persists authorization grants, the audit trail, and the
// delivery outbox through bun repositories.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-concierge/core"
)

type AuthorizationStore struct {
	db   *bun.DB
	repo repository.Repository[*authorizationRecord]
}

func NewAuthorizationStore(db *bun.DB) (*AuthorizationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*authorizationRecord](db, authorizationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid authorization repository wiring: %w", err)
		}
	}
	return &AuthorizationStore{db: db, repo: repo}, nil
}

func (s *AuthorizationStore) Create(ctx context.Context, record core.AuthorizationRecord) (core.AuthorizationRecord, error) {
	if s == nil || s.repo == nil {
		return core.AuthorizationRecord{}, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	if strings.TrimSpace(record.Sender) == "" {
		return core.AuthorizationRecord{}, fmt.Errorf("sqlstore: sender is required")
	}
	if strings.TrimSpace(string(record.Role)) == "" {
		return core.AuthorizationRecord{}, fmt.Errorf("sqlstore: role is required")
	}

	id := strings.TrimSpace(record.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := record.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, &authorizationRecord{
		ID:        id,
		Sender:    strings.TrimSpace(record.Sender),
		Role:      string(record.Role),
		Active:    record.Active,
		GrantedBy: strings.TrimSpace(record.GrantedBy),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		return core.AuthorizationRecord{}, err
	}
	return created.toDomain(), nil
}

func (s *AuthorizationStore) FindActive(ctx context.Context, sender string, role core.Role) (core.AuthorizationRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.AuthorizationRecord{}, false, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("sender", "=", strings.TrimSpace(sender)),
		repository.SelectBy("role", "=", string(role)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("active = ?", true)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return core.AuthorizationRecord{}, false, err
	}
	if len(records) == 0 {
		return core.AuthorizationRecord{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *AuthorizationStore) FindBySender(ctx context.Context, sender string) ([]core.AuthorizationRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("sender", "=", strings.TrimSpace(sender)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuthorizationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AuthorizationStore) SetActive(ctx context.Context, sender string, active bool) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return 0, fmt.Errorf("sqlstore: sender is required")
	}
	result, err := s.db.NewUpdate().
		Model((*authorizationRecord)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("sender = ?", sender).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *AuthorizationStore) Delete(ctx context.Context, sender string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return 0, fmt.Errorf("sqlstore: sender is required")
	}
	result, err := s.db.NewDelete().
		Model((*authorizationRecord)(nil)).
		Where("sender = ?", sender).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *authorizationRecord) toDomain() core.AuthorizationRecord {
	if r == nil {
		return core.AuthorizationRecord{}
	}
	return core.AuthorizationRecord{
		ID:        strings.TrimSpace(r.ID),
		Sender:    strings.TrimSpace(r.Sender),
		Role:      core.Role(strings.TrimSpace(r.Role)),
		Active:    r.Active,
		GrantedBy: strings.TrimSpace(r.GrantedBy),
		CreatedAt: r.CreatedAt,
	}
}
