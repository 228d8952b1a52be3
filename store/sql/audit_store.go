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

// AuditStore appends events to the immutable trail. There is no update or
// delete surface on purpose.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEventRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEventRecord](db, auditEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Append(ctx context.Context, event core.AuditEvent) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(string(event.Kind)) == "" {
		return fmt.Errorf("sqlstore: audit event kind is required")
	}

	id := strings.TrimSpace(event.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.repo.Create(ctx, &auditEventRecord{
		ID:        id,
		Role:      string(event.Role),
		Kind:      string(event.Kind),
		Sender:    strings.TrimSpace(event.Sender),
		Detail:    copyAnyMap(event.Detail),
		CreatedAt: createdAt,
	})
	return err
}
