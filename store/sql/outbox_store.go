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

type OutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryActionRecord]
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryActionRecord](db, deliveryActionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo}, nil
}

func (s *OutboxStore) Enqueue(ctx context.Context, action core.DeliveryAction) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if strings.TrimSpace(action.Sender) == "" {
		return fmt.Errorf("sqlstore: outbox sender is required")
	}
	if strings.TrimSpace(action.Tag) == "" {
		return fmt.Errorf("sqlstore: outbox action tag is required")
	}

	id := strings.TrimSpace(action.ID)
	if id == "" {
		id = uuid.NewString()
	}
	status := string(action.Status)
	if strings.TrimSpace(status) == "" {
		status = string(core.DeliveryStatusPending)
	}
	now := time.Now().UTC()
	record := &deliveryActionRecord{
		ID:        id,
		Sender:    strings.TrimSpace(action.Sender),
		Tag:       strings.TrimSpace(action.Tag),
		Payload:   copyAnyMap(action.Payload),
		Status:    status,
		Attempts:  action.Attempts,
		LastError: "",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if action.NextAttemptAt != nil {
		next := action.NextAttemptAt.UTC()
		record.NextAttemptAt = &next
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.DeliveryAction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	var records []deliveryActionRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM concierge_delivery_outbox
	WHERE status = ?
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY created_at ASC
	LIMIT ?
)
UPDATE concierge_delivery_outbox
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	sender,
	tag,
	payload,
	status,
	attempts,
	last_error,
	next_attempt_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.DeliveryStatusPending),
			now,
			limit,
			string(core.DeliveryStatusProcessing),
			now,
			string(core.DeliveryStatusPending),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	actions := make([]core.DeliveryAction, 0, len(records))
	for _, record := range records {
		actions = append(actions, record.toDomain())
	}
	return actions, nil
}

func (s *OutboxStore) Ack(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: action id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryActionRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusDelivered)).
		Set("last_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *OutboxStore) Retry(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: action id is required")
	}
	status := string(core.DeliveryStatusPending)
	var next *time.Time
	if !nextAttemptAt.IsZero() {
		nextValue := nextAttemptAt.UTC()
		next = &nextValue
	} else {
		status = string(core.DeliveryStatusDead)
	}

	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryActionRecord)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *deliveryActionRecord) toDomain() core.DeliveryAction {
	if r == nil {
		return core.DeliveryAction{}
	}
	action := core.DeliveryAction{
		ID:        strings.TrimSpace(r.ID),
		Sender:    strings.TrimSpace(r.Sender),
		Tag:       strings.TrimSpace(r.Tag),
		Payload:   copyAnyMap(r.Payload),
		Status:    core.DeliveryStatus(strings.TrimSpace(r.Status)),
		Attempts:  r.Attempts,
		LastError: strings.TrimSpace(r.LastError),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.NextAttemptAt != nil {
		next := r.NextAttemptAt.UTC()
		action.NextAttemptAt = &next
	}
	return action
}
