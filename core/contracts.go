package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// AuthorizationStore persists grants. Implementations must be safe for
// concurrent use; the pipeline never holds in-process locks across calls.
// Sender values passed in are already normalized by the directory.
type AuthorizationStore interface {
	Create(ctx context.Context, record AuthorizationRecord) (AuthorizationRecord, error)
	FindActive(ctx context.Context, sender string, role Role) (AuthorizationRecord, bool, error)
	FindBySender(ctx context.Context, sender string) ([]AuthorizationRecord, error)
	SetActive(ctx context.Context, sender string, active bool) (int, error)
	Delete(ctx context.Context, sender string) (int, error)
}

// AuditStore appends events to the immutable trail. No query surface is part
// of the core contract; reporting is a collaborator concern.
type AuditStore interface {
	Append(ctx context.Context, event AuditEvent) error
}

// DeliveryOutboxStore backs the retrying delivery executor. Claimed actions
// move to processing; Ack marks delivered, Retry reschedules or dead-letters
// when nextAttemptAt is the zero time.
type DeliveryOutboxStore interface {
	Enqueue(ctx context.Context, action DeliveryAction) error
	ClaimBatch(ctx context.Context, limit int) ([]DeliveryAction, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error
}

// Handler is the per-role reply generator behind the registry boundary. It
// may fail; the dispatcher contains every failure. It must be safe to invoke
// at most once per envelope and must not re-check authorization.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) (Response, error)
}

type HandlerFunc func(ctx context.Context, envelope Envelope) (Response, error)

func (f HandlerFunc) Handle(ctx context.Context, envelope Envelope) (Response, error) {
	return f(ctx, envelope)
}

// DeliveryExecutor turns a response's action tags into outbound side
// effects. Failures are the executor's to log; they never re-enter the
// dispatcher.
type DeliveryExecutor interface {
	Execute(ctx context.Context, sender string, response Response) error
}

// StoreProvider is what a persistence factory yields once stores are built.
type StoreProvider interface {
	AuthorizationStore() AuthorizationStore
	AuditStore() AuditStore
	DeliveryOutboxStore() DeliveryOutboxStore
}
