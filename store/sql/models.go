package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type authorizationRecord struct {
	bun.BaseModel `bun:"table:concierge_authorizations,alias:ca"`

	ID        string    `bun:"id,pk"`
	Sender    string    `bun:"sender,notnull"`
	Role      string    `bun:"role,notnull"`
	Active    bool      `bun:"active,notnull"`
	GrantedBy string    `bun:"granted_by,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditEventRecord struct {
	bun.BaseModel `bun:"table:concierge_audit_events,alias:cae"`

	ID        string         `bun:"id,pk"`
	Role      string         `bun:"role,notnull"`
	Kind      string         `bun:"kind,notnull"`
	Sender    string         `bun:"sender,notnull"`
	Detail    map[string]any `bun:"detail,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryActionRecord struct {
	bun.BaseModel `bun:"table:concierge_delivery_outbox,alias:cdo"`

	ID            string         `bun:"id,pk"`
	Sender        string         `bun:"sender,notnull"`
	Tag           string         `bun:"tag,notnull"`
	Payload       map[string]any `bun:"payload,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	LastError     string         `bun:"last_error,notnull"`
	NextAttemptAt *time.Time     `bun:"next_attempt_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
