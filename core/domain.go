package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRole      = errors.New("core: invalid role")
	ErrRoleReassignment = errors.New("core: envelope role is already assigned")
	ErrDuplicateGrant   = errors.New("core: active grant already exists for sender and role")
	ErrGrantNotFound    = errors.New("core: no grant found for sender")
)

// Role is the access-control category a message is routed to. The set is
// closed: handlers are bound to roles at startup, never resolved by ad-hoc
// string matching.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// DefaultRole is the open role granted to every sender without a record.
const DefaultRole = RoleCustomer

func ParseRole(value string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(value)))
	switch role {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

// Restricted reports whether the role requires an active authorization
// record. The open role never does.
func (r Role) Restricted() bool {
	return r != DefaultRole && strings.TrimSpace(string(r)) != ""
}

// RolesByPrivilege returns the closed role set ordered from highest privilege
// down to the open role. Resolution walks this order so a sender holding
// multiple grants lands on the most privileged one.
func RolesByPrivilege() []Role {
	return []Role{RoleAdmin, RoleStaff, RoleCustomer}
}

// NormalizeSenderID canonicalizes a channel address: every character except
// digits and a leading "+" is stripped, and a "+" is prepended when missing.
// All directory reads and writes go through this, so differently formatted
// addresses that normalize identically are the same sender.
func NormalizeSenderID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value) + 1)
	b.WriteByte('+')
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

// Envelope is the normalized representation of one inbound message,
// independent of transport. It lives for a single dispatch; nothing about it
// persists except what the audit trail captures.
type Envelope struct {
	Sender     string
	Body       string
	MediaURL   string
	ReceivedAt time.Time
	Role       Role
}

// AssignRole sets the resolved role exactly once. Reassigning to a different
// role is a programming error and is rejected.
func (e *Envelope) AssignRole(role Role) error {
	if e == nil {
		return fmt.Errorf("core: envelope is nil")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	if e.Role != "" && e.Role != role {
		return fmt.Errorf("%w: %s -> %s", ErrRoleReassignment, e.Role, role)
	}
	e.Role = role
	return nil
}

// AuthorizationRecord is a persisted grant of a role to a sender. Senders
// hold at most one active record per restricted role; the open role needs
// none. Deactivation via Active is the default; hard removal is supported.
type AuthorizationRecord struct {
	ID        string
	Sender    string
	Role      Role
	Active    bool
	GrantedBy string
	CreatedAt time.Time
}

type AuditKind string

const (
	AuditKindReceived  AuditKind = "received"
	AuditKindResponded AuditKind = "responded"
	AuditKindError     AuditKind = "error"
)

// AuditEvent records one pipeline step for one envelope. Events are
// append-only: the core never mutates or deletes them.
type AuditEvent struct {
	ID        string
	Role      Role
	Kind      AuditKind
	Sender    string
	Detail    map[string]any
	CreatedAt time.Time
}

// Response action tags understood by the default delivery executor. Tags are
// advisory requests; the core does not verify delivery.
const (
	ActionNotifyChannel = "notify-via-channel"
	ActionNotifyEmail   = "notify-via-email"
)

// Response is what a handler returns: reply text plus an ordered list of
// side-effect action tags for the delivery executor.
type Response struct {
	Reply   string
	Actions []string
}

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusDead       DeliveryStatus = "dead"
)

// DeliveryAction is one outbox row backing the retrying delivery executor:
// a single advisory side effect requested by a handler response.
type DeliveryAction struct {
	ID            string
	Sender        string
	Tag           string
	Payload       map[string]any
	Status        DeliveryStatus
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryNackOptions describes how a failed delivery attempt should be
// retried when the runner executes under a queue.
type DeliveryNackOptions struct {
	Requeue    bool
	DeadLetter bool
	Delay      time.Duration
	Reason     string
}
