// Package concierge routes inbound messages to role-scoped handlers behind
// webhook signature verification, per-role access control, and an
// append-only audit trail. The root package re-exports the core contracts so
// consumers can depend on a single import path.
package concierge

import "github.com/goliatone/go-concierge/core"

type Config = core.Config
type HTTPConfig = core.HTTPConfig
type ChannelConfig = core.ChannelConfig
type PaymentsConfig = core.PaymentsConfig
type DispatchConfig = core.DispatchConfig
type DeliveryConfig = core.DeliveryConfig

type Role = core.Role
type Envelope = core.Envelope
type Response = core.Response
type AuthorizationRecord = core.AuthorizationRecord
type AuditEvent = core.AuditEvent
type AuditKind = core.AuditKind
type DeliveryAction = core.DeliveryAction
type DeliveryStatus = core.DeliveryStatus

type Handler = core.Handler
type HandlerFunc = core.HandlerFunc
type AuthorizationStore = core.AuthorizationStore
type AuditStore = core.AuditStore
type DeliveryOutboxStore = core.DeliveryOutboxStore
type DeliveryExecutor = core.DeliveryExecutor
type StoreProvider = core.StoreProvider

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider

const (
	RoleCustomer = core.RoleCustomer
	RoleStaff    = core.RoleStaff
	RoleAdmin    = core.RoleAdmin
	DefaultRole  = core.DefaultRole

	ActionNotifyChannel = core.ActionNotifyChannel
	ActionNotifyEmail   = core.ActionNotifyEmail
)

var (
	ErrInvalidRole      = core.ErrInvalidRole
	ErrRoleReassignment = core.ErrRoleReassignment
	ErrDuplicateGrant   = core.ErrDuplicateGrant
	ErrGrantNotFound    = core.ErrGrantNotFound
	ErrInvalidSignature = core.ErrInvalidSignature
	ErrUnauthorized     = core.ErrUnauthorized
	ErrHandlerFailed    = core.ErrHandlerFailed
)

var (
	ParseRole         = core.ParseRole
	NormalizeSenderID = core.NormalizeSenderID
	MapError          = core.MapError
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
