// Package query exposes the directory read side behind go-command query
// contracts.
package query

import (
	"context"

	"github.com/goliatone/go-concierge/core"
)

// RoleResolver yields the effective role for a sender. The directory
// resolver satisfies it.
type RoleResolver interface {
	Resolve(ctx context.Context, sender string) core.Role
}

// AccessReader answers per-role authorization checks. The directory
// satisfies it.
type AccessReader interface {
	IsAuthorized(ctx context.Context, sender string, role core.Role) (bool, error)
}

// GrantReader lists the raw grant records for a sender.
type GrantReader interface {
	FindBySender(ctx context.Context, sender string) ([]core.AuthorizationRecord, error)
}

type ResolveRoleQuery struct {
	resolver RoleResolver
}

func NewResolveRoleQuery(resolver RoleResolver) *ResolveRoleQuery {
	return &ResolveRoleQuery{resolver: resolver}
}

func (q *ResolveRoleQuery) Query(ctx context.Context, msg ResolveRoleMessage) (core.Role, error) {
	if q == nil || q.resolver == nil {
		return "", queryDependencyError("query: role resolver is required")
	}
	return q.resolver.Resolve(ctx, msg.Sender), nil
}

type CheckAccessQuery struct {
	reader AccessReader
}

func NewCheckAccessQuery(reader AccessReader) *CheckAccessQuery {
	return &CheckAccessQuery{reader: reader}
}

func (q *CheckAccessQuery) Query(ctx context.Context, msg CheckAccessMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: access reader is required")
	}
	role, err := core.ParseRole(msg.Role)
	if err != nil {
		return false, queryWrapValidation(err, "query: role is not recognized")
	}
	return q.reader.IsAuthorized(ctx, msg.Sender, role)
}

type ListGrantsQuery struct {
	reader GrantReader
}

func NewListGrantsQuery(reader GrantReader) *ListGrantsQuery {
	return &ListGrantsQuery{reader: reader}
}

func (q *ListGrantsQuery) Query(ctx context.Context, msg ListGrantsMessage) ([]core.AuthorizationRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: grant reader is required")
	}
	return q.reader.FindBySender(ctx, core.NormalizeSenderID(msg.Sender))
}
