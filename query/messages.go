package query

import (
	"github.com/goliatone/go-concierge/core"
)

const (
	TypeResolveRole = "concierge.query.role.resolve"
	TypeCheckAccess = "concierge.query.access.check"
	TypeListGrants  = "concierge.query.access.list"
)

// ResolveRoleMessage asks for the most privileged active role a sender holds.
type ResolveRoleMessage struct {
	Sender string
}

func (ResolveRoleMessage) Type() string { return TypeResolveRole }

func (m ResolveRoleMessage) Validate() error {
	if core.NormalizeSenderID(m.Sender) == "" {
		return queryValidationError("sender", "sender identifier is required")
	}
	return nil
}

// CheckAccessMessage asks whether a sender may act under a specific role.
type CheckAccessMessage struct {
	Sender string
	Role   string
}

func (CheckAccessMessage) Type() string { return TypeCheckAccess }

func (m CheckAccessMessage) Validate() error {
	if core.NormalizeSenderID(m.Sender) == "" {
		return queryValidationError("sender", "sender identifier is required")
	}
	if _, err := core.ParseRole(m.Role); err != nil {
		return queryWrapValidation(err, "query: role is not recognized")
	}
	return nil
}

// ListGrantsMessage asks for every grant held by a sender, active or not.
type ListGrantsMessage struct {
	Sender string
}

func (ListGrantsMessage) Type() string { return TypeListGrants }

func (m ListGrantsMessage) Validate() error {
	if core.NormalizeSenderID(m.Sender) == "" {
		return queryValidationError("sender", "sender identifier is required")
	}
	return nil
}
