package command

import (
	"strings"

	"github.com/goliatone/go-concierge/core"
)

const (
	TypeGrantAccess     = "concierge.command.access.grant"
	TypeRevokeAccess    = "concierge.command.access.revoke"
	TypeSetAccessActive = "concierge.command.access.set_active"
)

// GrantAccessMessage creates an active authorization for a sender. Role must
// be one of the restricted roles; the open role needs no grant.
type GrantAccessMessage struct {
	Sender    string
	Role      string
	GrantedBy string
}

func (GrantAccessMessage) Type() string { return TypeGrantAccess }

func (m GrantAccessMessage) Validate() error {
	if core.NormalizeSenderID(m.Sender) == "" {
		return commandValidationError("sender", "sender identifier is required")
	}
	role, err := core.ParseRole(m.Role)
	if err != nil {
		return commandWrapValidation(err, "command: role is not recognized")
	}
	if role == core.DefaultRole {
		return commandValidationError("role", "open role does not take grants")
	}
	if strings.TrimSpace(m.GrantedBy) == "" {
		return commandValidationError("granted_by", "granting principal is required")
	}
	return nil
}

// RevokeAccessMessage hard-deletes every grant held by the sender.
type RevokeAccessMessage struct {
	Sender string
}

func (RevokeAccessMessage) Type() string { return TypeRevokeAccess }

func (m RevokeAccessMessage) Validate() error {
	if core.NormalizeSenderID(m.Sender) == "" {
		return commandValidationError("sender", "sender identifier is required")
	}
	return nil
}

// SetAccessActiveMessage soft-toggles every grant held by the sender without
// removing the trail of who granted what.
type SetAccessActiveMessage struct {
	Sender string
	Active bool
}

func (SetAccessActiveMessage) Type() string { return TypeSetAccessActive }

func (m SetAccessActiveMessage) Validate() error {
	if core.NormalizeSenderID(m.Sender) == "" {
		return commandValidationError("sender", "sender identifier is required")
	}
	return nil
}
