// Package command exposes the directory mutations behind go-command message
// contracts so transports and queue workers share one dispatch path.
package command

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-concierge/core"
)

// MutatingService is the write surface the commands delegate to. The
// directory satisfies it directly.
type MutatingService interface {
	Grant(ctx context.Context, sender string, role core.Role, grantedBy string) (core.AuthorizationRecord, error)
	Revoke(ctx context.Context, sender string) (bool, error)
	SetActive(ctx context.Context, sender string, active bool) (bool, error)
}

type GrantAccessCommand struct {
	service MutatingService
}

func NewGrantAccessCommand(service MutatingService) *GrantAccessCommand {
	return &GrantAccessCommand{service: service}
}

func (c *GrantAccessCommand) Execute(ctx context.Context, msg GrantAccessMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: grant service is required")
	}
	role, err := core.ParseRole(msg.Role)
	if err != nil {
		return commandWrapValidation(err, "command: role is not recognized")
	}
	record, err := c.service.Grant(ctx, msg.Sender, role, msg.GrantedBy)
	if err != nil {
		return err
	}
	storeResult(ctx, record)
	return nil
}

type RevokeAccessCommand struct {
	service MutatingService
}

func NewRevokeAccessCommand(service MutatingService) *RevokeAccessCommand {
	return &RevokeAccessCommand{service: service}
}

func (c *RevokeAccessCommand) Execute(ctx context.Context, msg RevokeAccessMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke service is required")
	}
	removed, err := c.service.Revoke(ctx, msg.Sender)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("command: revoke %s: %w", core.NormalizeSenderID(msg.Sender), core.ErrGrantNotFound)
	}
	return nil
}

type SetAccessActiveCommand struct {
	service MutatingService
}

func NewSetAccessActiveCommand(service MutatingService) *SetAccessActiveCommand {
	return &SetAccessActiveCommand{service: service}
}

func (c *SetAccessActiveCommand) Execute(ctx context.Context, msg SetAccessActiveMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: set-active service is required")
	}
	updated, err := c.service.SetActive(ctx, msg.Sender, msg.Active)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("command: set active %s: %w", core.NormalizeSenderID(msg.Sender), core.ErrGrantNotFound)
	}
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
