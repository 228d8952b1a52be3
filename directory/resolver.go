package directory

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/core"
)

// Authorizer is the read side of the directory the resolver depends on.
type Authorizer interface {
	IsAuthorized(ctx context.Context, sender string, role core.Role) (bool, error)
}

// Resolver maps a sender to the most privileged role it holds. Lookup
// failures degrade to the open role, never to an elevated one.
type Resolver struct {
	authorizer Authorizer
	logger     core.Logger
}

func NewResolver(authorizer Authorizer, logger core.Logger) (*Resolver, error) {
	if authorizer == nil {
		return nil, fmt.Errorf("directory: authorizer is required")
	}
	return &Resolver{
		authorizer: authorizer,
		logger:     glog.Ensure(logger),
	}, nil
}

// Resolve walks the closed role set from highest privilege down and returns
// the first role the sender is authorized for, falling back to the open
// role. A failed lookup for one role logs and continues downward.
func (r *Resolver) Resolve(ctx context.Context, sender string) core.Role {
	if r == nil || r.authorizer == nil {
		return core.DefaultRole
	}
	for _, role := range core.RolesByPrivilege() {
		if !role.Restricted() {
			break
		}
		authorized, err := r.authorizer.IsAuthorized(ctx, sender, role)
		if err != nil {
			r.logger.Error("role lookup failed, degrading",
				"sender", core.NormalizeSenderID(sender),
				"role", string(role),
				"error", err.Error(),
			)
			continue
		}
		if authorized {
			return role
		}
	}
	return core.DefaultRole
}
