// Package dispatch orchestrates the envelope lifecycle: role resolution,
// authorization, handler invocation, audit recording, and delivery.
package dispatch

import (
	"fmt"

	"github.com/goliatone/go-concierge/core"
)

// Registry binds the closed role set to handlers at construction time. Every
// role must have a handler; lookup after that cannot fail.
type Registry struct {
	handlers map[core.Role]core.Handler
}

func NewRegistry(handlers map[core.Role]core.Handler) (*Registry, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("dispatch: at least one handler is required")
	}
	bound := make(map[core.Role]core.Handler, len(handlers))
	for role, handler := range handlers {
		parsed, err := core.ParseRole(string(role))
		if err != nil {
			return nil, err
		}
		if handler == nil {
			return nil, fmt.Errorf("dispatch: handler for role %q is nil", role)
		}
		bound[parsed] = handler
	}
	for _, role := range core.RolesByPrivilege() {
		if _, ok := bound[role]; !ok {
			return nil, fmt.Errorf("dispatch: role %q has no handler", role)
		}
	}
	return &Registry{handlers: bound}, nil
}

func (r *Registry) Handler(role core.Role) (core.Handler, bool) {
	if r == nil {
		return nil, false
	}
	handler, ok := r.handlers[role]
	return handler, ok
}
