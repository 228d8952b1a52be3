package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-concierge/core"
)

var (
	_ gocmd.Querier[ResolveRoleMessage, core.Role]                 = (*ResolveRoleQuery)(nil)
	_ gocmd.Querier[CheckAccessMessage, bool]                      = (*CheckAccessQuery)(nil)
	_ gocmd.Querier[ListGrantsMessage, []core.AuthorizationRecord] = (*ListGrantsQuery)(nil)
)
