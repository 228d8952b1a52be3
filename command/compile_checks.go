package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[GrantAccessMessage]     = (*GrantAccessCommand)(nil)
	_ gocmd.Commander[RevokeAccessMessage]    = (*RevokeAccessCommand)(nil)
	_ gocmd.Commander[SetAccessActiveMessage] = (*SetAccessActiveCommand)(nil)
)
