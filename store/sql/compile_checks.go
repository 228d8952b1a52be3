package sqlstore

import "github.com/goliatone/go-concierge/core"

var (
	_ core.AuthorizationStore  = (*AuthorizationStore)(nil)
	_ core.AuditStore          = (*AuditStore)(nil)
	_ core.DeliveryOutboxStore = (*OutboxStore)(nil)
	_ core.StoreProvider       = (*RepositoryFactory)(nil)
)
