// Package gocommand wraps the go-command registry and dispatcher so the
// concierge directory commands and queries register through one surface.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	"github.com/goliatone/go-concierge/adapters/gojob"
	conciergecmd "github.com/goliatone/go-concierge/command"
	"github.com/goliatone/go-concierge/core"
	conciergequery "github.com/goliatone/go-concierge/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// DirectoryCommands carries the access-directory mutations to register on
// the dispatcher. Nil entries are skipped.
type DirectoryCommands struct {
	Grant     *conciergecmd.GrantAccessCommand
	Revoke    *conciergecmd.RevokeAccessCommand
	SetActive *conciergecmd.SetAccessActiveCommand
}

// DirectoryQueries carries the access-directory reads to register on the
// dispatcher. Nil entries are skipped.
type DirectoryQueries struct {
	ResolveRole *conciergequery.ResolveRoleQuery
	CheckAccess *conciergequery.CheckAccessQuery
	ListGrants  *conciergequery.ListGrantsQuery
}

// DirectorySubscriptions tracks the dispatcher subscriptions created for the
// directory messages so a caller can tear them down.
type DirectorySubscriptions struct {
	subscriptions []commanddispatcher.Subscription
}

func (s *DirectorySubscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, subscription := range s.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

// SubscribeDirectory registers the directory commands and queries with the
// registry and subscribes them on the dispatcher, so consumers can drive the
// directory through message dispatch instead of direct calls.
func SubscribeDirectory(adapter *RegistryAdapter, commands DirectoryCommands, queries DirectoryQueries) (*DirectorySubscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	subs := &DirectorySubscriptions{}
	fail := func(err error) (*DirectorySubscriptions, error) {
		subs.Unsubscribe()
		return nil, err
	}

	if commands.Grant != nil {
		subscription, err := RegisterAndSubscribe[conciergecmd.GrantAccessMessage](adapter, commands.Grant)
		if err != nil {
			return fail(err)
		}
		subs.subscriptions = append(subs.subscriptions, subscription)
	}
	if commands.Revoke != nil {
		subscription, err := RegisterAndSubscribe[conciergecmd.RevokeAccessMessage](adapter, commands.Revoke)
		if err != nil {
			return fail(err)
		}
		subs.subscriptions = append(subs.subscriptions, subscription)
	}
	if commands.SetActive != nil {
		subscription, err := RegisterAndSubscribe[conciergecmd.SetAccessActiveMessage](adapter, commands.SetActive)
		if err != nil {
			return fail(err)
		}
		subs.subscriptions = append(subs.subscriptions, subscription)
	}
	if queries.ResolveRole != nil {
		subscription, err := RegisterAndSubscribeQuery[conciergequery.ResolveRoleMessage, core.Role](adapter, queries.ResolveRole)
		if err != nil {
			return fail(err)
		}
		subs.subscriptions = append(subs.subscriptions, subscription)
	}
	if queries.CheckAccess != nil {
		subscription, err := RegisterAndSubscribeQuery[conciergequery.CheckAccessMessage, bool](adapter, queries.CheckAccess)
		if err != nil {
			return fail(err)
		}
		subs.subscriptions = append(subs.subscriptions, subscription)
	}
	if queries.ListGrants != nil {
		subscription, err := RegisterAndSubscribeQuery[conciergequery.ListGrantsMessage, []core.AuthorizationRecord](adapter, queries.ListGrants)
		if err != nil {
			return fail(err)
		}
		subs.subscriptions = append(subs.subscriptions, subscription)
	}

	return subs, nil
}

// WireDeliveryQueue routes the delivery dispatch job through a go-job queue
// registry so queued outbox actions resolve to their worker.
func WireDeliveryQueue(adapter *RegistryAdapter, queueRegistry *jobqueuecommand.Registry) error {
	return adapter.AddQueueResolver(gojob.JobIDDeliveryDispatch, queueRegistry)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
