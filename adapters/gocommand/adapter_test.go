package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	"github.com/goliatone/go-concierge/adapters/gojob"
	conciergecmd "github.com/goliatone/go-concierge/command"
	"github.com/goliatone/go-concierge/core"
	conciergequery "github.com/goliatone/go-concierge/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "concierge.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "concierge.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "concierge.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "concierge.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

type stubDirectoryService struct {
	granted []string
}

func (s *stubDirectoryService) Grant(_ context.Context, sender string, role core.Role, grantedBy string) (core.AuthorizationRecord, error) {
	s.granted = append(s.granted, sender)
	return core.AuthorizationRecord{Sender: sender, Role: role, Active: true, GrantedBy: grantedBy}, nil
}

func (s *stubDirectoryService) Revoke(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubDirectoryService) SetActive(context.Context, string, bool) (bool, error) {
	return true, nil
}

func (s *stubDirectoryService) IsAuthorized(_ context.Context, sender string, _ core.Role) (bool, error) {
	for _, granted := range s.granted {
		if granted == sender {
			return true, nil
		}
	}
	return false, nil
}

func TestSubscribeDirectoryRoutesMessages(t *testing.T) {
	service := &stubDirectoryService{}
	adapter := NewRegistryAdapter(command.NewRegistry())

	subscriptions, err := SubscribeDirectory(adapter,
		DirectoryCommands{Grant: conciergecmd.NewGrantAccessCommand(service)},
		DirectoryQueries{CheckAccess: conciergequery.NewCheckAccessQuery(service)},
	)
	if err != nil {
		t.Fatalf("subscribe directory: %v", err)
	}
	defer subscriptions.Unsubscribe()

	ctx := context.Background()
	err = Dispatch(ctx, conciergecmd.GrantAccessMessage{
		Sender:    "+15550000007",
		Role:      "staff",
		GrantedBy: "ops",
	})
	if err != nil {
		t.Fatalf("dispatch grant: %v", err)
	}
	if len(service.granted) != 1 || service.granted[0] != "+15550000007" {
		t.Fatalf("expected grant to reach the service, got %v", service.granted)
	}

	authorized, err := Query[conciergequery.CheckAccessMessage, bool](ctx, conciergequery.CheckAccessMessage{
		Sender: "+15550000007",
		Role:   "staff",
	})
	if err != nil {
		t.Fatalf("query access: %v", err)
	}
	if !authorized {
		t.Fatalf("expected granted sender to be authorized")
	}
}

func TestWireDeliveryQueueRegistersResolver(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	if err := WireDeliveryQueue(adapter, jobqueuecommand.NewRegistry()); err != nil {
		t.Fatalf("wire delivery queue: %v", err)
	}
	if !adapter.HasResolver(gojob.JobIDDeliveryDispatch) {
		t.Fatalf("expected the delivery dispatch resolver to be registered")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("concierge.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}
