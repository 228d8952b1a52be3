package concierge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	concierge "github.com/goliatone/go-concierge"
	"github.com/goliatone/go-concierge/adapters/gocommand"
	"github.com/goliatone/go-concierge/adapters/gojob"
	"github.com/goliatone/go-concierge/audit"
	"github.com/goliatone/go-concierge/command"
	"github.com/goliatone/go-concierge/core"
	"github.com/goliatone/go-concierge/delivery"
	"github.com/goliatone/go-concierge/directory"
	"github.com/goliatone/go-concierge/query"
)

type memoryStores struct {
	auth   *directory.MemoryAuthorizationStore
	events *audit.MemoryAuditStore
	outbox *delivery.MemoryOutboxStore
}

func newMemoryStores() *memoryStores {
	return &memoryStores{
		auth:   directory.NewMemoryAuthorizationStore(),
		events: audit.NewMemoryAuditStore(),
		outbox: delivery.NewMemoryOutboxStore(),
	}
}

func (s *memoryStores) AuthorizationStore() core.AuthorizationStore { return s.auth }
func (s *memoryStores) AuditStore() core.AuditStore                 { return s.events }
func (s *memoryStores) DeliveryOutboxStore() core.DeliveryOutboxStore {
	return s.outbox
}

type echoHandler struct {
	reply   core.Response
	senders []string
}

func (h *echoHandler) Handle(_ context.Context, env core.Envelope) (core.Response, error) {
	h.senders = append(h.senders, env.Sender)
	return h.reply, nil
}

func defaultHandlers(reply string) map[core.Role]core.Handler {
	handler := &echoHandler{reply: core.Response{Reply: reply}}
	handlers := map[core.Role]core.Handler{}
	for _, role := range core.RolesByPrivilege() {
		handlers[role] = handler
	}
	return handlers
}

func newFacade(t *testing.T, handlers map[core.Role]core.Handler, options ...concierge.FacadeOption) (*concierge.Facade, *memoryStores) {
	t.Helper()
	stores := newMemoryStores()
	facade, err := concierge.New(core.DefaultConfig(), stores, handlers, options...)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	t.Cleanup(facade.Stop)
	return facade, stores
}

func TestFacadeServesDispatchOverHTTP(t *testing.T) {
	facade, stores := newFacade(t, defaultHandlers("hello from the pipeline"))

	payload, _ := json.Marshal(map[string]any{"sender": "+15550000000", "message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/agent/customer", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	facade.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	events := stores.events.Events()
	if len(events) != 2 || events[1].Kind != core.AuditKindResponded {
		t.Fatalf("expected received and responded events, got %+v", events)
	}
}

func TestFacadeRegistersDirectoryMessages(t *testing.T) {
	facade, _ := newFacade(t, defaultHandlers("ok"))

	ctx := context.Background()
	err := gocommand.Dispatch(ctx, command.GrantAccessMessage{
		Sender:    "+1 (555) 000-0042",
		Role:      "staff",
		GrantedBy: "ops@example.test",
	})
	if err != nil {
		t.Fatalf("dispatch grant: %v", err)
	}

	authorized, err := gocommand.Query[query.CheckAccessMessage, bool](ctx, query.CheckAccessMessage{
		Sender: "+15550000042",
		Role:   "staff",
	})
	if err != nil {
		t.Fatalf("query access: %v", err)
	}
	if !authorized {
		t.Fatalf("granted sender must be authorized")
	}

	role, err := facade.Queries().ResolveRole.Query(ctx, query.ResolveRoleMessage{Sender: "+15550000042"})
	if err != nil {
		t.Fatalf("resolve role: %v", err)
	}
	if role != core.RoleStaff {
		t.Fatalf("expected staff role, got %q", role)
	}
}

type stubEnqueuer struct {
	messages []*job.ExecutionMessage
}

func (s *stubEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.messages = append(s.messages, msg)
	return nil
}

type stubDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubDelivery) Message() *job.ExecutionMessage { return s.msg }

func (s *stubDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

func TestFacadeHandsOutboxActionsToQueue(t *testing.T) {
	handler := &echoHandler{reply: core.Response{
		Reply:   "notifying",
		Actions: []string{core.ActionNotifyEmail},
	}}
	facade, stores := newFacade(t, map[core.Role]core.Handler{
		core.RoleCustomer: handler,
		core.RoleStaff:    handler,
		core.RoleAdmin:    handler,
	})

	ctx := context.Background()
	if _, err := facade.Dispatcher().Dispatch(ctx, core.RoleCustomer, core.Envelope{Sender: "+15550000000", Body: "hi"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	enqueuer := &stubEnqueuer{}
	enqueued, err := facade.EnqueueDeliveries(ctx, enqueuer, 10)
	if err != nil {
		t.Fatalf("enqueue deliveries: %v", err)
	}
	if enqueued != 1 || len(enqueuer.messages) != 1 {
		t.Fatalf("expected one queued action, got %d", enqueued)
	}

	actions := stores.outbox.Snapshot()
	if len(actions) != 1 || actions[0].Status != core.DeliveryStatusDelivered {
		t.Fatalf("expected the handed-off action to be acked, got %+v", actions)
	}

	queued := &stubDelivery{msg: enqueuer.messages[0]}
	if err := facade.ProcessQueuedDelivery(ctx, queued); err != nil {
		t.Fatalf("process queued delivery: %v", err)
	}
	if !queued.acked {
		t.Fatalf("expected the queue delivery to be acked")
	}
}

func TestFacadeNacksFailedQueuedDelivery(t *testing.T) {
	facade, _ := newFacade(t, defaultHandlers("ok"))

	// No channel sender is configured, so a channel action cannot send.
	queued := &stubDelivery{msg: &job.ExecutionMessage{
		JobID: gojob.JobIDDeliveryDispatch,
		Parameters: map[string]any{
			"action_id": "act_1",
			"sender":    "+15550000000",
			"tag":       core.ActionNotifyChannel,
			"payload":   map[string]any{"reply": "hi"},
			"attempts":  0,
		},
	}}

	if err := facade.ProcessQueuedDelivery(context.Background(), queued); err == nil {
		t.Fatalf("expected a delivery failure")
	}
	if queued.acked {
		t.Fatalf("failed delivery must not ack")
	}
	if !queued.nacked || !queued.nackOpts.Requeue {
		t.Fatalf("expected a requeueing nack, got %+v", queued.nackOpts)
	}
}
