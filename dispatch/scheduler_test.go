package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-concierge/audit"
	"github.com/goliatone/go-concierge/core"
)

type countingHandler struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
}

func (h *countingHandler) Handle(_ context.Context, env core.Envelope) (core.Response, error) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, env.Sender)
	return core.Response{Reply: "ok"}, nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func newTestScheduler(t *testing.T, handler core.Handler, queueSize, workers int) *Scheduler {
	t.Helper()
	handlers := map[core.Role]core.Handler{}
	for _, role := range core.RolesByPrivilege() {
		handlers[role] = handler
	}
	registry, err := NewRegistry(handlers)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	recorder, err := audit.NewRecorder(audit.NewMemoryAuditStore())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	dispatcher, err := New(registry, &spyAuthorizer{}, recorder)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	scheduler, err := NewScheduler(dispatcher, queueSize, workers)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

func TestScheduler_ProcessesEnqueuedEnvelopes(t *testing.T) {
	handler := &countingHandler{}
	scheduler := newTestScheduler(t, handler, 8, 2)

	for i := 0; i < 5; i++ {
		if !scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000000"}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	scheduler.Stop()

	if handler.count() != 5 {
		t.Fatalf("expected 5 dispatches, got %d", handler.count())
	}
}

func TestScheduler_FullQueueRejectsWithoutBlocking(t *testing.T) {
	handler := &countingHandler{block: make(chan struct{})}
	scheduler := newTestScheduler(t, handler, 1, 1)

	// First envelope occupies the worker, second fills the queue.
	scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000001"})

	deadline := time.After(time.Second)
	queued := false
	for !queued {
		select {
		case <-deadline:
			t.Fatalf("queue never accepted the second envelope")
		default:
			queued = scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000002"})
		}
	}

	done := make(chan bool, 1)
	go func() {
		done <- scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000003"})
	}()
	select {
	case accepted := <-done:
		if accepted {
			t.Fatalf("a full queue must reject the envelope")
		}
	case <-time.After(time.Second):
		t.Fatalf("enqueue must not block on a full queue")
	}

	close(handler.block)
	scheduler.Stop()
}

func TestScheduler_ConcurrentEnqueueDuringStop(t *testing.T) {
	// Enqueues racing Stop must resolve to accepted-and-processed or
	// rejected; a send on the closed queue would panic here.
	for i := 0; i < 100; i++ {
		scheduler := newTestScheduler(t, &countingHandler{}, 4, 2)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for k := 0; k < 16; k++ {
					scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000000"})
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			scheduler.Stop()
		}()

		close(start)
		wg.Wait()

		if scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000000"}) {
			t.Fatalf("iteration %d: enqueue after stop must report false", i)
		}
	}
}

func TestScheduler_EnqueueAfterStopRejected(t *testing.T) {
	scheduler := newTestScheduler(t, &countingHandler{}, 4, 1)
	scheduler.Stop()
	if scheduler.Enqueue(core.RoleCustomer, core.Envelope{Sender: "+15550000000"}) {
		t.Fatalf("enqueue after stop must report false")
	}
}
