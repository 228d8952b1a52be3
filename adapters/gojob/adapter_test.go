package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-concierge/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestActionMappingRoundTrip(t *testing.T) {
	original := core.DeliveryAction{
		ID:       "act_1",
		Sender:   "+15550000000",
		Tag:      core.ActionNotifyChannel,
		Payload:  map[string]any{"reply": "pong"},
		Attempts: 2,
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	if converted.JobID != JobIDDeliveryDispatch {
		t.Fatalf("expected dispatch job id, got %q", converted.JobID)
	}
	if converted.IdempotencyKey != "act_1" {
		t.Fatalf("expected action id as idempotency key, got %q", converted.IdempotencyKey)
	}

	roundTrip, err := FromExecutionMessage(converted)
	if err != nil {
		t.Fatalf("from execution message: %v", err)
	}
	if roundTrip.ID != original.ID || roundTrip.Sender != original.Sender || roundTrip.Tag != original.Tag {
		t.Fatalf("unexpected round trip: %+v", roundTrip)
	}
	if roundTrip.Attempts != 2 {
		t.Fatalf("expected attempts to survive mapping, got %d", roundTrip.Attempts)
	}
	if roundTrip.Payload["reply"] != "pong" {
		t.Fatalf("expected payload to survive mapping")
	}
}

func TestFromExecutionMessageRejectsForeignJobs(t *testing.T) {
	if _, err := FromExecutionMessage(nil); err == nil {
		t.Fatalf("expected nil message rejection")
	}
	if _, err := FromExecutionMessage(&job.ExecutionMessage{JobID: "other.job"}); err == nil {
		t.Fatalf("expected foreign job id rejection")
	}
	if _, err := FromExecutionMessage(&job.ExecutionMessage{
		JobID:      JobIDDeliveryDispatch,
		Parameters: map[string]any{},
	}); err == nil {
		t.Fatalf("expected missing action id rejection")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	action := core.DeliveryAction{
		ID:      "act_outbox",
		Sender:  "+15550000001",
		Tag:     core.ActionNotifyEmail,
		Payload: map[string]any{"reply": "bye"},
	}
	if err := enqueueAdapter.EnqueueAction(ctx, action); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDDeliveryDispatch {
		t.Fatalf("expected mapped go-job message")
	}

	if err := enqueueAdapter.EnqueueAction(ctx, core.DeliveryAction{}); err == nil {
		t.Fatalf("expected blank action id rejection")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, RetryPolicy{})
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got, err := delivery.Action()
	if err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if got.ID != "act_outbox" || got.Tag != core.ActionNotifyEmail {
		t.Fatalf("expected mapped action, got %+v", got)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: ToExecutionMessage(core.DeliveryAction{ID: "act_retry", Tag: core.ActionNotifyChannel}),
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	if err := adapter.NackForAttempt(ctx, core.DeliveryNackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  "transient",
	}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", rawDelivery.nackOpts.Delay)
	}
	if !rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected message to be requeued before max attempts")
	}

	if err := adapter.NackForAttempt(ctx, core.DeliveryNackOptions{
		Delay:   time.Second,
		Requeue: true,
		Reason:  "still failing",
	}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !rawDelivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestNormalizeAttemptDefaults(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5}

	out := policy.NormalizeAttempt(core.DeliveryNackOptions{Delay: -time.Second}, 1)
	if out.Delay != 0 {
		t.Fatalf("expected negative delay clamped, got %s", out.Delay)
	}
	if !out.Requeue {
		t.Fatalf("expected requeue default when neither requeue nor dead letter is set")
	}

	out = policy.NormalizeAttempt(core.DeliveryNackOptions{Requeue: true, DeadLetter: true}, 1)
	if out.Requeue {
		t.Fatalf("dead letter must win over requeue")
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	hook := &capturingHook{}
	adapter := NewWorkerHookAdapter(hook)

	evt := worker.Event{
		Message:   ToExecutionMessage(core.DeliveryAction{ID: "act_hook", Sender: "+15550000000", Tag: core.ActionNotifyChannel}),
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	}

	adapter.OnRetry(context.Background(), evt)
	if hook.last.Action.ID != "act_hook" {
		t.Fatalf("expected action mapping, got %+v", hook.last.Action)
	}
	if hook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", hook.last.Attempt)
	}
	if hook.last.Delay != 5*time.Second {
		t.Fatalf("expected delay 5s, got %s", hook.last.Delay)
	}
	if hook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected duration mapping")
	}
	if hook.last.StartedAt.IsZero() {
		t.Fatalf("expected started_at mapping")
	}
	if hook.last.Err == nil || hook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	last WorkerEvent
}

func (h *capturingHook) OnStart(context.Context, WorkerEvent)   {}
func (h *capturingHook) OnSuccess(context.Context, WorkerEvent) {}
func (h *capturingHook) OnFailure(context.Context, WorkerEvent) {}
func (h *capturingHook) OnRetry(_ context.Context, event WorkerEvent) {
	h.last = event
}
