// Package gojob bridges the concierge delivery outbox to go-job queue
// contracts so pending actions can be drained by queue workers instead of
// the in-process runner.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-concierge/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDeliveryDispatch = "concierge.delivery.dispatch"
)

// Execution message parameter keys for a delivery action payload.
const (
	paramActionID = "action_id"
	paramSender   = "sender"
	paramTag      = "tag"
	paramPayload  = "payload"
	paramAttempts = "attempts"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.DeliveryNackOptions, attempt int) core.DeliveryNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a claimed delivery action to a go-job message.
// The action ID doubles as the idempotency key so redeliveries collapse.
func ToExecutionMessage(action core.DeliveryAction) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID: JobIDDeliveryDispatch,
		Parameters: map[string]any{
			paramActionID: strings.TrimSpace(action.ID),
			paramSender:   strings.TrimSpace(action.Sender),
			paramTag:      strings.TrimSpace(action.Tag),
			paramPayload:  copyAnyMap(action.Payload),
			paramAttempts: action.Attempts,
		},
		IdempotencyKey: strings.TrimSpace(action.ID),
	}
}

// FromExecutionMessage rebuilds the delivery action carried by a go-job
// message. Messages with a foreign job ID or missing action ID are rejected.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.DeliveryAction, error) {
	if msg == nil {
		return core.DeliveryAction{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDDeliveryDispatch {
		return core.DeliveryAction{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	action := core.DeliveryAction{
		ID:       stringParam(msg.Parameters, paramActionID),
		Sender:   stringParam(msg.Parameters, paramSender),
		Tag:      stringParam(msg.Parameters, paramTag),
		Payload:  mapParam(msg.Parameters, paramPayload),
		Attempts: intParam(msg.Parameters, paramAttempts),
	}
	if action.ID == "" {
		return core.DeliveryAction{}, fmt.Errorf("gojob: action id parameter is required")
	}
	return action, nil
}

// ToNackOptions maps concierge nack options to go-job.
func ToNackOptions(opts core.DeliveryNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// FromNackOptions maps go-job nack options back to the concierge contract.
func FromNackOptions(opts queue.NackOptions) core.DeliveryNackOptions {
	return core.DeliveryNackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

// EnqueueAction publishes a delivery action onto the queue backend.
func (a *EnqueuerAdapter) EnqueueAction(ctx context.Context, action core.DeliveryAction) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(action.ID) == "" {
		return fmt.Errorf("gojob: action id is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(action))
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

// Action decodes the queued delivery action for this receipt.
func (d *DeliveryAdapter) Action() (core.DeliveryAction, error) {
	if d == nil || d.delivery == nil {
		return core.DeliveryAction{}, fmt.Errorf("gojob: delivery is not configured")
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.DeliveryNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.DeliveryNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, ToNackOptions(normalized))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (*DeliveryAdapter, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// WorkerEvent is a queue worker lifecycle event for a delivery action.
type WorkerEvent struct {
	Action    core.DeliveryAction
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// WorkerHook observes delivery dispatch lifecycle transitions.
type WorkerHook interface {
	OnStart(ctx context.Context, event WorkerEvent)
	OnSuccess(ctx context.Context, event WorkerEvent)
	OnFailure(ctx context.Context, event WorkerEvent)
	OnRetry(ctx context.Context, event WorkerEvent)
}

type WorkerHookAdapter struct {
	hook WorkerHook
}

func NewWorkerHookAdapter(hook WorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) WorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	action, _ := FromExecutionMessage(message)
	return WorkerEvent{
		Action:    action,
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func mapParam(params map[string]any, key string) map[string]any {
	value, ok := params[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return copyAnyMap(value)
}

func intParam(params map[string]any, key string) int {
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ worker.Hook = (*WorkerHookAdapter)(nil)
