// Package audit appends lifecycle events to an append-only trail. Recording
// is fire-and-forget: a failing sink never fails the caller.
package audit

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-concierge/core"
)

type Recorder struct {
	store  core.AuditStore
	logger core.Logger
	now    func() time.Time
}

type Option func(*Recorder)

func WithLogger(logger core.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRecorder(store core.AuditStore, options ...Option) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("audit: store is required")
	}
	recorder := &Recorder{
		store:  store,
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		if option != nil {
			option(recorder)
		}
	}
	recorder.logger = glog.Ensure(recorder.logger)
	return recorder, nil
}

// Received records the arrival of an envelope before any handler runs.
func (r *Recorder) Received(ctx context.Context, role core.Role, env core.Envelope) {
	r.append(ctx, core.AuditEvent{
		Role:   role,
		Kind:   core.AuditKindReceived,
		Sender: env.Sender,
		Detail: map[string]any{
			"body":      env.Body,
			"media_url": env.MediaURL,
		},
	})
}

// Responded records a successful handler response.
func (r *Recorder) Responded(ctx context.Context, role core.Role, env core.Envelope, response core.Response) {
	r.append(ctx, core.AuditEvent{
		Role:   role,
		Kind:   core.AuditKindResponded,
		Sender: env.Sender,
		Detail: map[string]any{
			"reply":   response.Reply,
			"actions": response.Actions,
		},
	})
}

// Error records a rejection or handler failure.
func (r *Recorder) Error(ctx context.Context, role core.Role, sender, reason string, cause error) {
	detail := map[string]any{"reason": reason}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	r.append(ctx, core.AuditEvent{
		Role:   role,
		Kind:   core.AuditKindError,
		Sender: sender,
		Detail: detail,
	})
}

func (r *Recorder) append(ctx context.Context, event core.AuditEvent) {
	if r == nil || r.store == nil {
		return
	}
	event.ID = uuid.NewString()
	event.CreatedAt = r.now()
	if err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("audit append failed",
			"kind", string(event.Kind),
			"sender", event.Sender,
			"error", err.Error(),
		)
	}
}
