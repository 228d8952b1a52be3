package dispatch

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/audit"
	"github.com/goliatone/go-concierge/core"
)

// Replies returned in place of a handler response. Rejections and failures
// never leak internals to the sender.
const (
	RejectionReply = "You are not authorized to use this service."
	FallbackReply  = "Something went wrong while handling your message. Please try again."
)

// Authorizer is the read side of the access directory the dispatcher
// depends on.
type Authorizer interface {
	IsAuthorized(ctx context.Context, sender string, role core.Role) (bool, error)
}

// Dispatcher runs the envelope state machine: record receipt, authorize,
// invoke the role handler, record the outcome, and hand side effects to the
// delivery executor. Every failure mode resolves to a response.
type Dispatcher struct {
	registry   *Registry
	authorizer Authorizer
	recorder   *audit.Recorder
	executor   core.DeliveryExecutor
	logger     core.Logger
	timeout    time.Duration
}

type Option func(*Dispatcher)

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithExecutor wires the delivery executor that materializes response action
// tags. Without one, actions are advisory only.
func WithExecutor(executor core.DeliveryExecutor) Option {
	return func(d *Dispatcher) {
		d.executor = executor
	}
}

// WithHandlerTimeout bounds a single handler invocation. A timeout follows
// the same path as a handler error.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func New(registry *Registry, authorizer Authorizer, recorder *audit.Recorder, options ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("dispatch: registry is required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("dispatch: authorizer is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("dispatch: audit recorder is required")
	}
	dispatcher := &Dispatcher{
		registry:   registry,
		authorizer: authorizer,
		recorder:   recorder,
		logger:     glog.Nop(),
		timeout:    30 * time.Second,
	}
	for _, option := range options {
		if option != nil {
			option(dispatcher)
		}
	}
	dispatcher.logger = glog.Ensure(dispatcher.logger)
	return dispatcher, nil
}

// Dispatch processes one envelope under the given role. The returned
// response is always usable; the error classifies what happened for callers
// that surface HTTP status codes. A rejection returns the rejection reply
// with an authorization error; a handler failure returns the fallback reply
// with an operation error.
func (d *Dispatcher) Dispatch(ctx context.Context, role core.Role, env core.Envelope) (core.Response, error) {
	if d == nil {
		return core.Response{Reply: FallbackReply}, fmt.Errorf("dispatch: dispatcher is nil")
	}
	parsed, err := core.ParseRole(string(role))
	if err != nil {
		return core.Response{Reply: RejectionReply}, err
	}

	d.recorder.Received(ctx, parsed, env)

	if parsed.Restricted() {
		authorized, err := d.authorizer.IsAuthorized(ctx, env.Sender, parsed)
		if err != nil {
			// Fail closed: an unreadable directory must not grant access.
			d.logger.Error("authorization lookup failed",
				"sender", env.Sender,
				"role", string(parsed),
				"error", err.Error(),
			)
			authorized = false
		}
		if !authorized {
			d.recorder.Error(ctx, parsed, env.Sender, "not authorized", err)
			return core.Response{Reply: RejectionReply}, &core.UnauthorizedError{Sender: env.Sender, Role: parsed}
		}
	}

	if err := env.AssignRole(parsed); err != nil {
		d.recorder.Error(ctx, parsed, env.Sender, "role assignment failed", err)
		return core.Response{Reply: FallbackReply}, err
	}

	handler, ok := d.registry.Handler(parsed)
	if !ok {
		err := fmt.Errorf("dispatch: role %q has no handler", parsed)
		d.recorder.Error(ctx, parsed, env.Sender, "handler missing", err)
		return core.Response{Reply: FallbackReply}, err
	}

	response, err := d.invoke(ctx, handler, env)
	if err != nil {
		d.logger.Error("handler failed",
			"sender", env.Sender,
			"role", string(parsed),
			"error", err.Error(),
		)
		d.recorder.Error(ctx, parsed, env.Sender, "handler failed", err)
		return core.Response{Reply: FallbackReply}, &core.HandlerFailureError{Role: parsed, Cause: err}
	}

	d.recorder.Responded(ctx, parsed, env, response)
	d.deliver(ctx, env.Sender, response)
	return response, nil
}

type invokeResult struct {
	response core.Response
	err      error
}

// invoke runs the handler under the configured deadline and contains panics.
// The handler goroutine owns its result until it lands on the channel; the
// timeout branch never touches it, so a handler finishing right at the
// deadline cannot race the timeout return.
func (d *Dispatcher) invoke(ctx context.Context, handler core.Handler, env core.Envelope) (core.Response, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	results := make(chan invokeResult, 1)
	go func() {
		var result invokeResult
		defer func() {
			if recovered := recover(); recovered != nil {
				result = invokeResult{err: fmt.Errorf("dispatch: handler panicked: %v", recovered)}
			}
			results <- result
		}()
		result.response, result.err = handler.Handle(ctx, env)
	}()

	select {
	case result := <-results:
		return result.response, result.err
	case <-ctx.Done():
		return core.Response{}, fmt.Errorf("dispatch: handler deadline exceeded: %w", ctx.Err())
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sender string, response core.Response) {
	if d.executor == nil || len(response.Actions) == 0 {
		return
	}
	if err := d.executor.Execute(ctx, sender, response); err != nil {
		d.logger.Error("delivery executor failed",
			"sender", sender,
			"actions", response.Actions,
			"error", err.Error(),
		)
	}
}
