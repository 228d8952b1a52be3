// Package delivery materializes response action tags as outbound side
// effects: channel replies, emails, or outbox rows for retried delivery.
package delivery

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/core"
)

// ChannelSender sends a reply back over the messaging channel.
type ChannelSender interface {
	SendText(ctx context.Context, recipient, text string) error
}

// EmailSender notifies a configured address about a response.
type EmailSender interface {
	SendNotification(ctx context.Context, sender, reply string) error
}

// Executor fans a response's action tags out to the configured senders.
// Failures are logged and joined into the returned error; the caller treats
// them as advisory.
type Executor struct {
	channel ChannelSender
	email   EmailSender
	logger  core.Logger
}

type ExecutorOption func(*Executor)

func WithChannelSender(sender ChannelSender) ExecutorOption {
	return func(e *Executor) { e.channel = sender }
}

func WithEmailSender(sender EmailSender) ExecutorOption {
	return func(e *Executor) { e.email = sender }
}

func WithExecutorLogger(logger core.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewExecutor(options ...ExecutorOption) *Executor {
	executor := &Executor{logger: glog.Nop()}
	for _, option := range options {
		if option != nil {
			option(executor)
		}
	}
	executor.logger = glog.Ensure(executor.logger)
	return executor
}

func (e *Executor) Execute(ctx context.Context, sender string, response core.Response) error {
	if e == nil {
		return fmt.Errorf("delivery: executor is nil")
	}
	var execErr error
	for _, tag := range response.Actions {
		if err := e.executeOne(ctx, tag, sender, response); err != nil {
			e.logger.Error("delivery action failed",
				"action", tag,
				"recipient", sender,
				"error", err.Error(),
			)
			execErr = joinErrors(execErr, err)
		}
	}
	return execErr
}

func (e *Executor) executeOne(ctx context.Context, tag, sender string, response core.Response) error {
	switch tag {
	case core.ActionNotifyChannel:
		if e.channel == nil {
			return fmt.Errorf("delivery: no channel sender configured")
		}
		return e.channel.SendText(ctx, sender, response.Reply)
	case core.ActionNotifyEmail:
		if e.email == nil {
			return fmt.Errorf("delivery: no email sender configured")
		}
		return e.email.SendNotification(ctx, sender, response.Reply)
	default:
		return fmt.Errorf("delivery: unknown action tag %q", tag)
	}
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

var _ core.DeliveryExecutor = (*Executor)(nil)
