package delivery

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/core"
)

type RunnerConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// RunnerConfigFromDelivery maps the service configuration section onto
// runner settings, filling gaps with defaults.
func RunnerConfigFromDelivery(cfg core.DeliveryConfig) RunnerConfig {
	out := DefaultRunnerConfig()
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffSeconds > 0 {
		out.InitialBackoff = time.Duration(cfg.InitialBackoffSeconds) * time.Second
	}
	if cfg.MaxBackoffSeconds > 0 {
		out.MaxBackoff = time.Duration(cfg.MaxBackoffSeconds) * time.Second
	}
	return out
}

// RunStats summarizes one DispatchPending pass.
type RunStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Dead      int
}

// Runner drains the delivery outbox: it claims pending actions, executes
// them through the inline executor, and acks or reschedules with exponential
// backoff. An action that exhausts MaxAttempts is dead-lettered.
type Runner struct {
	store    core.DeliveryOutboxStore
	executor core.DeliveryExecutor
	config   RunnerConfig
	logger   core.Logger
	now      func() time.Time
}

type RunnerOption func(*Runner)

func WithRunnerLogger(logger core.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(store core.DeliveryOutboxStore, executor core.DeliveryExecutor, config RunnerConfig, options ...RunnerOption) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("delivery: outbox store is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("delivery: executor is required")
	}
	defaults := DefaultRunnerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	runner := &Runner{
		store:    store,
		executor: executor,
		config:   config,
		logger:   glog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		if option != nil {
			option(runner)
		}
	}
	runner.logger = glog.Ensure(runner.logger)
	return runner, nil
}

func (r *Runner) DispatchPending(ctx context.Context, batchSize int) (RunStats, error) {
	if r == nil || r.store == nil {
		return RunStats{}, fmt.Errorf("delivery: runner is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = r.config.BatchSize
	}
	actions, err := r.store.ClaimBatch(ctx, limit)
	if err != nil {
		return RunStats{}, err
	}

	stats := RunStats{Claimed: len(actions)}
	var runErr error
	for _, action := range actions {
		if err := r.deliverOne(ctx, action); err != nil {
			if retryErr := r.retryAction(ctx, action, err); retryErr != nil {
				runErr = joinErrors(runErr, retryErr)
			}
			if action.Attempts+1 >= r.config.MaxAttempts {
				stats.Dead++
			} else {
				stats.Retried++
			}
			runErr = joinErrors(runErr, err)
			continue
		}
		if err := r.store.Ack(ctx, strings.TrimSpace(action.ID)); err != nil {
			runErr = joinErrors(runErr, err)
			continue
		}
		stats.Delivered++
	}
	return stats, runErr
}

func (r *Runner) deliverOne(ctx context.Context, action core.DeliveryAction) error {
	reply, _ := action.Payload["reply"].(string)
	return r.executor.Execute(ctx, action.Sender, core.Response{
		Reply:   reply,
		Actions: []string{action.Tag},
	})
}

func (r *Runner) retryAction(ctx context.Context, action core.DeliveryAction, cause error) error {
	if action.Attempts+1 >= r.config.MaxAttempts {
		r.logger.Error("delivery action dead-lettered",
			"action_id", action.ID,
			"tag", action.Tag,
			"attempts", action.Attempts+1,
			"error", cause.Error(),
		)
		return r.store.Retry(ctx, strings.TrimSpace(action.ID), cause, time.Time{})
	}
	nextAttemptAt := r.now().Add(r.nextBackoffDelay(action.Attempts + 1))
	return r.store.Retry(ctx, strings.TrimSpace(action.ID), cause, nextAttemptAt)
}

func (r *Runner) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(r.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 {
		return r.config.MaxBackoff
	}
	if next > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return next
}
