package concierge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/adapters/gocommand"
	"github.com/goliatone/go-concierge/adapters/gojob"
	"github.com/goliatone/go-concierge/adapters/gologger"
	"github.com/goliatone/go-concierge/audit"
	"github.com/goliatone/go-concierge/command"
	"github.com/goliatone/go-concierge/core"
	"github.com/goliatone/go-concierge/delivery"
	"github.com/goliatone/go-concierge/directory"
	"github.com/goliatone/go-concierge/dispatch"
	"github.com/goliatone/go-concierge/query"
	"github.com/goliatone/go-concierge/server"
)

// Commands groups the directory mutations the facade constructs.
type Commands struct {
	Grant     *command.GrantAccessCommand
	Revoke    *command.RevokeAccessCommand
	SetActive *command.SetAccessActiveCommand
}

// Queries groups the directory reads the facade constructs.
type Queries struct {
	ResolveRole *query.ResolveRoleQuery
	CheckAccess *query.CheckAccessQuery
	ListGrants  *query.ListGrantsQuery
}

// Facade composes the full pipeline from a store provider and a handler set:
// directory, resolver, audit recorder, dispatcher, background scheduler,
// delivery runner, HTTP surface, and the command/query messages registered on
// the go-command dispatcher.
type Facade struct {
	config     core.Config
	directory  *directory.Directory
	resolver   *directory.Resolver
	recorder   *audit.Recorder
	dispatcher *dispatch.Dispatcher
	scheduler  *dispatch.Scheduler
	runner     *delivery.Runner
	server     *server.Server
	commands   Commands
	queries    Queries

	outbox      core.DeliveryOutboxStore
	sideEffects core.DeliveryExecutor
	retry       gojob.RetryPolicy

	registry      *gocommand.RegistryAdapter
	subscriptions *gocommand.DirectorySubscriptions

	jobProvider job.LoggerProvider
	jobLogger   job.Logger
	workerHook  *gojob.WorkerHookAdapter
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	provider   glog.LoggerProvider
	logger     glog.Logger
	executor   core.DeliveryExecutor
	limiter    server.RateLimiter
	retry      gojob.RetryPolicy
	registry   *gocommand.RegistryAdapter
	workerHook gojob.WorkerHook
}

func WithLoggerProvider(provider glog.LoggerProvider) FacadeOption {
	return func(options *facadeOptions) {
		options.provider = provider
	}
}

func WithLogger(logger glog.Logger) FacadeOption {
	return func(options *facadeOptions) {
		options.logger = logger
	}
}

// WithDeliveryExecutor replaces the default outbox-backed executor behind the
// dispatcher. Side effects then bypass the retry runner.
func WithDeliveryExecutor(executor core.DeliveryExecutor) FacadeOption {
	return func(options *facadeOptions) {
		options.executor = executor
	}
}

// WithRateLimiter throttles channel webhook senders at the HTTP edge.
func WithRateLimiter(limiter server.RateLimiter) FacadeOption {
	return func(options *facadeOptions) {
		options.limiter = limiter
	}
}

// WithRetryPolicy bounds queue-backed delivery retries.
func WithRetryPolicy(policy gojob.RetryPolicy) FacadeOption {
	return func(options *facadeOptions) {
		options.retry = policy
	}
}

// WithCommandRegistry reuses an existing registry adapter instead of creating
// a private one, so the directory messages register alongside the consumer's
// own commands.
func WithCommandRegistry(registry *gocommand.RegistryAdapter) FacadeOption {
	return func(options *facadeOptions) {
		options.registry = registry
	}
}

// WithDeliveryWorkerHook observes queue worker lifecycle events for delivery
// actions.
func WithDeliveryWorkerHook(hook gojob.WorkerHook) FacadeOption {
	return func(options *facadeOptions) {
		options.workerHook = hook
	}
}

// New wires the pipeline. The store provider supplies persistence, the
// handler map binds one handler per role, and options adjust the ambient
// pieces.
func New(cfg core.Config, stores core.StoreProvider, handlers map[core.Role]core.Handler, opts ...FacadeOption) (*Facade, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stores == nil {
		return nil, fmt.Errorf("concierge: store provider is required")
	}

	options := facadeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	provider, logger := gologger.ResolvePipeline(options.provider, options.logger)

	registry, err := dispatch.NewRegistry(handlers)
	if err != nil {
		return nil, err
	}

	dir, err := directory.New(stores.AuthorizationStore(), directory.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	resolver, err := directory.NewResolver(dir, logger)
	if err != nil {
		return nil, err
	}
	recorder, err := audit.NewRecorder(stores.AuditStore(), audit.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	outbox := stores.DeliveryOutboxStore()
	executor := options.executor
	if executor == nil {
		outboxQueue, err := delivery.NewOutboxQueue(outbox)
		if err != nil {
			return nil, err
		}
		executor = outboxQueue
	}

	sideEffects, err := buildSideEffectExecutor(cfg, logger)
	if err != nil {
		return nil, err
	}
	runner, err := delivery.NewRunner(outbox, sideEffects, delivery.RunnerConfigFromDelivery(cfg.Delivery), delivery.WithRunnerLogger(logger))
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(registry, dir, recorder,
		dispatch.WithLogger(logger),
		dispatch.WithExecutor(executor),
		dispatch.WithHandlerTimeout(time.Duration(cfg.Dispatch.HandlerTimeoutSeconds)*time.Second),
	)
	if err != nil {
		return nil, err
	}
	scheduler, err := dispatch.NewScheduler(dispatcher, cfg.Dispatch.QueueSize, cfg.Dispatch.Workers,
		dispatch.WithSchedulerLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	serverOptions := []server.Option{server.WithLogger(logger)}
	if options.limiter != nil {
		serverOptions = append(serverOptions, server.WithRateLimiter(options.limiter))
	}
	srv, err := server.New(cfg, dispatcher, scheduler, dir, resolver, serverOptions...)
	if err != nil {
		scheduler.Stop()
		return nil, err
	}

	facade := &Facade{
		config:      cfg,
		directory:   dir,
		resolver:    resolver,
		recorder:    recorder,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		runner:      runner,
		server:      srv,
		outbox:      outbox,
		sideEffects: sideEffects,
		retry:       normalizeRetryPolicy(options.retry, cfg.Delivery),
		jobProvider: gologger.ToJobProvider(provider),
		jobLogger:   gologger.ToJobLogger(logger),
	}
	facade.commands = Commands{
		Grant:     command.NewGrantAccessCommand(dir),
		Revoke:    command.NewRevokeAccessCommand(dir),
		SetActive: command.NewSetAccessActiveCommand(dir),
	}
	facade.queries = Queries{
		ResolveRole: query.NewResolveRoleQuery(resolver),
		CheckAccess: query.NewCheckAccessQuery(dir),
		ListGrants:  query.NewListGrantsQuery(dir),
	}
	if options.workerHook != nil {
		facade.workerHook = gojob.NewWorkerHookAdapter(options.workerHook)
	}

	facade.registry = options.registry
	if facade.registry == nil {
		facade.registry = gocommand.NewRegistryAdapter(nil)
	}
	facade.subscriptions, err = gocommand.SubscribeDirectory(facade.registry,
		gocommand.DirectoryCommands{
			Grant:     facade.commands.Grant,
			Revoke:    facade.commands.Revoke,
			SetActive: facade.commands.SetActive,
		},
		gocommand.DirectoryQueries{
			ResolveRole: facade.queries.ResolveRole,
			CheckAccess: facade.queries.CheckAccess,
			ListGrants:  facade.queries.ListGrants,
		},
	)
	if err != nil {
		scheduler.Stop()
		return nil, err
	}

	return facade, nil
}

func buildSideEffectExecutor(cfg core.Config, logger core.Logger) (*delivery.Executor, error) {
	executorOptions := []delivery.ExecutorOption{
		delivery.WithExecutorLogger(logger),
		delivery.WithEmailSender(delivery.NewLogEmailSender(logger)),
	}
	if cfg.Channel.PhoneNumberID != "" && cfg.Channel.AccessToken != "" {
		client, err := delivery.NewHTTPChannelClient(cfg.Channel)
		if err != nil {
			return nil, err
		}
		executorOptions = append(executorOptions, delivery.WithChannelSender(client))
	}
	return delivery.NewExecutor(executorOptions...), nil
}

func normalizeRetryPolicy(policy gojob.RetryPolicy, cfg core.DeliveryConfig) gojob.RetryPolicy {
	if policy.MaxAttempts > 0 || policy.MaxDelay > 0 || policy.DeadLetterOnMax {
		return policy
	}
	return gojob.RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		MaxDelay:        time.Duration(cfg.MaxBackoffSeconds) * time.Second,
		DeadLetterOnMax: true,
	}
}

// Stop tears the facade down: the directory message subscriptions are
// removed and the background scheduler drains.
func (f *Facade) Stop() {
	if f == nil {
		return
	}
	if f.subscriptions != nil {
		f.subscriptions.Unsubscribe()
	}
	if f.scheduler != nil {
		f.scheduler.Stop()
	}
}

func (f *Facade) Directory() *directory.Directory {
	if f == nil {
		return nil
	}
	return f.directory
}

func (f *Facade) Resolver() *directory.Resolver {
	if f == nil {
		return nil
	}
	return f.resolver
}

func (f *Facade) Dispatcher() *dispatch.Dispatcher {
	if f == nil {
		return nil
	}
	return f.dispatcher
}

func (f *Facade) Scheduler() *dispatch.Scheduler {
	if f == nil {
		return nil
	}
	return f.scheduler
}

func (f *Facade) Server() *server.Server {
	if f == nil {
		return nil
	}
	return f.server
}

// Handler returns the HTTP surface for mounting.
func (f *Facade) Handler() http.Handler {
	if f == nil || f.server == nil {
		return nil
	}
	return f.server.Handler()
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Registry() *gocommand.RegistryAdapter {
	if f == nil {
		return nil
	}
	return f.registry
}

// JobLoggers exposes the resolved logger pair in go-job form for consumers
// constructing queue workers around the facade.
func (f *Facade) JobLoggers() (job.LoggerProvider, job.Logger) {
	if f == nil {
		return nil, nil
	}
	return f.jobProvider, f.jobLogger
}

// WorkerHook returns the go-job lifecycle hook configured via
// WithDeliveryWorkerHook, or nil.
func (f *Facade) WorkerHook() *gojob.WorkerHookAdapter {
	if f == nil {
		return nil
	}
	return f.workerHook
}

// RunDeliveries drains one batch of the delivery outbox through the inline
// side-effect executor.
func (f *Facade) RunDeliveries(ctx context.Context, batchSize int) (delivery.RunStats, error) {
	if f == nil || f.runner == nil {
		return delivery.RunStats{}, fmt.Errorf("concierge: facade is not configured")
	}
	return f.runner.DispatchPending(ctx, batchSize)
}

// EnqueueDeliveries hands claimed outbox actions to a go-job queue backend.
// An action successfully enqueued is acked locally; the queue's idempotency
// key keeps redeliveries from doubling sends. Actions that fail to enqueue
// return to pending.
func (f *Facade) EnqueueDeliveries(ctx context.Context, enqueuer queue.Enqueuer, limit int) (int, error) {
	if f == nil || f.outbox == nil {
		return 0, fmt.Errorf("concierge: facade is not configured")
	}
	adapter := gojob.NewEnqueuerAdapter(enqueuer)
	actions, err := f.outbox.ClaimBatch(ctx, limit)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	var runErr error
	for _, action := range actions {
		if err := adapter.EnqueueAction(ctx, action); err != nil {
			if retryErr := f.outbox.Retry(ctx, action.ID, err, time.Now().UTC()); retryErr != nil {
				runErr = joinFacadeErrors(runErr, retryErr)
			}
			runErr = joinFacadeErrors(runErr, err)
			continue
		}
		if err := f.outbox.Ack(ctx, action.ID); err != nil {
			runErr = joinFacadeErrors(runErr, err)
			continue
		}
		enqueued++
	}
	return enqueued, runErr
}

// ProcessQueuedDelivery executes one queued delivery action and acks it, or
// nacks it under the retry policy. Undecodable messages dead-letter.
func (f *Facade) ProcessQueuedDelivery(ctx context.Context, queueDelivery queue.Delivery) error {
	if f == nil || f.sideEffects == nil {
		return fmt.Errorf("concierge: facade is not configured")
	}
	adapter := gojob.NewDeliveryAdapter(queueDelivery, f.retry)
	action, err := adapter.Action()
	if err != nil {
		_ = adapter.Nack(ctx, core.DeliveryNackOptions{DeadLetter: true, Reason: err.Error()})
		return err
	}

	reply, _ := action.Payload["reply"].(string)
	err = f.sideEffects.Execute(ctx, action.Sender, core.Response{
		Reply:   reply,
		Actions: []string{action.Tag},
	})
	if err != nil {
		if nackErr := adapter.NackForAttempt(ctx, core.DeliveryNackOptions{Requeue: true, Reason: err.Error()}, action.Attempts+1); nackErr != nil {
			return joinFacadeErrors(err, nackErr)
		}
		return err
	}
	return adapter.Ack(ctx)
}

func joinFacadeErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
