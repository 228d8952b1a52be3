package dispatch

import (
	"context"
	"fmt"
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/core"
)

type queued struct {
	role core.Role
	env  core.Envelope
}

// Scheduler runs dispatches in the background so webhook handlers can
// acknowledge immediately. The queue is bounded; Enqueue reports false when
// full instead of blocking the caller.
type Scheduler struct {
	dispatcher *Dispatcher
	logger     core.Logger
	queue      chan queued

	// mu orders enqueues against the queue close in Stop. An enqueue holds
	// it across the stopped check and the channel send, so the close can
	// never land between the two.
	mu       sync.Mutex
	stopping bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger core.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewScheduler(dispatcher *Dispatcher, queueSize, workers int, options ...SchedulerOption) (*Scheduler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatch: dispatcher is required")
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	scheduler := &Scheduler{
		dispatcher: dispatcher,
		logger:     glog.Nop(),
		queue:      make(chan queued, queueSize),
	}
	for _, option := range options {
		if option != nil {
			option(scheduler)
		}
	}
	scheduler.logger = glog.Ensure(scheduler.logger)

	scheduler.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go scheduler.worker()
	}
	return scheduler, nil
}

// Enqueue hands an envelope to the background workers. It returns false when
// the queue is full or the scheduler is stopped; the caller decides whether
// that is a 503 or a drop.
func (s *Scheduler) Enqueue(role core.Role, env core.Envelope) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	select {
	case s.queue <- queued{role: role, env: env}:
		return true
	default:
		s.logger.Warn("dispatch queue full, dropping envelope",
			"sender", env.Sender,
			"role", string(role),
		)
		return false
	}
}

// Stop drains the queue and waits for in-flight dispatches. Envelopes run to
// completion; nothing is aborted mid-flight.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for item := range s.queue {
		// Detached from any request context: the originating HTTP request
		// has already been acknowledged.
		if _, err := s.dispatcher.Dispatch(context.Background(), item.role, item.env); err != nil {
			s.logger.Debug("background dispatch resolved with error",
				"sender", item.env.Sender,
				"role", string(item.role),
				"error", err.Error(),
			)
		}
	}
}
