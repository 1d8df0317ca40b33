package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kemicky/forage/pkg/forageable"
	"github.com/kemicky/forage/pkg/telemetry"
)

var (
	// ErrScopeClosed is returned by Submit after Close.
	ErrScopeClosed = errors.New("task scope closed")

	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("task queue full")
)

// Func is the unit of work run by a worker.
type Func func(ctx context.Context) error

// Config sizes the worker pool.
type Config struct {
	// Workers is the number of concurrent workers. One worker runs tasks in
	// submission order.
	Workers int `yaml:"workers" validate:"gte=1"`

	// QueueSize is the number of tasks that may wait for a worker.
	QueueSize int `yaml:"queue_size" validate:"gte=1"`

	// FailureBuffer is the capacity of the Failures channel.
	FailureBuffer int `yaml:"failure_buffer" validate:"gte=1"`
}

// DefaultConfig returns a single-worker FIFO configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       1,
		QueueSize:     64,
		FailureBuffer: 16,
	}
}

// Failure describes a task that returned an error, panicked or was cancelled.
type Failure struct {
	TaskID string
	Name   string
	Err    error
	At     time.Time
}

// Class returns the error class of the failure.
func (f Failure) Class() string {
	var pe *PanicError
	if errors.As(f.Err, &pe) {
		return "panic"
	}
	if class := forageable.ClassOf(f.Err); class != "" {
		return string(class)
	}
	return "unknown"
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

type task struct {
	id   string
	name string
	fn   Func
}

// Scope is a bounded worker pool.
type Scope struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	queue  chan task

	failures chan Failure
	group    errgroup.Group

	// mu guards closed, inflight and idle.
	mu       sync.Mutex
	closed   bool
	inflight int
	idle     []chan struct{}

	closeOnce sync.Once

	tel    *telemetry.Telemetry
	logger *telemetry.Logger
}

// Option configures a Scope.
type Option func(*Scope)

// WithTelemetry attaches logging, tracing and metrics to the scope.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Scope) {
		if tel != nil {
			s.tel = tel
		}
	}
}

// New starts a scope with cfg.Workers workers. Zero values in cfg take the
// defaults.
func New(cfg Config, opts ...Option) *Scope {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.FailureBuffer <= 0 {
		cfg.FailureBuffer = def.FailureBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scope{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan task, cfg.QueueSize),
		failures: make(chan Failure, cfg.FailureBuffer),
		tel:      telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.tel.Logger.NewComponentLogger("tasks")

	for i := 0; i < cfg.Workers; i++ {
		s.group.Go(s.work)
	}

	return s
}

// Submit queues fn under name and returns its task ID without waiting for it
// to run.
func (s *Scope) Submit(name string, fn Func) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrScopeClosed
	}

	t := task{id: uuid.NewString(), name: name, fn: fn}

	select {
	case s.queue <- t:
	default:
		return "", ErrQueueFull
	}

	s.inflight++
	s.tel.Metrics.SetQueuedTasks(float64(len(s.queue)))
	s.tel.Metrics.RecordMutationSubmitted(name)
	s.logger.WithTaskID(t.id).WithOperation(name).Trace("Task queued")

	return t.id, nil
}

// Failures returns the channel failures are delivered on. It is closed by
// Close once every worker has exited. When nobody drains it, failures beyond
// its capacity are logged and dropped.
func (s *Scope) Failures() <-chan Failure {
	return s.failures
}

// Wait blocks until every submitted task has finished or ctx ends.
func (s *Scope) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.idle = append(s.idle, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the scope, reports queued tasks as cancelled and waits for
// the workers to exit. Calling Close more than once is safe.
func (s *Scope) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Cancel first so a worker never starts a task dequeued during Close.
		s.cancel()

		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		err = s.group.Wait()
		close(s.failures)
		s.tel.Metrics.SetQueuedTasks(0)
	})
	return err
}

func (s *Scope) work() error {
	for t := range s.queue {
		s.run(t)
	}
	return nil
}

func (s *Scope) run(t task) {
	defer s.finished()
	s.tel.Metrics.SetQueuedTasks(float64(len(s.queue)))

	logger := s.logger.WithTaskID(t.id).WithOperation(t.name)

	if err := s.ctx.Err(); err != nil {
		s.fail(t, forageable.NewCancelledError("task cancelled before it ran", err).WithOp(t.name), logger)
		return
	}

	timer := telemetry.NewTimer()
	ctx, span := s.tel.Tracer.StartTaskSpan(s.tel.WithContext(s.ctx), t.id, t.name)
	defer span.End()

	err := invoke(logger.WithContext(ctx), t.fn)
	if err != nil && s.ctx.Err() != nil && forageable.ClassOf(err) == "" {
		err = forageable.NewCancelledError("task interrupted by scope close", err).WithOp(t.name)
	}

	status := "ok"
	if err != nil {
		status = "failed"
		telemetry.RecordError(span, err)
		s.fail(t, err, logger)
	} else {
		telemetry.RecordSuccess(span)
		logger.Trace("Task finished")
	}
	s.tel.Metrics.RecordMutationCompleted(t.name, status, timer.Duration())
}

// invoke runs fn, turning a panic into a *PanicError.
func invoke(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

func (s *Scope) fail(t task, err error, logger *telemetry.Logger) {
	f := Failure{TaskID: t.id, Name: t.name, Err: err, At: time.Now()}

	logger.WithError(err).WithField("class", f.Class()).Error("Task failed")
	s.tel.Metrics.RecordTaskFailure(t.name, f.Class())

	select {
	case s.failures <- f:
	default:
		logger.Warn("Failure channel full, dropping failure")
	}
}

func (s *Scope) finished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if s.inflight > 0 {
		return
	}
	for _, ch := range s.idle {
		close(ch)
	}
	s.idle = nil
}
