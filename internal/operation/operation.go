package operation

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/logging"
)

// Body is the work an Operation performs. It runs on an executor goroutine
// and must call op.Finish exactly once, either before returning or later
// from another goroutine. ctx is cancelled when the operation is cancelled.
type Body func(ctx context.Context, op *Operation)

// Binding is what an executor supplies when it accepts an operation.
type Binding struct {
	// ID uniquely identifies the operation within the executor.
	ID string
	// Spawn submits a child produced by the operation.
	Spawn func(child *Operation) error
	// Strict turns contract violations into panics.
	Strict bool
	// Logger receives observer panics and contract violations.
	Logger *logging.Logger
}

// Operation is a unit of work with conditions and observers.
//
// Conditions and observers are attached before submission; Bind freezes
// them. All methods are safe for concurrent use.
type Operation struct {
	name string
	body Body

	mu              sync.Mutex
	id              string
	state           State
	conditions      []Condition
	observers       []Observer
	dependencies    []*Operation
	bound           bool
	spawn           func(child *Operation) error
	strict          bool
	logger          *logging.Logger
	pipeline        *Pipeline
	cancel          context.CancelFunc
	cancelRequested bool
	errs            []error
	createdAt       time.Time
	finishedAt      time.Time
	done            chan struct{}
}

// Option configures an Operation at construction.
type Option func(*Operation)

// WithConditions attaches conditions.
func WithConditions(conds ...Condition) Option {
	return func(o *Operation) {
		o.conditions = append(o.conditions, conds...)
	}
}

// WithObservers attaches observers in the order given.
func WithObservers(obs ...Observer) Option {
	return func(o *Operation) {
		o.observers = append(o.observers, obs...)
	}
}

// New creates a pending Operation. A nil body finishes immediately with no
// errors.
func New(name string, body Body, opts ...Option) *Operation {
	if body == nil {
		body = func(_ context.Context, op *Operation) { _ = op.Finish() }
	}
	o := &Operation{
		name:      name,
		body:      body,
		state:     StatePending,
		logger:    logging.NopLogger(),
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ID returns the executor-assigned ID, or "" before submission.
func (o *Operation) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

// Name returns the display name.
func (o *Operation) Name() string {
	return o.name
}

// State returns the current lifecycle state.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Conditions returns a copy of the attached conditions.
func (o *Operation) Conditions() []Condition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Condition(nil), o.conditions...)
}

// Dependencies returns the operations this one waits for.
func (o *Operation) Dependencies() []*Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Operation(nil), o.dependencies...)
}

// Errors returns the final error list. It is empty until the operation is
// terminal, and empty on success.
func (o *Operation) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.IsTerminal() {
		return nil
	}
	return append([]error(nil), o.errs...)
}

// Done returns a channel closed once the operation is terminal and every
// observer has received OnFinish.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation is terminal or ctx is done.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Elapsed returns the time from creation to finish, or to now if the
// operation is still running.
func (o *Operation) Elapsed() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finishedAt.IsZero() {
		return time.Since(o.createdAt)
	}
	return o.finishedAt.Sub(o.createdAt)
}

// AddCondition attaches a condition before submission.
func (o *Operation) AddCondition(c Condition) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bound {
		return o.violationLocked("condition added after submission", errors.ErrObserversFrozen)
	}
	o.conditions = append(o.conditions, c)
	return nil
}

// AddObserver attaches an observer before submission.
func (o *Operation) AddObserver(obs Observer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bound {
		return o.violationLocked("observer added after submission", errors.ErrObserversFrozen)
	}
	o.observers = append(o.observers, obs)
	return nil
}

// AddDependency makes o wait for dep to be terminal before evaluation.
// Executors use it for mutual-exclusion dependency insertion.
func (o *Operation) AddDependency(dep *Operation) {
	if dep == nil || dep == o {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, d := range o.dependencies {
		if d == dep {
			return
		}
	}
	o.dependencies = append(o.dependencies, dep)
}

// Bind freezes conditions and observers and attaches executor services.
// An operation can be bound once.
func (o *Operation) Bind(b Binding) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bound {
		return o.violationLocked("operation submitted twice", errors.ErrAlreadySubmitted)
	}
	if b.Logger != nil {
		o.logger = b.Logger
	}
	o.bound = true
	o.id = b.ID
	o.spawn = b.Spawn
	o.strict = b.Strict
	o.pipeline = newPipeline(o, o.observers, b.Strict, o.logger)
	return nil
}

// Bound reports whether the operation has been submitted.
func (o *Operation) Bound() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bound
}

// Advance moves a not-yet-executing operation to the next state. It returns
// false if the operation already left the expected path, typically because
// it was cancelled concurrently.
func (o *Operation) Advance(to State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if to == StateExecuting || to == StateFinishing || to.IsTerminal() {
		return false
	}
	if !canTransition(o.state, to) {
		return false
	}
	o.state = to
	return true
}

// Execute moves a ready operation to executing, delivers OnStart, and runs
// the body on the calling goroutine. ctx governs the body; Cancel cancels it.
func (o *Operation) Execute(ctx context.Context) error {
	o.mu.Lock()
	if !o.bound {
		o.mu.Unlock()
		return o.violation("execute before submission", errors.ErrNotExecuting)
	}
	if !canTransition(o.state, StateExecuting) {
		state := o.state
		o.mu.Unlock()
		if state.IsTerminal() || state == StateFinishing {
			return nil
		}
		return o.violation("execute from "+state.String(), errors.ErrNotExecuting)
	}
	ctx, cancel := context.WithCancel(ctx)
	o.state = StateExecuting
	o.cancel = cancel
	pipeline := o.pipeline
	o.mu.Unlock()

	if err := pipeline.Start(); err != nil {
		cancel()
		return err
	}
	o.body(ctx, o)
	return nil
}

// Produce reports a child operation to observers and hands it to the
// executor. It is only valid while the operation is executing.
func (o *Operation) Produce(child *Operation) error {
	o.mu.Lock()
	if o.state != StateExecuting {
		o.mu.Unlock()
		return o.violation("produce while "+o.State().String(), errors.ErrNotExecuting)
	}
	pipeline, spawn := o.pipeline, o.spawn
	o.mu.Unlock()

	if err := pipeline.Produce(child); err != nil {
		return err
	}
	if spawn == nil {
		return nil
	}
	return spawn(child)
}

// Finish ends an executing operation with errs (none means success). It
// must be called exactly once; a second call is a contract violation and
// is rejected.
func (o *Operation) Finish(errs ...error) error {
	o.mu.Lock()
	switch {
	case o.state == StateExecuting:
	case o.state == StateFinishing || o.state.IsTerminal():
		o.mu.Unlock()
		return o.violation("finish called twice", errors.ErrAlreadyFinished)
	default:
		state := o.state
		o.mu.Unlock()
		return o.violation("finish while "+state.String(), errors.ErrNotExecuting)
	}
	final := StateFinished
	collected := compact(errs)
	if o.cancelRequested {
		final = StateCancelled
		if !containsCancellation(collected) {
			collected = append(collected, errors.ErrCancelled)
		}
	}
	o.state = StateFinishing
	o.errs = collected
	o.mu.Unlock()

	return o.complete(final, collected)
}

// Abort ends an operation that has not started executing. Observers get
// OnFinish(errs) without OnStart and the state becomes cancelled. An
// operation that was never submitted is frozen as if it had been, so it
// can no longer be submitted. It returns false if the operation is already
// executing or terminal.
func (o *Operation) Abort(errs ...error) bool {
	o.mu.Lock()
	if o.state == StateExecuting || o.state == StateFinishing || o.state.IsTerminal() {
		o.mu.Unlock()
		return false
	}
	if !o.bound {
		o.bound = true
		o.pipeline = newPipeline(o, o.observers, o.strict, o.logger)
	}
	collected := compact(errs)
	if len(collected) == 0 {
		collected = []error{errors.ErrCancelled}
	}
	o.state = StateFinishing
	o.errs = collected
	o.mu.Unlock()

	_ = o.complete(StateCancelled, collected)
	return true
}

// Cancel requests cancellation. A pending, evaluating or ready operation
// is aborted immediately. An executing operation has its context cancelled
// and ends as cancelled when its body calls Finish. Returns false if the
// operation is already finishing or terminal.
func (o *Operation) Cancel() bool {
	o.mu.Lock()
	switch {
	case o.state == StateExecuting:
		o.cancelRequested = true
		cancel := o.cancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return true
	case o.state == StateFinishing || o.state.IsTerminal():
		o.mu.Unlock()
		return false
	}
	o.mu.Unlock()
	return o.Abort(errors.ErrCancelled)
}

// complete delivers OnFinish and moves to the terminal state. It runs
// after the state was set to finishing, so it executes once.
func (o *Operation) complete(final State, errs []error) error {
	o.mu.Lock()
	pipeline := o.pipeline
	cancel := o.cancel
	o.mu.Unlock()

	var err error
	if pipeline != nil {
		err = pipeline.Finish(errs)
	}

	o.mu.Lock()
	o.state = final
	o.finishedAt = time.Now()
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(o.done)
	return err
}

func (o *Operation) violation(msg string, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.violationLocked(msg, cause)
}

func (o *Operation) violationLocked(msg string, cause error) error {
	err := errors.NewContractError(msg, cause).
		WithComponent("operation").
		WithOperationID(o.id)
	o.logger.Error("operation contract violation", "operation", o.name, "error", err.Error())
	if o.strict {
		panic(err)
	}
	return err
}

func compact(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func containsCancellation(errs []error) bool {
	for _, err := range errs {
		if errors.IsCancellation(err) {
			return true
		}
	}
	return false
}
