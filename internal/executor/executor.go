package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/opcoord/internal/condition"
	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/logging"
	"github.com/Iron-Ham/opcoord/internal/operation"
)

// DefaultMaxConcurrent bounds how many operation bodies run at once.
const DefaultMaxConcurrent = 4

// entry is the executor's record of one submitted operation.
type entry struct {
	op          *operation.Operation
	parentID    string
	dependsOn   []string
	submittedAt time.Time
	started     bool
}

// Executor runs operations after their conditions are satisfied.
//
// Mutually exclusive conditions are resolved by dependency insertion: when
// an operation carrying an exclusive condition is submitted, it is made to
// depend on the previous unfinished operation that carried a condition of
// the same name. No lock is held across operations. An edge that would
// close a cycle, because the previous holder already waits on the new
// operation through a condition dependency, is not inserted.
type Executor struct {
	maxConcurrent int
	bus           *event.Bus
	logger        *logging.Logger
	newID         func() string
	strict        bool

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	tails   map[string]*operation.Operation // exclusive condition name -> latest holder
	active  int
	idle    chan struct{}
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	pool    *pool.Pool
	drivers sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrent bounds concurrently executing bodies. Values below one
// keep the default.
func WithMaxConcurrent(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithBus publishes operation lifecycle events.
func WithBus(b *event.Bus) Option {
	return func(e *Executor) { e.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l.WithComponent("executor")
		}
	}
}

// WithIDGenerator replaces the uuid-based operation ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithStrict makes contract violations by operations panic.
func WithStrict(strict bool) Option {
	return func(e *Executor) { e.strict = strict }
}

// New creates an Executor. Call Start before submitting.
func New(opts ...Option) *Executor {
	idle := make(chan struct{})
	close(idle)

	e := &Executor{
		maxConcurrent: DefaultMaxConcurrent,
		logger:        logging.NopLogger(),
		newID:         func() string { return uuid.New().String() },
		entries:       make(map[string]*entry),
		tails:         make(map[string]*operation.Operation),
		idle:          idle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins accepting operations. Cancelling ctx has the same effect
// as Stop without waiting.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return errors.NewOperationError("executor already started", nil)
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.pool = pool.New().WithMaxGoroutines(e.maxConcurrent)
	e.started = true
	e.logger.Info("executor started", "max_concurrent", e.maxConcurrent)
	return nil
}

// Stop cancels every unfinished operation and waits for them to end.
// Operations that have not executed end as cancelled; executing bodies see
// their context cancelled and must still call Finish.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	ops := make([]*operation.Operation, 0, len(e.order))
	for _, id := range e.order {
		ops = append(ops, e.entries[id].op)
	}
	p := e.pool
	e.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
	e.cancel()
	e.drivers.Wait()
	p.Wait()
	e.logger.Info("executor stopped")
}

// Submit accepts op for execution. Conditions and observers are frozen,
// an ID is assigned and exclusivity dependencies are inserted.
func (e *Executor) Submit(op *operation.Operation) error {
	return e.submit(op, "")
}

func (e *Executor) submit(op *operation.Operation, parentID string) error {
	if op == nil {
		return errors.NewValidationError("operation is nil")
	}

	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return errors.NewOperationError("submit rejected", errors.ErrExecutorStopped).WithName(op.Name())
	}
	if op.Bound() {
		e.mu.Unlock()
		return errors.NewContractError("operation submitted twice", errors.ErrAlreadySubmitted).
			WithComponent("executor").
			WithOperationID(op.ID())
	}

	id := e.newID()
	if err := op.AddObserver(startPublisher{e: e}); err != nil {
		e.mu.Unlock()
		return err
	}
	err := op.Bind(operation.Binding{
		ID:     id,
		Spawn:  func(child *operation.Operation) error { return e.spawn(id, child) },
		Strict: e.strict,
		Logger: e.logger.WithOperation(id, op.Name()),
	})
	if err != nil {
		e.mu.Unlock()
		return err
	}

	type queued struct{ key, waitingOn string }
	var waits []queued
	ent := &entry{op: op, parentID: parentID, submittedAt: time.Now()}
	for _, key := range condition.ExclusiveKeys(op.Conditions()) {
		tail := e.tails[key]
		if tail != nil && waitsOn(tail, op) {
			// The tail cannot execute before op finishes, so op keeps the
			// key without queueing and the tail stays last in line.
			e.logger.Debug("exclusivity edge skipped, tail waits on operation",
				"operation_id", id, "key", key, "tail_id", tail.ID())
			continue
		}
		if tail != nil && !tail.State().IsTerminal() {
			op.AddDependency(tail)
			ent.dependsOn = append(ent.dependsOn, tail.ID())
			waits = append(waits, queued{key: key, waitingOn: tail.ID()})
		}
		e.tails[key] = op
	}

	e.entries[id] = ent
	e.order = append(e.order, id)
	if e.active == 0 {
		e.idle = make(chan struct{})
	}
	e.active++
	e.drivers.Add(1)
	ctx := e.ctx
	e.mu.Unlock()

	e.logger.Debug("operation submitted", "operation_id", id, "operation", op.Name(), "depends_on", ent.dependsOn)
	e.publish(event.NewOperationSubmittedEvent(id, op.Name(), ent.dependsOn))
	for _, w := range waits {
		e.publish(event.NewExclusionQueuedEvent(id, w.key, w.waitingOn))
	}

	go e.drive(ctx, ent)
	return nil
}

func (e *Executor) spawn(parentID string, child *operation.Operation) error {
	if err := e.submit(child, parentID); err != nil {
		return err
	}
	e.publish(event.NewOperationProducedEvent(parentID, child.ID(), child.Name()))
	return nil
}

// drive moves one operation from pending to a terminal state.
func (e *Executor) drive(ctx context.Context, ent *entry) {
	defer e.drivers.Done()
	op := ent.op

	defer e.finished(ent)

	for _, dep := range op.Dependencies() {
		select {
		case <-dep.Done():
		case <-op.Done():
			return
		case <-ctx.Done():
			op.Abort(errors.ErrCancelled)
			<-op.Done()
			return
		}
	}

	if !op.Advance(operation.StateEvaluating) {
		<-op.Done()
		return
	}

	errs := e.evaluate(ctx, op)
	if len(errs) == 0 && ctx.Err() != nil {
		errs = []error{errors.ErrCancelled}
	}
	if len(errs) > 0 {
		if op.Abort(errs...) {
			e.logger.Info("operation not executed", "operation_id", op.ID(), "operation", op.Name(), "errors", len(errs))
		}
		<-op.Done()
		return
	}

	if !op.Advance(operation.StateReady) {
		<-op.Done()
		return
	}

	e.pool.Go(func() { e.execute(ctx, op) })
	<-op.Done()
}

// evaluate runs every condition and returns the failure reasons.
func (e *Executor) evaluate(ctx context.Context, op *operation.Operation) []error {
	var errs []error
	for _, cond := range op.Conditions() {
		if cond == nil {
			continue
		}
		if err := e.evaluateOne(ctx, op, cond); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *Executor) evaluateOne(ctx context.Context, op *operation.Operation, cond operation.Condition) error {
	var waited *operation.Operation
	for {
		res := cond.Evaluate(ctx, op)
		switch res.Kind {
		case operation.Satisfied:
			return nil

		case operation.Failed:
			var condErr *errors.ConditionError
			if res.Err != nil && errors.As(res.Err, &condErr) {
				return res.Err
			}
			return errors.NewConditionError(cond.Name(), res.Err).WithOperationID(op.ID())

		case operation.NeedsDependency:
			dep := res.Dependency
			if dep == nil || dep == op {
				return errors.NewConditionError(cond.Name(), errors.New("invalid dependency")).WithOperationID(op.ID())
			}
			if dep.State().IsTerminal() {
				if dep == waited {
					// Re-evaluating would return the same finished dependency forever.
					return errors.NewConditionError(cond.Name(), errors.New("dependency finished without satisfying condition")).
						WithOperationID(op.ID())
				}
				// It may have finished since the condition looked at it.
				waited = dep
				continue
			}
			op.AddDependency(dep)
			if !dep.Bound() {
				if err := e.submit(dep, ""); err != nil {
					return errors.NewConditionError(cond.Name(), err).WithOperationID(op.ID())
				}
			}
			select {
			case <-dep.Done():
			case <-ctx.Done():
				return errors.ErrCancelled
			}
			waited = dep

		default:
			return errors.NewConditionError(cond.Name(), errors.New("unknown result")).WithOperationID(op.ID())
		}
	}
}

// execute runs op's body on a pool goroutine. A panicking body finishes
// the operation with the panic as its error.
func (e *Executor) execute(ctx context.Context, op *operation.Operation) {
	if ctx.Err() != nil {
		op.Abort(errors.ErrCancelled)
		return
	}

	var pc panics.Catcher
	pc.Try(func() {
		if err := op.Execute(ctx); err != nil {
			e.logger.Error("execute failed", "operation_id", op.ID(), "error", err.Error())
		}
	})

	r := pc.Recovered()
	if r == nil {
		return
	}
	e.logger.Error("operation body panicked",
		"operation_id", op.ID(),
		"operation", op.Name(),
		"panic", fmt.Sprint(r.Value),
		"stack", string(r.Stack))
	if op.State() == operation.StateExecuting {
		_ = op.Finish(errors.NewOperationError("body panicked", r.AsError()).
			WithOperationID(op.ID()).
			WithName(op.Name()).
			WithSeverity(errors.SeverityCritical))
	}
	if e.strict {
		pc.Repanic()
	}
}

// waitsOn reports whether from transitively depends on target.
func waitsOn(from, target *operation.Operation) bool {
	seen := make(map[*operation.Operation]bool)
	stack := []*operation.Operation{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] || cur.State().IsTerminal() {
			continue
		}
		seen[cur] = true
		stack = append(stack, cur.Dependencies()...)
	}
	return false
}

// finished records that ent's operation is terminal.
func (e *Executor) finished(ent *entry) {
	op := ent.op

	e.mu.Lock()
	for key, tail := range e.tails {
		if tail == op {
			delete(e.tails, key)
		}
	}
	cancelled := op.State() == operation.StateCancelled && !ent.started
	e.mu.Unlock()

	errs := op.Errors()
	d := time.Since(ent.submittedAt)
	e.logFinished(op, errs, d)
	e.publish(event.NewOperationFinishedEvent(op.ID(), op.Name(), cancelled, errs, d))

	e.mu.Lock()
	e.active--
	if e.active == 0 {
		close(e.idle)
	}
	e.mu.Unlock()
}

// logFinished logs at a level matching the most severe error, so contract
// violations stand out from condition failures and cancellations.
func (e *Executor) logFinished(op *operation.Operation, errs []error, d time.Duration) {
	worst := errors.Worst(errs)
	args := []any{
		"operation_id", op.ID(),
		"operation", op.Name(),
		"state", op.State().String(),
		"errors", len(errs),
		"duration_ms", d.Milliseconds(),
	}
	if worst != nil {
		args = append(args, "outcome", errors.Classify(worst), "error", worst.Error())
	}
	switch errors.GetSeverity(worst) {
	case errors.SeverityCritical, errors.SeverityError:
		e.logger.Error("operation finished", args...)
	case errors.SeverityWarning:
		e.logger.Warn("operation finished", args...)
	default:
		e.logger.Debug("operation finished", args...)
	}
}

// Wait blocks until every submitted operation is terminal, or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.active == 0 {
			e.mu.Unlock()
			return nil
		}
		idle := e.idle
		e.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Cancel cancels the operation with the given ID.
func (e *Executor) Cancel(id string) error {
	e.mu.Lock()
	ent, ok := e.entries[id]
	e.mu.Unlock()
	if !ok {
		return errors.NewNotFoundError("operation", id)
	}
	if !ent.op.Cancel() {
		e.logger.Debug("cancel ignored, operation already finishing", "operation_id", id)
	}
	return nil
}

// Operation returns the operation with the given ID.
func (e *Executor) Operation(id string) (*operation.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("operation", id)
	}
	return ent.op, nil
}

func (e *Executor) markStarted(op *operation.Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[op.ID()]; ok {
		ent.started = true
	}
}

func (e *Executor) publish(ev event.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// startPublisher is the executor's own observer. It is appended after the
// caller's observers, so operation.started is published once they have all
// seen OnStart.
type startPublisher struct {
	e *Executor
}

func (s startPublisher) OnStart(op *operation.Operation) {
	s.e.markStarted(op)
	s.e.publish(event.NewOperationStartedEvent(op.ID(), op.Name()))
}

func (startPublisher) OnProduce(*operation.Operation, *operation.Operation) {}
func (startPublisher) OnFinish(*operation.Operation, []error)               {}
