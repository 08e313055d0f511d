package scenario

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/opcoord/internal/condition"
	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/executor"
	"github.com/Iron-Ham/opcoord/internal/indicator"
	"github.com/Iron-Ham/opcoord/internal/lifecycle"
	"github.com/Iron-Ham/opcoord/internal/logging"
	"github.com/Iron-Ham/opcoord/internal/operation"
)

// Result summarizes a finished scenario run.
type Result struct {
	Name       string
	Elapsed    time.Duration
	Operations []executor.Snapshot
	Grants     lifecycle.EnvironmentStats
}

// Failed returns the operations that did not finish cleanly.
func (r *Result) Failed() []executor.Snapshot {
	var out []executor.Snapshot
	for _, s := range r.Operations {
		if s.State != operation.StateFinished || len(s.Errors) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Runner submits scenario operations to an executor and drives the
// environment timeline.
type Runner struct {
	exec      *executor.Executor
	env       *lifecycle.Environment
	indicator *indicator.Indicator
	bus       *event.Bus
	logger    *logging.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBus passes bus to the guards the runner creates.
func WithBus(b *event.Bus) RunnerOption {
	return func(r *Runner) { r.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l.WithComponent("scenario")
		}
	}
}

// NewRunner creates a Runner. exec must already be started. ind may be nil
// if no operation observes the indicator.
func NewRunner(exec *executor.Executor, env *lifecycle.Environment, ind *indicator.Indicator, opts ...RunnerOption) *Runner {
	r := &Runner{
		exec:      exec,
		env:       env,
		indicator: ind,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes sc and blocks until every operation is terminal and the
// timeline has played out, or ctx is done.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	start := time.Now()
	r.logger.Info("scenario started", "name", sc.Name, "operations", sc.Count())

	ops := make(map[string]*operation.Operation, len(sc.Operations))
	for i := range sc.Operations {
		spec := &sc.Operations[i]
		op, err := r.build(spec)
		if err != nil {
			return nil, err
		}
		ops[spec.Name] = op
	}
	for i := range sc.Operations {
		spec := &sc.Operations[i]
		for _, dep := range spec.After {
			if err := ops[spec.Name].AddCondition(condition.After(ops[dep])); err != nil {
				return nil, err
			}
		}
	}

	var wg sync.WaitGroup
	submitErrs := make(chan error, len(sc.Operations))

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.submitAll(ctx, start, sc.Operations, ops, submitErrs)
	}()
	go func() {
		defer wg.Done()
		r.playTimeline(ctx, start, sc.Timeline())
	}()
	wg.Wait()
	close(submitErrs)

	var errs []error
	for err := range submitErrs {
		errs = append(errs, err)
	}

	unsubmitted := r.abortUnsubmitted(sc.Operations, ops)

	err := r.exec.Wait(ctx)
	if err == nil && unsubmitted > 0 {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewTimeoutError("scenario "+sc.Name, time.Since(start)).WithCause(err)
		}
		return nil, errors.Wrap(err, "waiting for operations")
	}

	res := &Result{
		Name:       sc.Name,
		Elapsed:    time.Since(start),
		Operations: r.exec.Snapshots(),
		Grants:     r.env.Stats(),
	}
	r.logger.Info("scenario finished",
		"name", sc.Name,
		"elapsed_ms", res.Elapsed.Milliseconds(),
		"failed", len(res.Failed()))
	return res, errors.Join(errs...)
}

func (r *Runner) submitAll(ctx context.Context, start time.Time, specs []OperationSpec, ops map[string]*operation.Operation, errs chan<- error) {
	order := make([]int, len(specs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return specs[order[a]].Delay < specs[order[b]].Delay })

	for _, i := range order {
		spec := specs[i]
		if !sleepUntil(ctx, start.Add(spec.Delay.Std())) {
			return
		}
		op := ops[spec.Name]
		if op.Bound() {
			// Already submitted as another operation's dependency.
			continue
		}
		if err := r.exec.Submit(op); err != nil && !errors.Is(err, errors.ErrAlreadySubmitted) {
			errs <- errors.Wrapf(err, "submit %s", spec.Name)
		}
	}
}

// abortUnsubmitted cancels operations the run never handed to the
// executor, so their observers still see a finish.
func (r *Runner) abortUnsubmitted(specs []OperationSpec, ops map[string]*operation.Operation) int {
	n := 0
	for _, spec := range specs {
		op := ops[spec.Name]
		if op.Bound() {
			continue
		}
		if op.Abort(errors.ErrCancelled) {
			n++
			r.logger.Info("operation never submitted", "operation", spec.Name)
		}
	}
	return n
}

func (r *Runner) playTimeline(ctx context.Context, start time.Time, timeline []TransitionSpec) {
	for _, tr := range timeline {
		if !sleepUntil(ctx, start.Add(tr.At.Std())) {
			return
		}
		t, _ := lifecycle.ParseTransition(tr.Transition)
		r.logger.Debug("scenario transition", "transition", t.String(), "at_ms", tr.At.Std().Milliseconds())
		r.env.Apply(t)
	}
}

// build creates the operation for spec with its conditions and observers.
func (r *Runner) build(spec *OperationSpec) (*operation.Operation, error) {
	var conds []operation.Condition
	for _, key := range spec.Exclusive {
		conds = append(conds, condition.MutuallyExclusive(condition.Key(key)))
	}
	if spec.Blocked != "" {
		reason := errors.New(spec.Blocked)
		conds = append(conds, condition.Predicate("precondition", func(context.Context, *operation.Operation) error {
			return reason
		}))
	}

	var observers []operation.Observer
	for _, name := range spec.Observe {
		switch name {
		case ObserveIndicator:
			if r.indicator == nil {
				return nil, errors.NewValidationError("scenario uses the indicator but none is configured").
					WithField(spec.Name + ".observe")
			}
			observers = append(observers, r.indicator.Observer())
		case ObserveGuard:
			observers = append(observers, lifecycle.NewGuard(r.env,
				lifecycle.WithGuardName(spec.Name),
				lifecycle.WithGuardBus(r.bus),
				lifecycle.WithGuardLogger(r.logger)))
		}
	}

	body := r.body(spec)
	return operation.New(spec.Name, body,
		operation.WithConditions(conds...),
		operation.WithObservers(observers...)), nil
}

func (r *Runner) body(spec *OperationSpec) operation.Body {
	children := spec.Children
	duration := spec.Duration.Std()
	var failure error
	if spec.Fail != "" {
		failure = errors.New(spec.Fail)
	}

	return func(opCtx context.Context, op *operation.Operation) {
		for i := range children {
			child, err := r.build(&children[i])
			if err != nil {
				_ = op.Finish(err)
				return
			}
			if err := op.Produce(child); err != nil {
				child.Abort(errors.ErrCancelled)
				_ = op.Finish(err)
				return
			}
		}

		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = op.Finish(failure)
		case <-opCtx.Done():
			_ = op.Finish(opCtx.Err())
		}
	}
}

// sleepUntil waits for deadline. It returns false if ctx ended first.
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
