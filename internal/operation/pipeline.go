package operation

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/logging"
)

// Pipeline delivers one operation's lifecycle events to its observers.
//
// It enforces the ordering contract: Start at most once, Produce only
// between Start and Finish, Finish exactly once and last. Each event
// reaches every observer in registration order before the next event is
// delivered. A panicking observer is recovered and logged; the others
// still receive the event.
type Pipeline struct {
	mu        sync.Mutex
	op        *Operation
	observers []Observer
	started   bool
	finished  bool
	strict    bool
	logger    *logging.Logger
}

// newPipeline freezes observers into a pipeline for op.
func newPipeline(op *Operation, observers []Observer, strict bool, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pipeline{
		op:        op,
		observers: append([]Observer(nil), observers...),
		strict:    strict,
		logger:    logger,
	}
}

// Start delivers OnStart. A second Start, or a Start after Finish, is a
// contract violation.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return p.violation("start after finish", errors.ErrAlreadyFinished)
	}
	if p.started {
		return p.violation("start delivered twice", errors.ErrNotExecuting)
	}
	p.started = true

	for _, o := range p.observers {
		p.safeCall("start", func() { o.OnStart(p.op) })
	}
	return nil
}

// Produce delivers OnProduce for child.
func (p *Pipeline) Produce(child *Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.finished {
		return p.violation("produce outside execution", errors.ErrNotExecuting)
	}
	for _, o := range p.observers {
		p.safeCall("produce", func() { o.OnProduce(p.op, child) })
	}
	return nil
}

// Finish delivers OnFinish with errs. It may be called exactly once.
func (p *Pipeline) Finish(errs []error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return p.violation("finish delivered twice", errors.ErrAlreadyFinished)
	}
	p.finished = true

	for _, o := range p.observers {
		// Each observer gets its own slice so one cannot corrupt another's view.
		snapshot := append([]error(nil), errs...)
		p.safeCall("finish", func() { o.OnFinish(p.op, snapshot) })
	}
	return nil
}

// Started reports whether OnStart was delivered.
func (p *Pipeline) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Finished reports whether OnFinish was delivered.
func (p *Pipeline) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Len returns the number of observers.
func (p *Pipeline) Len() int {
	return len(p.observers)
}

func (p *Pipeline) safeCall(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("observer panicked",
				"stage", stage,
				"operation_id", p.op.ID(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (p *Pipeline) violation(msg string, cause error) error {
	err := errors.NewContractError(msg, cause).
		WithComponent("pipeline").
		WithOperationID(p.op.ID())
	p.logger.Error("observer pipeline contract violation", "error", err.Error())
	if p.strict {
		panic(err)
	}
	return err
}
