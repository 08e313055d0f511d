// Package operation defines the unit of work that opcoord coordinates.
//
// An Operation carries a body, a set of Conditions evaluated before it
// runs, and a set of Observers notified of its lifecycle. Conditions and
// observers are attached before the operation is submitted to an executor;
// submission freezes them.
//
// # Lifecycle
//
//	pending → evaluating → ready → executing → finishing → finished
//
// An operation may instead end as cancelled from any state before
// finished. Exactly one terminal transition happens per operation. A
// second Finish is a contract violation: it is rejected with an error
// wrapping errors.ErrAlreadyFinished, and panics in strict mode.
//
// # Observer Pipeline
//
// Each submitted operation owns a Pipeline that delivers OnStart,
// OnProduce and OnFinish to its observers in registration order. OnStart
// happens at most once, OnProduce only while executing, and OnFinish
// exactly once as the last callback. An operation cancelled before it
// executes still delivers OnFinish, carrying errors.ErrCancelled, so
// observers that balance resources never leak.
//
// A panicking observer is recovered and logged. It does not stop delivery
// to the remaining observers, and it never becomes an operation error.
//
// # Basic Usage
//
//	op := operation.New("refresh", func(ctx context.Context, op *operation.Operation) {
//	    err := refresh(ctx)
//	    _ = op.Finish(err)
//	}, operation.WithObservers(indicator.Observer()))
//
//	if err := exec.Submit(op); err != nil {
//	    return err
//	}
//	<-op.Done()
package operation
