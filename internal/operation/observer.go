package operation

// Observer receives lifecycle notifications for one operation.
//
// For each operation, OnStart is delivered at most once, OnProduce zero or
// more times after OnStart, and OnFinish exactly once as the last
// callback. An operation cancelled before executing gets OnFinish without
// OnStart. Callbacks for one operation never overlap.
//
// Callbacks run while the operation's pipeline is locked, so an observer
// must not call Produce or Finish on the same operation from inside a
// callback: the call blocks on that lock and never returns. Hand such work
// to another goroutine.
type Observer interface {
	OnStart(op *Operation)
	OnProduce(op *Operation, child *Operation)
	OnFinish(op *Operation, errs []error)
}

// ObserverFuncs adapts plain functions to the Observer interface.
// Nil fields are no-ops.
type ObserverFuncs struct {
	Start   func(op *Operation)
	Produce func(op *Operation, child *Operation)
	Finish  func(op *Operation, errs []error)
}

// OnStart implements Observer.
func (f ObserverFuncs) OnStart(op *Operation) {
	if f.Start != nil {
		f.Start(op)
	}
}

// OnProduce implements Observer.
func (f ObserverFuncs) OnProduce(op *Operation, child *Operation) {
	if f.Produce != nil {
		f.Produce(op, child)
	}
}

// OnFinish implements Observer.
func (f ObserverFuncs) OnFinish(op *Operation, errs []error) {
	if f.Finish != nil {
		f.Finish(op, errs)
	}
}

var _ Observer = ObserverFuncs{}
