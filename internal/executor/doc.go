// Package executor provides a reference executor for opcoord operations.
//
// The executor honours the contract that operations, conditions and
// observers rely on:
//
//   - every condition is evaluated before OnStart;
//   - a condition that needs a dependency has that dependency submitted
//     and run to completion before it is evaluated again;
//   - a failed condition ends the operation without executing it, and
//     its observers receive OnFinish with the reasons;
//   - operations carrying a mutually exclusive condition with the same
//     name never execute concurrently.
//
// Exclusivity is enforced by inserting a dependency on the previous
// unfinished holder of the same condition name at submission time. The
// executor never takes a lock on behalf of a condition.
//
// # Lifecycle
//
//	exec := executor.New(executor.WithMaxConcurrent(4), executor.WithBus(bus))
//	if err := exec.Start(ctx); err != nil {
//	    return err
//	}
//	defer exec.Stop()
//
//	_ = exec.Submit(op)
//	_ = exec.Wait(ctx)
//
// Bodies run on a bounded goroutine pool. A body that panics is finished
// with the panic as its error; in strict mode the panic propagates.
package executor
