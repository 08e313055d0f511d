package operation

import "context"

// ResultKind classifies a condition evaluation.
type ResultKind int

const (
	// Satisfied means the operation may proceed.
	Satisfied ResultKind = iota
	// Failed means the operation must not execute. Result.Err carries the reason.
	Failed
	// NeedsDependency means Result.Dependency must run to completion before
	// the condition is evaluated again.
	NeedsDependency
)

// String returns the string representation of the result kind.
func (k ResultKind) String() string {
	switch k {
	case Satisfied:
		return "satisfied"
	case Failed:
		return "failed"
	case NeedsDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Result is the outcome of Condition.Evaluate.
type Result struct {
	Kind       ResultKind
	Err        error
	Dependency *Operation
}

// SatisfiedResult returns a Satisfied result.
func SatisfiedResult() Result {
	return Result{Kind: Satisfied}
}

// FailedResult returns a Failed result carrying reason.
func FailedResult(reason error) Result {
	return Result{Kind: Failed, Err: reason}
}

// DependencyResult returns a result asking the executor to run dep first.
func DependencyResult(dep *Operation) Result {
	return Result{Kind: NeedsDependency, Dependency: dep}
}

// Condition gates an operation before it executes.
//
// Evaluate must be idempotent and free of side effects other than the
// dependency it may return. ctx is cancelled when the operation is
// cancelled or the executor stops.
type Condition interface {
	// Name identifies the condition for diagnostics. For mutually exclusive
	// conditions it is also the exclusivity scope: equal names exclude
	// each other.
	Name() string

	// MutuallyExclusive reports whether two operations carrying a
	// condition with this Name may not execute concurrently.
	MutuallyExclusive() bool

	// Evaluate decides whether op may proceed.
	Evaluate(ctx context.Context, op *Operation) Result
}
