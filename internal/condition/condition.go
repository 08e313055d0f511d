// Package condition provides the Conditions opcoord operations carry.
//
// MutuallyExclusive never fails and never blocks. It declares that no two
// operations carrying the same key may execute concurrently; a conforming
// executor enforces that by making the later operation depend on the
// earlier one. Predicate and After cover the failed and dependency
// outcomes of condition evaluation.
package condition

import (
	"context"
	"reflect"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/operation"
)

// Key names a shared resource that at most one operation may use at a time.
type Key string

// Well-known exclusivity keys.
const (
	// KeyAlertPresentation serializes modal alert presentation.
	KeyAlertPresentation Key = "AlertPresentation"
	// KeyViewHierarchy serializes view-hierarchy mutation.
	KeyViewHierarchy Key = "ViewHierarchyMutation"
	// KeyBrowserPresentation serializes in-app browser presentation.
	KeyBrowserPresentation Key = "BrowserPresentation"
)

// Exclusive is a mutual-exclusion condition. Two Exclusive conditions with
// the same key exclude each other; different keys are independent.
type Exclusive struct {
	key Key
}

// MutuallyExclusive returns the exclusion condition for key.
func MutuallyExclusive(key Key) Exclusive {
	return Exclusive{key: key}
}

// For returns the exclusion condition keyed by the name of type T.
func For[T any]() Exclusive {
	t := reflect.TypeOf((*T)(nil)).Elem()
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return Exclusive{key: Key(name)}
}

// Key returns the exclusivity key.
func (c Exclusive) Key() Key { return c.key }

// Name returns "MutuallyExclusive<key>".
func (c Exclusive) Name() string {
	return "MutuallyExclusive<" + string(c.key) + ">"
}

// MutuallyExclusive always reports true.
func (c Exclusive) MutuallyExclusive() bool { return true }

// Evaluate always reports Satisfied. Exclusivity is enforced by the
// executor's dependency insertion, not by this condition.
func (c Exclusive) Evaluate(context.Context, *operation.Operation) operation.Result {
	return operation.SatisfiedResult()
}

// Alert returns the conditions carried by an operation that presents an
// alert: it excludes other alerts and other view-hierarchy mutations.
func Alert() []operation.Condition {
	return []operation.Condition{
		MutuallyExclusive(KeyAlertPresentation),
		MutuallyExclusive(KeyViewHierarchy),
	}
}

// Browser returns the conditions carried by an operation that presents an
// in-app browser.
func Browser() []operation.Condition {
	return []operation.Condition{
		MutuallyExclusive(KeyViewHierarchy),
	}
}

// PredicateFunc decides whether an operation may run. A non-nil error is
// the failure reason.
type PredicateFunc func(ctx context.Context, op *operation.Operation) error

type predicate struct {
	name string
	fn   PredicateFunc
}

// Predicate returns a condition that fails with a ConditionError wrapping
// the error fn returns, and is satisfied otherwise.
func Predicate(name string, fn PredicateFunc) operation.Condition {
	return predicate{name: name, fn: fn}
}

func (p predicate) Name() string            { return p.name }
func (p predicate) MutuallyExclusive() bool { return false }

func (p predicate) Evaluate(ctx context.Context, op *operation.Operation) operation.Result {
	if err := ctx.Err(); err != nil {
		return operation.FailedResult(errors.NewConditionError(p.name, err).WithOperationID(op.ID()))
	}
	if p.fn == nil {
		return operation.SatisfiedResult()
	}
	if err := p.fn(ctx, op); err != nil {
		return operation.FailedResult(errors.NewConditionError(p.name, err).WithOperationID(op.ID()))
	}
	return operation.SatisfiedResult()
}

type after struct {
	dep *operation.Operation
}

// After returns a condition that asks the executor to run dep to
// completion first. It is satisfied once dep is terminal, whatever its
// outcome.
func After(dep *operation.Operation) operation.Condition {
	return after{dep: dep}
}

func (a after) Name() string            { return "After<" + a.dep.Name() + ">" }
func (a after) MutuallyExclusive() bool { return false }

func (a after) Evaluate(context.Context, *operation.Operation) operation.Result {
	if a.dep.State().IsTerminal() {
		return operation.SatisfiedResult()
	}
	return operation.DependencyResult(a.dep)
}

// ExclusiveKeys returns the names of the mutually exclusive conditions in
// conds, in order and without duplicates.
func ExclusiveKeys(conds []operation.Condition) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, c := range conds {
		if c == nil || !c.MutuallyExclusive() || seen[c.Name()] {
			continue
		}
		seen[c.Name()] = true
		keys = append(keys, c.Name())
	}
	return keys
}

var (
	_ operation.Condition = Exclusive{}
	_ operation.Condition = predicate{}
	_ operation.Condition = after{}
)
