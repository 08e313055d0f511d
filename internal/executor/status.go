package executor

import (
	"time"

	"github.com/Iron-Ham/opcoord/internal/operation"
)

// Snapshot describes one submitted operation at a point in time.
type Snapshot struct {
	ID        string
	Name      string
	ParentID  string
	State     operation.State
	DependsOn []string
	Errors    []error
	Elapsed   time.Duration
}

// Status is a point-in-time summary of the executor.
type Status struct {
	Submitted int
	Active    int
	ByState   map[operation.State]int
}

// Count returns the number of operations in state s.
func (s Status) Count(st operation.State) int {
	return s.ByState[st]
}

// Status returns counts of submitted operations by state.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Submitted: len(e.order),
		Active:    e.active,
		ByState:   make(map[operation.State]int),
	}
	for _, id := range e.order {
		st.ByState[e.entries[id].op.State()]++
	}
	return st
}

// Snapshots returns every submitted operation in submission order.
func (e *Executor) Snapshots() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Snapshot, 0, len(e.order))
	for _, id := range e.order {
		ent := e.entries[id]
		out = append(out, Snapshot{
			ID:        id,
			Name:      ent.op.Name(),
			ParentID:  ent.parentID,
			State:     ent.op.State(),
			DependsOn: append([]string(nil), ent.dependsOn...),
			Errors:    ent.op.Errors(),
			Elapsed:   ent.op.Elapsed(),
		})
	}
	return out
}
