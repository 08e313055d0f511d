// Package scenario loads and runs scripted operation workloads.
//
// A scenario lists operations to submit, with their durations, exclusivity
// keys, observers and children, plus a timeline of host environment
// transitions. The CLI runs scenarios to exercise the coordination layer
// end to end.
package scenario

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/lifecycle"
)

// Observer names accepted in OperationSpec.Observe.
const (
	ObserveIndicator = "indicator"
	ObserveGuard     = "guard"
)

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Scenario is a scripted workload.
type Scenario struct {
	Name        string           `yaml:"name"`
	Operations  []OperationSpec  `yaml:"operations"`
	Environment []TransitionSpec `yaml:"environment,omitempty"`
}

// OperationSpec describes one operation.
type OperationSpec struct {
	Name string `yaml:"name"`
	// Delay is how long after the scenario starts the operation is submitted.
	Delay Duration `yaml:"delay,omitempty"`
	// Duration is how long the body runs before finishing.
	Duration Duration `yaml:"duration"`
	// Exclusive lists mutual-exclusion keys.
	Exclusive []string `yaml:"exclusive,omitempty"`
	// After names top-level operations that must finish first.
	After []string `yaml:"after,omitempty"`
	// Blocked, if set, is a precondition failure reason: the operation
	// never executes.
	Blocked string `yaml:"blocked,omitempty"`
	// Fail, if set, is the error the body finishes with.
	Fail string `yaml:"fail,omitempty"`
	// Observe lists built-in observers: "indicator" and "guard".
	Observe []string `yaml:"observe,omitempty"`
	// Children are produced when the body starts.
	Children []OperationSpec `yaml:"children,omitempty"`
}

// TransitionSpec is one environment change on the scenario timeline.
type TransitionSpec struct {
	At         Duration `yaml:"at"`
	Transition string   `yaml:"transition"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario file")
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return sc, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.NewValidationError("invalid scenario YAML").WithCause(err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks names, references, durations and transitions.
func (s *Scenario) Validate() error {
	if len(s.Operations) == 0 {
		return errors.NewValidationError("scenario has no operations").WithField("operations")
	}

	topLevel := make(map[string]bool, len(s.Operations))
	for _, op := range s.Operations {
		if topLevel[op.Name] {
			return errors.NewValidationError("duplicate operation name").
				WithField("operations.name").
				WithValue(op.Name)
		}
		topLevel[op.Name] = true
	}

	for i := range s.Operations {
		if err := s.Operations[i].validate("operations", topLevel, true); err != nil {
			return err
		}
	}

	for i, tr := range s.Environment {
		field := fmt.Sprintf("environment[%d]", i)
		if _, ok := lifecycle.ParseTransition(tr.Transition); !ok {
			return errors.NewValidationError("transition must be background or foreground").
				WithField(field + ".transition").
				WithValue(tr.Transition)
		}
		if tr.At < 0 {
			return errors.NewValidationError("transition time must not be negative").
				WithField(field + ".at").
				WithValue(tr.At.Std().String())
		}
	}
	return nil
}

func (o *OperationSpec) validate(path string, topLevel map[string]bool, isTop bool) error {
	field := path + "." + o.Name
	if o.Name == "" {
		return errors.NewValidationError("operation name is required").WithField(path + ".name")
	}
	if o.Duration < 0 || o.Delay < 0 {
		return errors.NewValidationError("durations must not be negative").WithField(field)
	}
	if !isTop && o.Delay != 0 {
		return errors.NewValidationError("children are submitted by their parent and cannot have a delay").
			WithField(field + ".delay")
	}
	for _, dep := range o.After {
		if !topLevel[dep] {
			return errors.NewValidationError("after references an unknown operation").
				WithField(field + ".after").
				WithValue(dep)
		}
		if dep == o.Name {
			return errors.NewValidationError("operation cannot run after itself").
				WithField(field + ".after").
				WithValue(dep)
		}
	}
	for _, obs := range o.Observe {
		if obs != ObserveIndicator && obs != ObserveGuard {
			return errors.NewValidationError("unknown observer").
				WithField(field + ".observe").
				WithValue(obs)
		}
	}
	for i := range o.Children {
		if err := o.Children[i].validate(field+".children", topLevel, false); err != nil {
			return err
		}
	}
	return nil
}

// Timeline returns the environment transitions sorted by time.
func (s *Scenario) Timeline() []TransitionSpec {
	out := append([]TransitionSpec(nil), s.Environment...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// Count returns the number of operations including children.
func (s *Scenario) Count() int {
	var count func([]OperationSpec) int
	count = func(specs []OperationSpec) int {
		n := len(specs)
		for _, sp := range specs {
			n += count(sp.Children)
		}
		return n
	}
	return count(s.Operations)
}
