// Package errors provides centralized error definitions and error handling
// utilities for opcoord. It defines coordination sentinels, typed errors
// carrying operation context, and classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - ContractError: a caller broke a coordination contract (counter
//     underflow, second terminal signal, release with no grant outstanding)
//   - ConditionError: a condition reported failure for an operation
//   - OperationError: executor-level failures tied to one operation
//
// Semantic errors:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or configuration
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewContractError("decrement below zero", errors.ErrCounterUnderflow).
//	    WithComponent("indicator")
//
//	if errors.IsContractViolation(err) { ... }
//	if errors.Is(err, errors.ErrCounterUnderflow) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Contract sentinels. Each one means a caller broke a pairing rule.
var (
	// ErrCounterUnderflow indicates a decrement without a matching increment.
	ErrCounterUnderflow = New("counter decremented below zero")
	// ErrAlreadyFinished indicates a second terminal signal for one operation.
	ErrAlreadyFinished = New("operation already finished")
	// ErrNoGrant indicates a grant release with no grant outstanding.
	ErrNoGrant = New("no execution grant outstanding")
	// ErrNotExecuting indicates a produce or start outside the executing window.
	ErrNotExecuting = New("operation is not executing")
	// ErrObserversFrozen indicates an observer attached after submission.
	ErrObserversFrozen = New("observers are frozen after submission")
	// ErrAlreadySubmitted indicates an operation was submitted twice.
	ErrAlreadySubmitted = New("operation already submitted")
)

// Coordination sentinels.
var (
	// ErrCancelled marks an operation that was cancelled before finishing.
	ErrCancelled = New("operation cancelled")
	// ErrConditionFailed indicates that a condition was not satisfied.
	ErrConditionFailed = New("condition failed")
	// ErrOperationNotFound indicates an unknown operation id.
	ErrOperationNotFound = New("operation not found")
	// ErrExecutorStopped indicates a submit after the executor stopped.
	ErrExecutorStopped = New("executor stopped")
	// ErrGrantUnavailable indicates the host refused an execution grant.
	ErrGrantUnavailable = New("execution grant unavailable")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CoordError is the base interface for all opcoord errors.
type CoordError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// formatWithContext renders "<prefix> [k=v, ...]: message: cause".
func formatWithContext(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ContractError reports a broken caller contract: a mismatched
// start/stop pair, a double terminal signal, or a release with nothing to
// release. These are never retryable.
//
// Example:
//
//	err := errors.NewContractError("finish called twice", errors.ErrAlreadyFinished).
//	    WithOperationID("op-1")
//	fmt.Println(err) // "contract violation [operation=op-1]: finish called twice: operation already finished"
type ContractError struct {
	baseError
	Component   string
	OperationID string
}

// NewContractError creates a new ContractError.
func NewContractError(message string, cause error) *ContractError {
	return &ContractError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityCritical,
			retryable: false,
		},
	}
}

// WithComponent names the component whose contract was broken.
func (e *ContractError) WithComponent(component string) *ContractError {
	e.Component = component
	return e
}

// WithOperationID adds an operation ID to the error context.
func (e *ContractError) WithOperationID(id string) *ContractError {
	e.OperationID = id
	return e
}

// Error returns the formatted error message.
func (e *ContractError) Error() string {
	var parts []string
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", e.Component))
	}
	if e.OperationID != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.OperationID))
	}
	return formatWithContext("contract violation", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ContractError) Is(target error) bool {
	if _, ok := target.(*ContractError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConditionError reports that a condition evaluated to failed. It is
// delivered to observers through OnFinish; opcoord never retries it.
//
// Example:
//
//	err := errors.NewConditionError("reachability", cause).WithOperationID("op-1")
type ConditionError struct {
	baseError
	Condition   string
	OperationID string
}

// NewConditionError creates a ConditionError for the named condition.
func NewConditionError(condition string, reason error) *ConditionError {
	return &ConditionError{
		baseError: baseError{
			message:   fmt.Sprintf("condition %q not satisfied", condition),
			cause:     reason,
			severity:  SeverityWarning,
			retryable: false,
		},
		Condition: condition,
	}
}

// WithOperationID adds an operation ID to the error context.
func (e *ConditionError) WithOperationID(id string) *ConditionError {
	e.OperationID = id
	return e
}

// Error returns the formatted error message.
func (e *ConditionError) Error() string {
	var parts []string
	if e.OperationID != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.OperationID))
	}
	return formatWithContext("condition error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ConditionError) Is(target error) bool {
	if _, ok := target.(*ConditionError); ok {
		return true
	}
	if errors.Is(target, ErrConditionFailed) {
		return true
	}
	return e.baseError.Is(target)
}

// OperationError represents executor failures tied to one operation.
//
// Example:
//
//	err := errors.NewOperationError("dependency failed", cause).
//	    WithOperationID("op-2").WithName("sync")
type OperationError struct {
	baseError
	OperationID string
	Name        string
}

// NewOperationError creates a new OperationError.
func NewOperationError(message string, cause error) *OperationError {
	return &OperationError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: false,
		},
	}
}

// WithOperationID adds an operation ID to the error context.
func (e *OperationError) WithOperationID(id string) *OperationError {
	e.OperationID = id
	return e
}

// WithName adds the operation's display name to the error context.
func (e *OperationError) WithName(name string) *OperationError {
	e.Name = name
	return e
}

// WithSeverity sets the error severity.
func (e *OperationError) WithSeverity(s Severity) *OperationError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *OperationError) Error() string {
	var parts []string
	if e.OperationID != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.OperationID))
	}
	if e.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%s", e.Name))
	}
	return formatWithContext("operation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *OperationError) Is(target error) bool {
	if _, ok := target.(*OperationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("operation", "abc123")
//	fmt.Println(err) // "operation 'abc123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:   fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:  SeverityWarning,
			retryable: false,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("duration must be positive").
//	    WithField("operations[0].duration").WithValue("-1s")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:   message,
			severity:  SeverityWarning,
			retryable: false,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for operations", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for operations (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("timeout error: %s (timeout: %v): %v", e.Operation, e.Duration, e.cause)
	}
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.Operation, e.Duration)
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification
// -----------------------------------------------------------------------------

// IsContractViolation reports whether err records a broken caller contract.
// It matches ContractError values and the bare contract sentinels.
func IsContractViolation(err error) bool {
	if err == nil {
		return false
	}
	var contractErr *ContractError
	if As(err, &contractErr) {
		return true
	}
	return Is(err, ErrCounterUnderflow) || Is(err, ErrAlreadyFinished) ||
		Is(err, ErrNoGrant) || Is(err, ErrNotExecuting) ||
		Is(err, ErrObserversFrozen) || Is(err, ErrAlreadySubmitted)
}

// IsCancellation reports whether err marks a cancelled operation.
func IsCancellation(err error) bool {
	return err != nil && Is(err, ErrCancelled)
}

// IsRetryable returns true if the error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var coordErr CoordError
	if As(err, &coordErr) {
		return coordErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CoordError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    panic(err)
//	case errors.SeverityWarning:
//	    logger.Warn("warning", "error", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var coordErr CoordError
	if As(err, &coordErr) {
		return coordErr.Severity()
	}
	if IsCancellation(err) || Is(err, context.Canceled) {
		return SeverityInfo
	}
	if Is(err, context.DeadlineExceeded) {
		return SeverityWarning
	}

	return SeverityError
}

// Error classes reported for finished operations.
const (
	ClassContract  = "contract"
	ClassFailed    = "failed"
	ClassTimeout   = "timeout"
	ClassCondition = "condition"
	ClassCancelled = "cancelled"
)

// Classify names the kind of failure err records, or "" for nil.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case IsContractViolation(err):
		return ClassContract
	case Is(err, ErrConditionFailed):
		return ClassCondition
	case IsCancellation(err) || Is(err, context.Canceled):
		return ClassCancelled
	case Is(err, ErrTimeout) || Is(err, context.DeadlineExceeded):
		return ClassTimeout
	default:
		return ClassFailed
	}
}

// Worst returns the most severe error in errs by GetSeverity. Ties go to
// the earliest. It returns nil for an empty list.
func Worst(errs []error) error {
	var worst error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if worst == nil || GetSeverity(err) > GetSeverity(worst) {
			worst = err
		}
	}
	return worst
}

// Outcome classifies an operation's final error list. An empty list is a
// success and yields "".
func Outcome(errs []error) string {
	return Classify(Worst(errs))
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load scenario")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
