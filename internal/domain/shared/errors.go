// Package shared contains the error taxonomy shared by all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Base kinds, checked with errors.Is().
var (
	// ErrNotFound: a course offering, outcome or approved syllabus is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument: a bad enum value or threshold.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstreamUnavailable: the clustering service timed out or answered non-2xx.
	// Never aborts a request.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInternal: an unexpected query or formula failure.
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "outcome", "attainment", "cluster", "query"
	Op      string // operation that failed, e.g. "LoadSnapshot"
	Kind    error  // base kind for errors.Is() checking
	Message string // human-readable message
	Scope   string // e.g. "course_offering=12 outcome=4"
	Stage   string // query stage, e.g. "load_edges:SO"
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s: %s", e.Domain, e.Op, e.Message)
	if e.Scope != "" {
		fmt.Fprintf(&b, " [%s]", e.Scope)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " (stage %s)", e.Stage)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// WithScope returns a copy carrying the diagnostic scope.
func (e *DomainError) WithScope(scope string) *DomainError {
	cp := *e
	cp.Scope = scope
	return &cp
}

// WithStage returns a copy carrying the query stage.
func (e *DomainError) WithStage(stage string) *DomainError {
	cp := *e
	cp.Stage = stage
	return &cp
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StageError wraps a repository failure as Internal with the stage attached.
func StageError(domain, op, stage string, err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) && de.Kind != nil && !errors.Is(de.Kind, ErrInternal) {
		// Preserve NotFound/InvalidArgument raised below the repository boundary.
		if de.Stage == "" {
			return de.WithStage(stage)
		}
		return de
	}
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrInternal,
		Message: "query failed",
		Stage:   stage,
		Err:     err,
	}
}

// Predefined errors.
var (
	ErrCourseOfferingNotFound = NewDomainError("outcome", "FindCourseOffering", ErrNotFound, "course offering not found")
	ErrOutcomeNotFound        = NewDomainError("outcome", "FindOutcome", ErrNotFound, "outcome not found in an approved syllabus")
	ErrInvalidThresholds      = NewDomainError("attainment", "Validate", ErrInvalidArgument, "thresholds must lie in [0,100] with low <= high")
	ErrInvalidPerformance     = NewDomainError("attainment", "Validate", ErrInvalidArgument, "performance filter must be all, high or low")
	ErrInvalidFamily          = NewDomainError("outcome", "Validate", ErrInvalidArgument, "unknown standard family")
	ErrClusteringDisabled     = NewDomainError("cluster", "Fetch", ErrUpstreamUnavailable, "clustering disabled")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument checks if the error is a validation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsUpstreamUnavailable checks if the error came from the clustering service.
func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

// IsInternal checks if the error is an internal failure.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
