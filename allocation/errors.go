/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types of the core engine in one place. Callers and domain
  packages wrap these with additional context.

ERROR CATEGORIES:
  1. Input errors - Malformed entries or specs, rejected before any iteration
  2. Invariant violations - Capacity bookkeeping defects, fatal to a run
  3. Outcome conditions - Infeasibility and stagnation are NOT errors; they
     are reported in the ordinary Report

USAGE:
  Domain packages check with errors.Is/As:

    var capErr *allocation.CapacityExceededError
    if errors.As(err, &capErr) {
        log.Printf("bug: over-commit on %s", capErr.TopicID)
    }

SEE ALSO:
  - ledger.go: Raises CapacityExceededError
  - engine.go: Aborts the run on invariant violations
*/
package allocation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed entries or project specs.
	// Detected at construction time, before any mutation of shared state.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapacityExceeded is returned when a commit requests more hours than
	// remain available. This is an internal invariant violation: the engine's
	// clipping must prevent it, so seeing it means a defect, not bad input.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrReleaseExceedsCommitment is returned when a release requests more
	// hours than were committed for a (project, topic) pair. Like
	// ErrCapacityExceeded, it is fatal to the run.
	ErrReleaseExceedsCommitment = errors.New("release exceeds committed hours")

	// ErrUnknownTopic is returned when a commit or query names a topic the
	// ledger has no entries for.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError describes a malformed TimesheetEntry or ProjectSpec.
type InvalidInputError struct {
	Kind      string // "timesheet_entry" or "project_spec"
	Field     string
	Reason    string
	ProjectID ProjectID // Set for project_spec errors
}

func (e *InvalidInputError) Error() string {
	if e.ProjectID != "" {
		return fmt.Sprintf("invalid %s for project %s: %s %s", e.Kind, e.ProjectID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// CapacityExceededError carries full diagnostic state for the fatal case
// where clipping failed and a commit overshot remaining capacity.
type CapacityExceededError struct {
	Iteration int
	ProjectID ProjectID
	TopicID   TopicID
	Requested Amount
	Available Amount
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded on topic %s (project %s, iteration %d): requested %v hours, %v available",
		e.TopicID, e.ProjectID, e.Iteration, e.Requested.Value, e.Available.Value)
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInvariantViolation reports whether the error signals a bookkeeping defect
// that must abort the run rather than be reported in the result.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrReleaseExceedsCommitment)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnknownTopic)
}
