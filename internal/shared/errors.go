package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a plan or profile does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a plan or delta violates an invariant.
	ErrValidation = errors.New("validation failed")

	// ErrMalformedAIOutput is returned when an agent response does not parse into a delta.
	ErrMalformedAIOutput = errors.New("malformed ai output")

	// ErrAIUnavailable is returned when an agent timed out or failed after retrying.
	ErrAIUnavailable = errors.New("ai unavailable")

	// ErrVersionConflict is returned when a commit is based on a stale version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrConflicted is returned when a conflict could not be merged or retried away.
	ErrConflicted = errors.New("conflicted")

	// ErrSuperseded is returned when a newer request for the same user replaced this one.
	ErrSuperseded = errors.New("superseded")
)

// Rejection reasons reported with ErrValidation.
const (
	ReasonIncompleteWeek     = "incomplete_week"
	ReasonIncompleteDay      = "incomplete_day"
	ReasonNegativeValue      = "negative_value"
	ReasonExceedsCeiling     = "exceeds_daily_ceiling"
	ReasonRestDayWorkload    = "rest_day_has_workload"
	ReasonCompletionReverted = "completion_reverted"
	ReasonCompletionByAgent  = "completion_set_by_agent"
	ReasonUnknownField       = "unknown_field"
	ReasonInvalidValue       = "invalid_value"
	ReasonEmptyDelta         = "empty_delta"
	ReasonMalformedAIOutput  = "malformed_ai_output"
	ReasonNothingToAdjust    = "nothing_to_adjust"
	ReasonWorkoutNotFound    = "unknown_workout"
	ReasonDuplicateWeekday   = "duplicate_weekday"
	ReasonInvalidRequest     = "invalid_request"
)

// ValidationError describes why a plan or delta was rejected and which field caused it.
type ValidationError struct {
	Reason string
	Field  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s at %s", e.Reason, e.Field)
}

// Is reports ErrValidation for every rejection and ErrMalformedAIOutput for
// rejected agent output.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return target == ErrMalformedAIOutput && e.Reason == ReasonMalformedAIOutput
}

// Rejectf builds a ValidationError with a formatted field path.
func Rejectf(reason, fieldFormat string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Field: fmt.Sprintf(fieldFormat, args...)}
}
