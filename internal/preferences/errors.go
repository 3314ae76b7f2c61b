package preferences

import (
	"errors"
	"fmt"
)

var (
	// ErrCommitInProgress rejects input while a commit is being flushed.
	ErrCommitInProgress = errors.New("preferences: commit in progress")
	errMissingStore     = errors.New("preference store is required")
	errMissingEntity    = errors.New("entity is required")
)

// ResolutionError reports a cell whose period reference cannot be mapped to a numeric id.
type ResolutionError struct {
	PeriodID   int64
	PeriodUUID string
	Reason     string
}

func (e *ResolutionError) Error() string {
	switch {
	case e.PeriodUUID != "":
		return fmt.Sprintf("preferences: cannot resolve period %q: %s", e.PeriodUUID, e.Reason)
	case e.PeriodID != 0:
		return fmt.Sprintf("preferences: cannot resolve period %d: %s", e.PeriodID, e.Reason)
	default:
		return "preferences: cannot resolve period: " + e.Reason
	}
}

// ValidationError reports a click that cannot produce a pending change.
type ValidationError struct {
	CellIndex CellIndex
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.CellIndex == "" {
		return "preferences: invalid change: " + e.Reason
	}
	return fmt.Sprintf("preferences: invalid change for cell %s: %s", e.CellIndex, e.Reason)
}

// IsResolutionError reports whether err carries a ResolutionError.
func IsResolutionError(err error) bool {
	var target *ResolutionError
	return errors.As(err, &target)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
