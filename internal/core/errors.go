package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityViolation signals an aggregation defect: a decomposition whose
	// effects do not add back up to the observed change.
	ErrIdentityViolation = errors.New("decomposition identity violated")

	// ErrInputUnavailable means the snapshot could not be read; the run aborts.
	ErrInputUnavailable = errors.New("input snapshot unavailable")

	// ErrMonthNotFound means a requested month has no rows in the table.
	ErrMonthNotFound = errors.New("month not found")
)

// IdentityError describes one failed consistency check.
type IdentityError struct {
	Family    Family
	Dimension Dimension
	Month     Month
	Check     string
	Expected  float64
	Actual    float64
}

func (e *IdentityError) Error() string {
	if e.Dimension != "" {
		return fmt.Sprintf("%s (%s/%s) %s: %s expected %.10g, got %.10g",
			ErrIdentityViolation, e.Family, e.Dimension, e.Month, e.Check, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s (%s) %s: %s expected %.10g, got %.10g",
		ErrIdentityViolation, e.Family, e.Month, e.Check, e.Expected, e.Actual)
}

func (e *IdentityError) Unwrap() error {
	return ErrIdentityViolation
}

// IsIdentityViolation reports whether err stems from a failed consistency check.
func IsIdentityViolation(err error) bool {
	return errors.Is(err, ErrIdentityViolation)
}
