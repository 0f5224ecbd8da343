package pattern

import (
	"errors"
	"fmt"
	"math"
)

// Common errors.
var (
	ErrInvalidPattern  = errors.New("invalid access pattern")
	ErrInvalidName     = errors.New("invalid pattern name")
	ErrNoPatternActive = errors.New("no access pattern active")
	ErrUnknownPattern  = errors.New("unknown access pattern")
	ErrDuplicate       = errors.New("access pattern already registered")
)

// NoDim marks an InvalidPatternError that is not tied to a dimension.
const NoDim = math.MinInt

// InvalidPatternError identifies the pattern and dimension that broke the
// core/slice partition.
type InvalidPatternError struct {
	Pattern Name
	Dim     int
	Reason  string
	cause   error
}

// Error implements the error interface.
func (e *InvalidPatternError) Error() string {
	if e.Dim != NoDim {
		return fmt.Sprintf("invalid access pattern %s: dimension %d: %s", e.Pattern, e.Dim, e.Reason)
	}
	return fmt.Sprintf("invalid access pattern %s: %s", e.Pattern, e.Reason)
}

// Is makes every InvalidPatternError match ErrInvalidPattern.
func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// Unwrap returns the underlying cause, if any.
func (e *InvalidPatternError) Unwrap() error { return e.cause }
