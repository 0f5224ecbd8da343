package slicing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/tensor"
)

// ErrInvalidFixedDirection is matched by every InvalidFixedDirectionError.
var ErrInvalidFixedDirection = errors.New("invalid fixed direction")

// InvalidFixedDirectionError reports a dimension that cannot be fixed.
type InvalidFixedDirectionError struct {
	Pattern pattern.Name
	Dim     int
	Value   int
	Reason  string
}

// Error implements the error interface.
func (e *InvalidFixedDirectionError) Error() string {
	return fmt.Sprintf("invalid fixed direction for %s: dimension %d = %d: %s", e.Pattern, e.Dim, e.Value, e.Reason)
}

// Is makes every InvalidFixedDirectionError match ErrInvalidFixedDirection.
func (e *InvalidFixedDirectionError) Is(target error) bool {
	return target == ErrInvalidFixedDirection
}

// FixedDirections restricts slice dimensions of the active pattern to a
// single index, so a pattern can be replayed along an externally driven
// parameter axis. The zero value fixes nothing; a nil pointer is valid.
type FixedDirections struct {
	pattern pattern.Name
	dims    []int
	values  []int
}

// Fix validates and records dims[i] = values[i] for pattern p over shape.
//
// Every dimension must be a slice dimension of p and every value must be in
// range. On error nothing is changed.
func (f *FixedDirections) Fix(dims, values []int, p pattern.Pattern, shape tensor.Shape) error {
	if len(dims) != len(values) {
		return &InvalidFixedDirectionError{
			Pattern: p.Name, Dim: -1, Value: -1,
			Reason: fmt.Sprintf("%d dimensions but %d values", len(dims), len(values)),
		}
	}

	nd := make([]int, len(dims))
	for i, d := range dims {
		n, err := tensor.NormalizeAxis(d, len(shape))
		if err != nil {
			return &InvalidFixedDirectionError{Pattern: p.Name, Dim: d, Value: values[i], Reason: err.Error()}
		}
		if !p.IsSlice(n) {
			return &InvalidFixedDirectionError{Pattern: p.Name, Dim: n, Value: values[i], Reason: "not a slice dimension"}
		}
		if slices.Contains(nd[:i], n) {
			return &InvalidFixedDirectionError{Pattern: p.Name, Dim: n, Value: values[i], Reason: "fixed twice"}
		}
		if values[i] < 0 || values[i] >= shape[n] {
			return &InvalidFixedDirectionError{
				Pattern: p.Name, Dim: n, Value: values[i],
				Reason: fmt.Sprintf("value out of range [0, %d)", shape[n]),
			}
		}
		nd[i] = n
	}

	f.pattern = p.Name
	f.dims = nd
	f.values = slices.Clone(values)
	return nil
}

// Unfix clears every fixed direction.
func (f *FixedDirections) Unfix() {
	f.pattern = ""
	f.dims = nil
	f.values = nil
}

// Value returns the fixed index of dim, if dim is fixed.
func (f *FixedDirections) Value(dim int) (int, bool) {
	if f == nil {
		return 0, false
	}
	i := slices.Index(f.dims, dim)
	if i < 0 {
		return 0, false
	}
	return f.values[i], true
}

// Len returns the number of fixed dimensions.
func (f *FixedDirections) Len() int {
	if f == nil {
		return 0
	}
	return len(f.dims)
}

// check re-validates the recorded directions against the pattern in use.
func (f *FixedDirections) check(p pattern.Pattern, shape tensor.Shape) error {
	for i, d := range f.dims {
		if !p.IsSlice(d) {
			return &InvalidFixedDirectionError{Pattern: p.Name, Dim: d, Value: f.values[i], Reason: "not a slice dimension"}
		}
		if f.values[i] >= shape[d] {
			return &InvalidFixedDirectionError{Pattern: p.Name, Dim: d, Value: f.values[i], Reason: "value out of range"}
		}
	}
	return nil
}
