// Package padding expands frame regions with neighbourhood context.
//
// Padding is best-effort: a margin that runs past the dataset edge is
// clamped, never rejected. The returned offset tells the caller where the
// unpadded frame sits inside the padded read.
package padding

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/tensor"
)

// Common errors.
var (
	ErrCoreDimPadding = errors.New("padding requested on a core dimension")
	ErrInvalidMargin  = errors.New("invalid padding margin")
)

// Margin is the number of extra elements read before and after a frame.
type Margin struct {
	Before int
	After  int
}

// Spec maps a dimension to its margin.
type Spec map[int]Margin

// Error identifies the dimension of a rejected padding request.
type Error struct {
	Pattern pattern.Name
	Dim     int
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("padding for %s: dimension %d: %v", e.Pattern, e.Dim, e.cause)
}

// Unwrap returns ErrCoreDimPadding, ErrInvalidMargin or an axis error.
func (e *Error) Unwrap() error { return e.cause }

// Normalize validates s against pattern p and returns a copy keyed by
// non-negative dimensions. Only slice dimensions may be padded.
func (s Spec) Normalize(p pattern.Pattern) (Spec, error) {
	out := make(Spec, len(s))
	for _, dim := range slices.Sorted(maps.Keys(s)) {
		m := s[dim]
		d, err := tensor.NormalizeAxis(dim, p.Rank())
		if err != nil {
			return nil, &Error{Pattern: p.Name, Dim: dim, cause: err}
		}
		if m.Before < 0 || m.After < 0 {
			return nil, &Error{Pattern: p.Name, Dim: d, cause: fmt.Errorf("%w: %+v", ErrInvalidMargin, m)}
		}
		if p.IsCore(d) {
			return nil, &Error{Pattern: p.Name, Dim: d, cause: ErrCoreDimPadding}
		}
		if prev, dup := out[d]; dup {
			return nil, &Error{Pattern: p.Name, Dim: d, cause: fmt.Errorf("%w: given twice (%+v, %+v)", ErrInvalidMargin, prev, m)}
		}
		out[d] = m
	}
	return out, nil
}

// Empty reports whether the spec requests no padding at all.
func (s Spec) Empty() bool {
	for _, m := range s {
		if m.Before > 0 || m.After > 0 {
			return false
		}
	}
	return true
}

// Padded is a region expanded by a Spec.
type Padded struct {
	Region tensor.Region // The clamped read region.
	Offset []int         // Position of the original region inside Region.
}

// Resolve expands region by spec, clamped to shape.
//
// For a padded dimension d:
//
//	start' = max(0, start - before)
//	stop'  = min(shape[d], stop + after)
//	offset = start - start'
//
// Dimensions without a margin are returned unchanged with offset 0.
func Resolve(region tensor.Region, shape tensor.Shape, spec Spec) Padded {
	out := Padded{
		Region: region.Clone(),
		Offset: make([]int, len(region)),
	}
	for d, m := range spec {
		if d < 0 || d >= len(region) {
			continue
		}
		sel := region[d]
		start := max(0, sel.Start-m.Before)
		stop := min(shape[d], sel.Stop+m.After)
		out.Region[d] = tensor.Selector{Start: start, Stop: stop}
		out.Offset[d] = sel.Start - start
	}
	return out
}

// Clamped reports whether any margin of spec was cut short at a boundary.
func (p Padded) Clamped(region tensor.Region, spec Spec) bool {
	for d, m := range spec {
		if d < 0 || d >= len(region) {
			continue
		}
		if p.Offset[d] < m.Before || p.Region[d].Stop-region[d].Stop < m.After {
			return true
		}
	}
	return false
}

// Crop returns the view of a (laid out like p.Region) that corresponds to
// the original unpadded region.
func Crop(a *tensor.Array, region tensor.Region, p Padded) (*tensor.Array, error) {
	if !a.Shape().Equal(p.Region.Shape()) {
		return nil, fmt.Errorf("crop: array shape %v does not match padded region %v", a.Shape(), p.Region)
	}
	inner := make(tensor.Region, len(region))
	for d, sel := range region {
		inner[d] = tensor.Selector{Start: p.Offset[d], Stop: p.Offset[d] + sel.Len()}
	}
	return a.View(inner)
}
