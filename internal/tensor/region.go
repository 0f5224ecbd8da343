package tensor

import (
	"fmt"
	"strings"
)

// Selector is a half-open index range [Start, Stop) along one dimension.
type Selector struct {
	Start int
	Stop  int
}

// Len returns the number of indices covered by the selector.
func (s Selector) Len() int {
	if s.Stop <= s.Start {
		return 0
	}
	return s.Stop - s.Start
}

// String formats the selector in slice notation.
func (s Selector) String() string {
	return fmt.Sprintf("%d:%d", s.Start, s.Stop)
}

// Region is a rectangular selection with one Selector per dimension.
type Region []Selector

// FullRegion returns the region covering every element of shape.
func FullRegion(shape Shape) Region {
	r := make(Region, len(shape))
	for i, dim := range shape {
		r[i] = Selector{Start: 0, Stop: dim}
	}
	return r
}

// Shape returns the extent of the region in each dimension.
func (r Region) Shape() Shape {
	s := make(Shape, len(r))
	for i, sel := range r {
		s[i] = sel.Len()
	}
	return s
}

// Clone returns a copy of the region.
func (r Region) Clone() Region {
	out := make(Region, len(r))
	copy(out, r)
	return out
}

// Equal reports whether two regions select the same ranges.
func (r Region) Equal(other Region) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Within checks that the region is non-empty and lies inside shape.
func (r Region) Within(shape Shape) error {
	if len(r) != len(shape) {
		return fmt.Errorf("region rank %d does not match shape rank %d", len(r), len(shape))
	}
	for d, sel := range r {
		if sel.Start < 0 || sel.Stop > shape[d] || sel.Len() <= 0 {
			return fmt.Errorf("region %v out of bounds in dimension %d (size %d)", r, d, shape[d])
		}
	}
	return nil
}

// String formats the region in slice notation, e.g. [0:1, 0:135, 0:160].
func (r Region) String() string {
	parts := make([]string, len(r))
	for i, sel := range r {
		parts[i] = sel.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
