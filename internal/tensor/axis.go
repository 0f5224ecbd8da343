package tensor

import (
	"errors"
	"fmt"
)

// Axis errors.
var (
	ErrAxisOutOfRange = errors.New("axis out of range")
	ErrDuplicateAxis  = errors.New("duplicate axis")
)

// NormalizeAxis maps a possibly negative axis reference onto [0, rank).
//
// Negative values count from the end: -1 is the last dimension.
//
// Example:
//
//	NormalizeAxis(-1, 3) // 2, nil
//	NormalizeAxis(3, 3)  // 0, ErrAxisOutOfRange
func NormalizeAxis(axis, rank int) (int, error) {
	d := axis
	if d < 0 {
		d += rank
	}
	if d < 0 || d >= rank {
		return 0, fmt.Errorf("%w: %d for rank %d", ErrAxisOutOfRange, axis, rank)
	}
	return d, nil
}

// NormalizeAxes normalizes every axis in axes and rejects duplicates
// (including a negative and a positive reference to the same dimension).
// Input order is preserved.
func NormalizeAxes(axes []int, rank int) ([]int, error) {
	out := make([]int, len(axes))
	seen := make(map[int]struct{}, len(axes))
	for i, a := range axes {
		d, err := NormalizeAxis(a, rank)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d]; dup {
			return nil, fmt.Errorf("%w: %d (given as %d)", ErrDuplicateAxis, d, a)
		}
		seen[d] = struct{}{}
		out[i] = d
	}
	return out, nil
}

// MustNormalizeAxis is like NormalizeAxis but panics on error.
// Used by array helpers whose callers have already validated the axis.
func MustNormalizeAxis(axis, rank int) int {
	d, err := NormalizeAxis(axis, rank)
	if err != nil {
		panic(err.Error())
	}
	return d
}
