// Package slicing turns an access pattern into the ordered list of frames a
// stage processes and groups those frames into chunks.
package slicing

import (
	"fmt"

	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/tensor"
)

// Generate returns one region per frame of shape under pattern p.
//
// Frames are enumerated in row-major order over p.Slice: the last listed
// slice dimension varies fastest. Core dimensions span their full extent and
// each slice dimension is a unit selector. A fixed direction counts as a
// slice dimension of extent 1 at its fixed value.
//
// The result has product(shape[d] for d in p.Slice) entries, 1 when the
// pattern has no slice dimensions.
func Generate(shape tensor.Shape, p pattern.Pattern, fixed *FixedDirections) ([]tensor.Region, error) {
	if p.Rank() != len(shape) {
		return nil, fmt.Errorf("pattern %s has rank %d, shape %v has rank %d", p.Name, p.Rank(), shape, len(shape))
	}
	if fixed != nil {
		if err := fixed.check(p, shape); err != nil {
			return nil, err
		}
	}

	// Extent and origin of every slice dimension.
	extents := make(tensor.Shape, len(p.Slice))
	origins := make([]int, len(p.Slice))
	for i, d := range p.Slice {
		extents[i] = shape[d]
		if v, ok := fixed.Value(d); ok {
			extents[i] = 1
			origins[i] = v
		}
	}

	base := tensor.FullRegion(shape)
	frames := make([]tensor.Region, 0, Count(shape, p, fixed))
	counter := make([]int, len(extents))
	for {
		frame := base.Clone()
		for i, d := range p.Slice {
			at := origins[i] + counter[i]
			frame[d] = tensor.Selector{Start: at, Stop: at + 1}
		}
		frames = append(frames, frame)

		i := len(counter) - 1
		for ; i >= 0; i-- {
			counter[i]++
			if counter[i] < extents[i] {
				break
			}
			counter[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return frames, nil
}

// Count returns the number of frames Generate would produce, without
// materializing them. fixed must already be valid for p and shape.
func Count(shape tensor.Shape, p pattern.Pattern, fixed *FixedDirections) int {
	n := 1
	for _, d := range p.Slice {
		if _, ok := fixed.Value(d); ok {
			continue
		}
		n *= shape[d]
	}
	return n
}
