package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Cat concatenates arrays along the specified dimension.
//
// All arrays must have the same shape except along the concatenation dimension.
// Supports negative dim indexing (-1 = last dimension).
//
// Example:
//
//	a := tensor.Zeros(tensor.Shape{2, 3})
//	b := tensor.Zeros(tensor.Shape{2, 5})
//	c := tensor.Cat([]*tensor.Array{a, b}, 1) // Shape: [2, 8]
func Cat(arrays []*Array, dim int) *Array {
	if len(arrays) == 0 {
		panic("cat: at least one array required")
	}

	shape := arrays[0].Shape()
	ndim := len(shape)
	dim = MustNormalizeAxis(dim, ndim)

	// Validate shapes and calculate total size along concat dimension
	totalDim := 0
	for i, a := range arrays {
		aShape := a.Shape()
		if len(aShape) != ndim {
			panic(fmt.Sprintf("cat: array %d has %d dimensions, expected %d", i, len(aShape), ndim))
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				totalDim += aShape[d]
			} else if aShape[d] != shape[d] {
				panic(fmt.Sprintf("cat: array %d dimension %d is %d, expected %d", i, d, aShape[d], shape[d]))
			}
		}
	}

	outShape := shape.Clone()
	outShape[dim] = totalDim
	result := Zeros(outShape)

	r := FullRegion(outShape)
	pos := 0
	for _, a := range arrays {
		r[dim] = Selector{Start: pos, Stop: pos + a.shape[dim]}
		if err := result.Assign(r, a); err != nil {
			panic(fmt.Sprintf("cat: %v", err))
		}
		pos += a.shape[dim]
	}
	return result
}

// Stack joins equally shaped arrays along a new dimension inserted at dim.
//
// Example:
//
//	a := tensor.Zeros(tensor.Shape{3, 4})
//	s := tensor.Stack([]*tensor.Array{a, a}, 0) // Shape: [2, 3, 4]
func Stack(arrays []*Array, dim int) *Array {
	if len(arrays) == 0 {
		panic("stack: at least one array required")
	}
	views := make([]*Array, len(arrays))
	for i, a := range arrays {
		if !a.shape.Equal(arrays[0].shape) {
			panic(fmt.Sprintf("stack: array %d has shape %v, expected %v", i, a.shape, arrays[0].shape))
		}
		views[i] = a.Unsqueeze(dim)
	}
	return Cat(views, dim)
}

// MeanAxis reduces the array by taking the arithmetic mean along axis.
// The reduced dimension is removed from the result.
func MeanAxis(a *Array, axis int) *Array {
	d := MustNormalizeAxis(axis, a.Rank())
	outShape := a.shape.Without(d)
	out := Zeros(outShape)

	n := a.shape[d]
	values := make([]float64, n)
	src := make([]int, a.Rank())
	i := 0
	ForEachIndex(outShape, func(idx []int) {
		for k, j := 0, 0; k < len(src); k++ {
			if k == d {
				continue
			}
			src[k] = idx[j]
			j++
		}
		for k := 0; k < n; k++ {
			src[d] = k
			values[k] = float64(a.At(src...))
		}
		out.data[i] = float32(stat.Mean(values, nil))
		i++
	})
	return out
}
