// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/tomo/internal/tensor"
)

// Type aliases for public API

// DataType is the on-disk element encoding of a dataset.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Uint16  DataType = tensor.Uint16
	Uint8   DataType = tensor.Uint8
)

// Shape represents the dimensions of an array.
// Example: Shape{2, 3, 4} represents a 3D array with dimensions 2×3×4.
type Shape = tensor.Shape

// Selector is a half-open index range [Start, Stop) along one dimension.
type Selector = tensor.Selector

// Region selects one Selector per dimension.
type Region = tensor.Region

// Array is a strided float32 N-dimensional array.
type Array = tensor.Array

// Zeros allocates a contiguous array filled with zeros.
func Zeros(shape Shape) *Array {
	return tensor.Zeros(shape)
}

// Full allocates a contiguous array with every element set to v.
func Full(shape Shape, v float32) *Array {
	return tensor.Full(shape, v)
}

// FromSlice wraps row-major data as an array of the given shape without
// copying it.
func FromSlice(data []float32, shape Shape) (*Array, error) {
	return tensor.FromSlice(data, shape)
}

// FullRegion returns the region covering every element of shape.
func FullRegion(shape Shape) Region {
	return tensor.FullRegion(shape)
}

// Cat concatenates arrays along dim.
func Cat(arrays []*Array, dim int) *Array {
	return tensor.Cat(arrays, dim)
}

// Stack joins equally shaped arrays along a new dimension inserted at dim.
func Stack(arrays []*Array, dim int) *Array {
	return tensor.Stack(arrays, dim)
}

// MeanAxis reduces a by its arithmetic mean along axis.
func MeanAxis(a *Array, axis int) *Array {
	return tensor.MeanAxis(a, axis)
}

// ParseDataType parses a data type name such as "float32" or "uint16".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}
