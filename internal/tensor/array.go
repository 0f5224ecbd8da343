package tensor

import (
	"fmt"
)

// Array is a strided float32 N-dimensional array.
//
// Arrays returned by View, Unsqueeze, Squeeze and Expand share memory with
// their parent. Expand produces zero strides, so a broadcast view can present
// the same element at many logical positions without copying it.
type Array struct {
	data    []float32
	shape   Shape
	strides []int
	offset  int
}

// Zeros allocates a contiguous array filled with zeros.
// Panics if the shape is invalid.
func Zeros(shape Shape) *Array {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("zeros: %v", err))
	}
	return &Array{
		data:    make([]float32, shape.NumElements()),
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
	}
}

// Full allocates a contiguous array with every element set to v.
func Full(shape Shape, v float32) *Array {
	a := Zeros(shape)
	for i := range a.data {
		a.data[i] = v
	}
	return a
}

// FromSlice wraps data (row-major) as an array of the given shape.
// The slice is not copied.
func FromSlice(data []float32, shape Shape) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	return &Array{
		data:    data,
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
	}, nil
}

// Shape returns the array's shape.
func (a *Array) Shape() Shape {
	return a.shape
}

// Strides returns the element strides of the array.
func (a *Array) Strides() []int {
	return a.strides
}

// Rank returns the number of dimensions.
func (a *Array) Rank() int {
	return len(a.shape)
}

// NumElements returns the total number of logical elements.
func (a *Array) NumElements() int {
	return a.shape.NumElements()
}

// IsContiguous reports whether the array is laid out densely in row-major order.
func (a *Array) IsContiguous() bool {
	want := a.shape.ComputeStrides()
	for i := range want {
		if a.shape[i] != 1 && a.strides[i] != want[i] {
			return false
		}
	}
	return true
}

func (a *Array) index(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("index rank %d does not match array rank %d", len(idx), len(a.shape)))
	}
	off := a.offset
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("index %v out of bounds for shape %v", idx, a.shape))
		}
		off += v * a.strides[i]
	}
	return off
}

// At returns the element at the given multi-index.
func (a *Array) At(idx ...int) float32 {
	return a.data[a.index(idx)]
}

// Set stores v at the given multi-index.
func (a *Array) Set(v float32, idx ...int) {
	a.data[a.index(idx)] = v
}

// Data returns the elements in row-major order.
//
// For contiguous arrays the returned slice aliases the array's memory;
// otherwise a packed copy is returned.
func (a *Array) Data() []float32 {
	if a.IsContiguous() {
		return a.data[a.offset : a.offset+a.NumElements()]
	}
	return a.Contiguous().data
}

// Contiguous returns a densely packed copy of the array.
func (a *Array) Contiguous() *Array {
	out := Zeros(a.shape)
	i := 0
	ForEachIndex(a.shape, func(idx []int) {
		out.data[i] = a.data[a.index(idx)]
		i++
	})
	return out
}

// Clone returns a contiguous deep copy.
func (a *Array) Clone() *Array {
	return a.Contiguous()
}

// View returns a view of the elements selected by r.
func (a *Array) View(r Region) (*Array, error) {
	if err := r.Within(a.shape); err != nil {
		return nil, fmt.Errorf("view: %w", err)
	}
	off := a.offset
	for d, sel := range r {
		off += sel.Start * a.strides[d]
	}
	strides := make([]int, len(a.strides))
	copy(strides, a.strides)
	return &Array{
		data:    a.data,
		shape:   r.Shape(),
		strides: strides,
		offset:  off,
	}, nil
}

// Assign copies src into the part of a selected by r.
// The shape of src must equal the shape of r.
func (a *Array) Assign(r Region, src *Array) error {
	if err := r.Within(a.shape); err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	if !r.Shape().Equal(src.shape) {
		return fmt.Errorf("assign: source shape %v does not match region %v", src.shape, r)
	}
	dst := make([]int, len(r))
	ForEachIndex(src.shape, func(idx []int) {
		for d := range idx {
			dst[d] = r[d].Start + idx[d]
		}
		a.data[a.index(dst)] = src.data[src.index(idx)]
	})
	return nil
}

// Unsqueeze returns a view with a dimension of size 1 inserted at axis.
// Supports negative axis indexing (valid range is [-rank-1, rank]).
func (a *Array) Unsqueeze(axis int) *Array {
	ndim := len(a.shape)
	d := MustNormalizeAxis(axis, ndim+1)

	shape := make(Shape, 0, ndim+1)
	strides := make([]int, 0, ndim+1)
	shape = append(shape, a.shape[:d]...)
	strides = append(strides, a.strides[:d]...)
	shape = append(shape, 1)
	strides = append(strides, 0)
	shape = append(shape, a.shape[d:]...)
	strides = append(strides, a.strides[d:]...)

	return &Array{data: a.data, shape: shape, strides: strides, offset: a.offset}
}

// Squeeze returns a view without the size-1 dimension at axis.
// Panics if the dimension size is not 1.
func (a *Array) Squeeze(axis int) *Array {
	d := MustNormalizeAxis(axis, len(a.shape))
	if a.shape[d] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d has size %d, must be 1", d, a.shape[d]))
	}

	shape := make(Shape, 0, len(a.shape)-1)
	strides := make([]int, 0, len(a.shape)-1)
	for i := range a.shape {
		if i != d {
			shape = append(shape, a.shape[i])
			strides = append(strides, a.strides[i])
		}
	}
	return &Array{data: a.data, shape: shape, strides: strides, offset: a.offset}
}

// Expand returns a broadcast view in which the size-1 dimension at axis is
// presented n times. No element is copied: the view has stride 0 on axis.
func (a *Array) Expand(axis, n int) *Array {
	d := MustNormalizeAxis(axis, len(a.shape))
	if a.shape[d] != 1 {
		panic(fmt.Sprintf("expand: dimension %d has size %d, must be 1", d, a.shape[d]))
	}
	if n <= 0 {
		panic(fmt.Sprintf("expand: extent must be positive, got %d", n))
	}

	shape := a.shape.Clone()
	strides := make([]int, len(a.strides))
	copy(strides, a.strides)
	shape[d] = n
	strides[d] = 0
	return &Array{data: a.data, shape: shape, strides: strides, offset: a.offset}
}

// Reshape returns an array with the same elements in a new shape.
// Contiguous arrays are reshaped as views; others are packed first.
func (a *Array) Reshape(shape Shape) (*Array, error) {
	if shape.NumElements() != a.NumElements() {
		return nil, fmt.Errorf("reshape: cannot reshape %v into %v", a.shape, shape)
	}
	src := a
	if !a.IsContiguous() {
		src = a.Contiguous()
	}
	return &Array{
		data:    src.data,
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		offset:  src.offset,
	}, nil
}

// Apply replaces every element x with fn(x) in place.
// On a broadcast view a shared element is visited once per logical position.
func (a *Array) Apply(fn func(x float32) float32) {
	ForEachIndex(a.shape, func(idx []int) {
		i := a.index(idx)
		a.data[i] = fn(a.data[i])
	})
}

// Equal reports whether two arrays have the same shape and elements.
func (a *Array) Equal(other *Array) bool {
	if !a.shape.Equal(other.shape) {
		return false
	}
	equal := true
	ForEachIndex(a.shape, func(idx []int) {
		if equal && a.data[a.index(idx)] != other.data[other.index(idx)] {
			equal = false
		}
	})
	return equal
}

// String returns a short description of the array.
func (a *Array) String() string {
	return fmt.Sprintf("Array(shape=%v)", a.shape)
}
