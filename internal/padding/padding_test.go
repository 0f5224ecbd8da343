package padding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/tensor"
)

var shape = tensor.Shape{180, 135, 160}

func projection(t *testing.T) pattern.Pattern {
	t.Helper()
	p, err := pattern.New(pattern.Projection, []int{1, 2}, []int{0}, 3)
	require.NoError(t, err)
	return p
}

func frame(i int) tensor.Region {
	return tensor.Region{{Start: i, Stop: i + 1}, {Start: 0, Stop: 135}, {Start: 0, Stop: 160}}
}

func TestResolve_Interior(t *testing.T) {
	spec := Spec{0: {Before: 2, After: 3}}
	p := Resolve(frame(50), shape, spec)

	assert.Equal(t, tensor.Selector{Start: 48, Stop: 54}, p.Region[0])
	assert.Equal(t, []int{2, 0, 0}, p.Offset)
	assert.False(t, p.Clamped(frame(50), spec))
}

func TestResolve_ClampsAtEdges(t *testing.T) {
	spec := Spec{0: {Before: 5, After: 5}}

	lo := Resolve(frame(1), shape, spec)
	assert.Equal(t, tensor.Selector{Start: 0, Stop: 7}, lo.Region[0])
	assert.Equal(t, 1, lo.Offset[0])
	assert.True(t, lo.Clamped(frame(1), spec))

	hi := Resolve(frame(178), shape, spec)
	assert.Equal(t, tensor.Selector{Start: 173, Stop: 180}, hi.Region[0])
	assert.Equal(t, 5, hi.Offset[0])

	huge := Resolve(frame(90), shape, Spec{0: {Before: 1000, After: 1000}})
	assert.Equal(t, tensor.Selector{Start: 0, Stop: 180}, huge.Region[0])
	assert.Equal(t, 90, huge.Offset[0])
}

func TestResolve_NeverLeavesBounds(t *testing.T) {
	spec := Spec{0: {Before: 7, After: 4}}
	for i := 0; i < shape[0]; i++ {
		p := Resolve(frame(i), shape, spec)
		for d, sel := range p.Region {
			assert.GreaterOrEqual(t, sel.Start, 0)
			assert.LessOrEqual(t, sel.Stop, shape[d])
		}
		assert.Equal(t, i-p.Region[0].Start, p.Offset[0])
	}
}

func TestSpec_Normalize(t *testing.T) {
	p := projection(t)

	got, err := Spec{-3: {Before: 1, After: 1}}.Normalize(p)
	require.NoError(t, err)
	assert.Equal(t, Spec{0: {Before: 1, After: 1}}, got)

	_, err = Spec{1: {Before: 1}}.Normalize(p)
	require.ErrorIs(t, err, ErrCoreDimPadding)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Dim)

	_, err = Spec{0: {Before: -1}}.Normalize(p)
	assert.ErrorIs(t, err, ErrInvalidMargin)

	_, err = Spec{0: {Before: 1}, -3: {After: 1}}.Normalize(p)
	assert.ErrorIs(t, err, ErrInvalidMargin)

	_, err = Spec{5: {Before: 1}}.Normalize(p)
	assert.ErrorIs(t, err, tensor.ErrAxisOutOfRange)

	assert.True(t, Spec{0: {}}.Empty())
	assert.False(t, Spec{0: {After: 1}}.Empty())
}

func TestCrop(t *testing.T) {
	small := tensor.Shape{6, 2}
	data := make([]float32, small.NumElements())
	for i := range data {
		data[i] = float32(i)
	}

	region := tensor.Region{{Start: 0, Stop: 1}, {Start: 0, Stop: 2}}
	p := Resolve(region, small, Spec{0: {Before: 2, After: 2}})
	require.Equal(t, tensor.Selector{Start: 0, Stop: 3}, p.Region[0])

	full, err := tensor.FromSlice(data, small)
	require.NoError(t, err)
	read, err := full.View(p.Region)
	require.NoError(t, err)

	core, err := Crop(read, region, p)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, core.Data())

	_, err = Crop(full, region, p)
	assert.Error(t, err)
}
