package variant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
)

// framed returns an array of n frames along axis 0 where frame i holds
// first+i everywhere.
func framed(n int, frame tensor.Shape, first float32) *tensor.Array {
	shape := append(tensor.Shape{n}, frame...)
	a := tensor.Zeros(shape)
	tensor.ForEachIndex(shape, func(idx []int) {
		a.Set(first+float32(idx[0]), idx...)
	})
	return a
}

func plain(t *testing.T, a *tensor.Array) *Plain {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	require.NoError(t, ms.Put(ctx, "a", a, tensor.Float32))
	h, err := ms.Open(ctx, "a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return NewPlain(h)
}

// axisValues returns the value at index 0 of every other axis for each
// position along axis 0.
func axisValues(a *tensor.Array) []float32 {
	idx := make([]int, a.Rank())
	out := make([]float32, a.Shape()[0])
	for i := range out {
		idx[0] = i
		out[i] = a.At(idx...)
	}
	return out
}

func TestImageKey(t *testing.T) {
	codes := []int{0, 0, 0, 0, 0, 2, 2, 1, 1}
	key, err := NewImageKey(codes)
	require.NoError(t, err)

	assert.Equal(t, 9, key.Len())
	assert.Equal(t, 5, key.Count(Data))
	assert.Equal(t, 2, key.Count(Dark))
	assert.Equal(t, 2, key.Count(Flat))
	assert.Equal(t, []int{5, 6}, key.Indices(Dark))
	assert.Equal(t, []int{7, 8}, key.Indices(Flat))
	assert.Equal(t, codes, key.Codes())
	assert.Equal(t, Dark, key.Category(6))

	p, err := key.DataIndex(3)
	require.NoError(t, err)
	assert.Equal(t, 3, p)

	_, err = key.DataIndex(5)
	assert.Error(t, err)
}

func TestImageKey_Interleaved(t *testing.T) {
	key, err := NewImageKey([]int{2, 0, 0, 1, 0, 0, 2})
	require.NoError(t, err)

	var got []int
	for i := 0; i < key.Count(Data); i++ {
		p, err := key.DataIndex(i)
		require.NoError(t, err)
		got = append(got, p)
	}
	assert.Equal(t, []int{1, 2, 4, 5}, got)
}

func TestImageKey_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		codes []int
	}{
		{"empty", nil},
		{"unknown code", []int{0, 0, 3}},
		{"negative code", []int{-1, 0}},
		{"no data", []int{1, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImageKey(tt.codes)
			require.ErrorIs(t, err, ErrMalformedSelector)
			var se *SelectorError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestDarkFlat_Scenario(t *testing.T) {
	ctx := context.Background()
	src := plain(t, framed(9, tensor.Shape{2, 3}, 0))
	key, err := NewImageKey([]int{0, 0, 0, 0, 0, 2, 2, 1, 1})
	require.NoError(t, err)

	df, err := NewDarkFlat(src, 0, key)
	require.NoError(t, err)
	assert.Equal(t, KindDarkFlat, df.Kind())
	assert.Equal(t, tensor.Shape{5, 2, 3}, df.Shape())

	p, err := df.DataIndex(3)
	require.NoError(t, err)
	assert.Equal(t, 3, p)

	dark, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, dark.Shape())
	for _, v := range dark.Data() {
		assert.InDelta(t, 5.5, v, 1e-6)
	}

	flat, err := df.Flat(ctx)
	require.NoError(t, err)
	for _, v := range flat.Data() {
		assert.InDelta(t, 7.5, v, 1e-6)
	}

	again, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Same(t, dark, again)

	got, err := df.Read(ctx, tensor.Region{{Start: 2, Stop: 5}, {Start: 0, Stop: 2}, {Start: 0, Stop: 3}})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, axisValues(got))

	_, err = df.Read(ctx, tensor.Region{{Start: 4, Stop: 6}, {Start: 0, Stop: 2}, {Start: 0, Stop: 3}})
	assert.Error(t, err)
}

func TestDarkFlat_InterleavedReadWrite(t *testing.T) {
	ctx := context.Background()
	src := plain(t, framed(7, tensor.Shape{2}, 0))
	key, err := NewImageKey([]int{2, 0, 0, 1, 0, 0, 2})
	require.NoError(t, err)

	df, err := NewDarkFlat(src, 0, key)
	require.NoError(t, err)

	full := tensor.FullRegion(df.Shape())
	got, err := df.Read(ctx, full)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 4, 5}, axisValues(got))

	// Logical rows 1..3 straddle the flat entry at physical index 3.
	r := tensor.Region{{Start: 1, Stop: 4}, {Start: 0, Stop: 2}}
	require.NoError(t, df.Write(ctx, r, tensor.Full(r.Shape(), -1)))

	phys, err := src.Read(ctx, tensor.FullRegion(src.Shape()))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, -1, 3, -1, -1, 6}, axisValues(phys))

	dark, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 3}, dark.Data())
}

func TestDarkFlat_Fallbacks(t *testing.T) {
	ctx := context.Background()
	src := plain(t, framed(3, tensor.Shape{2, 2}, 10))
	key, err := NewImageKey([]int{0, 0, 0})
	require.NoError(t, err)

	df, err := NewDarkFlat(src, 0, key, WithFlatScale(2))
	require.NoError(t, err)

	dark, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, dark.Data())

	// Fallback frames are not scaled.
	flat, err := df.Flat(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, flat.Data())
}

func TestDarkFlat_NonLeadingAxis(t *testing.T) {
	ctx := context.Background()
	// Shape (2, 4): axis 1 carries the key.
	a, err := tensor.FromSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, tensor.Shape{2, 4})
	require.NoError(t, err)

	key, err := NewImageKey([]int{0, 2, 0, 1})
	require.NoError(t, err)
	df, err := NewDarkFlat(plain(t, a), -1, key, WithDarkScale(0.5))
	require.NoError(t, err)
	assert.Equal(t, 1, df.Axis())
	assert.Equal(t, tensor.Shape{2, 2}, df.Shape())

	got, err := df.Read(ctx, tensor.FullRegion(df.Shape()))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 5, 7}, got.Data())

	dark, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3}, dark.Data())
}

func TestDarkFlat_LengthMismatch(t *testing.T) {
	key, err := NewImageKey([]int{0, 0})
	require.NoError(t, err)
	_, err = NewDarkFlat(plain(t, framed(3, tensor.Shape{2}, 0)), 0, key)
	assert.ErrorIs(t, err, ErrMalformedSelector)
}

func TestDarkFlat_FromSources(t *testing.T) {
	ctx := context.Background()
	data := plain(t, framed(4, tensor.Shape{3}, 0))
	dark := plain(t, framed(2, tensor.Shape{3}, 1))  // frames 1, 2
	flat := plain(t, framed(3, tensor.Shape{3}, 10)) // frames 10, 11, 12

	df, err := NewDarkFlatFromSources(data, 0, dark, flat)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3}, df.Shape())

	d, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 1.5, 1.5}, d.Data())

	f, err := df.Flat(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 11, 11}, f.Data())

	_, err = NewDarkFlatFromSources(data, 0, plain(t, framed(2, tensor.Shape{4}, 0)), nil)
	assert.ErrorIs(t, err, ErrIncompatibleSources)
}

func TestStacked(t *testing.T) {
	ctx := context.Background()
	sources := []Source{
		plain(t, tensor.Full(tensor.Shape{2, 4}, 0)),
		plain(t, tensor.Full(tensor.Shape{2, 4}, 1)),
		plain(t, tensor.Full(tensor.Shape{2, 4}, 2)),
	}

	s, err := NewStacked(1, sources...)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 4}, s.Shape())

	// Straddle sources 1 and 2.
	r := tensor.Region{{Start: 0, Stop: 2}, {Start: 1, Stop: 3}, {Start: 1, Stop: 3}}
	got, err := s.Read(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 2}, got.Shape())
	tensor.ForEachIndex(got.Shape(), func(idx []int) {
		assert.Equal(t, float32(idx[1]+1), got.At(idx...), "idx %v", idx)
	})

	w := tensor.Region{{Start: 1, Stop: 2}, {Start: 0, Stop: 2}, {Start: 0, Stop: 4}}
	require.NoError(t, s.Write(ctx, w, tensor.Full(w.Shape(), 9)))

	for i, src := range sources[:2] {
		a, err := src.Read(ctx, tensor.FullRegion(src.Shape()))
		require.NoError(t, err)
		assert.Equal(t, []float32{float32(i), float32(i), float32(i), float32(i), 9, 9, 9, 9}, a.Data())
	}

	_, err = NewStacked(0, sources[0], plain(t, tensor.Zeros(tensor.Shape{2, 5})))
	assert.ErrorIs(t, err, ErrIncompatibleSources)
}

func TestConcatenated_EveryRange(t *testing.T) {
	ctx := context.Background()
	lengths := []int{3, 2, 4}
	var sources []Source
	first := 0
	for _, n := range lengths {
		sources = append(sources, plain(t, framed(n, tensor.Shape{2}, float32(first))))
		first += n
	}

	c, err := NewConcatenated(0, sources...)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{9, 2}, c.Shape())

	for start := 0; start < 9; start++ {
		for stop := start + 1; stop <= 9; stop++ {
			got, err := c.Read(ctx, tensor.Region{{Start: start, Stop: stop}, {Start: 0, Stop: 2}})
			require.NoError(t, err)
			want := make([]float32, 0, stop-start)
			for i := start; i < stop; i++ {
				want = append(want, float32(i))
			}
			require.Equal(t, want, axisValues(got), "range [%d:%d]", start, stop)
		}
	}
}

func TestConcatenated_WriteAcrossBoundaries(t *testing.T) {
	ctx := context.Background()
	a := plain(t, tensor.Zeros(tensor.Shape{2, 3}))
	b := plain(t, tensor.Zeros(tensor.Shape{2, 2}))

	c, err := NewConcatenated(-1, a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Axis())
	assert.Equal(t, tensor.Shape{2, 5}, c.Shape())

	vals, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, tensor.Region{{Start: 0, Stop: 2}, {Start: 2, Stop: 5}}, vals))

	ga, err := a.Read(ctx, tensor.FullRegion(a.Shape()))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1, 0, 0, 4}, ga.Data())

	gb, err := b.Read(ctx, tensor.FullRegion(b.Shape()))
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 5, 6}, gb.Data())

	_, err = NewConcatenated(0, a, plain(t, tensor.Zeros(tensor.Shape{2, 4})))
	assert.ErrorIs(t, err, ErrIncompatibleSources)
}

func TestReplicated(t *testing.T) {
	ctx := context.Background()
	base, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)

	r, err := NewReplicated(plain(t, base), 4)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 4}, r.Shape())

	got, err := r.Read(ctx, tensor.Region{{Start: 0, Stop: 2}, {Start: 1, Stop: 3}, {Start: 1, Stop: 4}})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 3}, got.Shape())
	assert.Equal(t, 0, got.Strides()[2])
	tensor.ForEachIndex(got.Shape(), func(idx []int) {
		assert.Equal(t, base.At(idx[0], idx[1]+1), got.At(idx...))
	})

	err = r.Write(ctx, tensor.FullRegion(r.Shape()), tensor.Zeros(r.Shape()))
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = NewReplicated(plain(t, base), 0)
	assert.Error(t, err)
}

func TestNesting_DarkFlatOverConcatenated(t *testing.T) {
	ctx := context.Background()
	c, err := NewConcatenated(0,
		plain(t, framed(3, tensor.Shape{2}, 0)),
		plain(t, framed(3, tensor.Shape{2}, 3)),
	)
	require.NoError(t, err)

	key, err := NewImageKey([]int{2, 0, 0, 0, 0, 1})
	require.NoError(t, err)
	df, err := NewDarkFlat(c, 0, key)
	require.NoError(t, err)

	got, err := df.Read(ctx, tensor.FullRegion(df.Shape()))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, axisValues(got))
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewDefaultRegistry()
	assert.Equal(t, []string{"concatenated", "darkflat", "plain", "replicated", "stacked"}, reg.Names())

	src := plain(t, framed(4, tensor.Shape{2}, 0))

	_, err := reg.Build("DarkFlat", []Source{src}, nil)
	assert.ErrorIs(t, err, ErrUnknownVariant)

	s, err := reg.Build("darkflat", []Source{src}, config.Params{
		"image_key": []any{float64(0), float64(2), float64(0), float64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, KindDarkFlat, s.Kind())
	assert.Equal(t, tensor.Shape{2, 2}, s.Shape())

	got, err := s.Read(ctx, tensor.FullRegion(s.Shape()))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2}, axisValues(got))

	_, err = reg.Build("darkflat", []Source{src}, nil)
	assert.ErrorIs(t, err, ErrMalformedSelector)

	s, err = reg.Build("replicated", []Source{src}, config.Params{"n": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2, 3}, s.Shape())

	s, err = reg.Build("plain", []Source{src}, nil)
	require.NoError(t, err)
	assert.Same(t, src, s)

	_, err = reg.Build("plain", nil, nil)
	assert.ErrorIs(t, err, ErrIncompatibleSources)

	assert.Error(t, reg.Register("plain", plainFactory))
}
