package slicing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/tensor"
)

var tomoShape = tensor.Shape{180, 135, 160} // angle, detY, detX

func mustPattern(t *testing.T, name pattern.Name, core, slice []int, rank int) pattern.Pattern {
	t.Helper()
	p, err := pattern.New(name, core, slice, rank)
	require.NoError(t, err)
	return p
}

func TestGenerate_Projection(t *testing.T) {
	p := mustPattern(t, pattern.Projection, []int{1, 2}, []int{0}, 3)

	frames, err := Generate(tomoShape, p, nil)
	require.NoError(t, err)
	require.Len(t, frames, 180)

	for i, f := range frames {
		assert.Equal(t, tensor.Selector{Start: i, Stop: i + 1}, f[0])
		assert.Equal(t, tensor.Selector{Start: 0, Stop: 135}, f[1])
		assert.Equal(t, tensor.Selector{Start: 0, Stop: 160}, f[2])
	}
	assert.Equal(t, tensor.Shape{1, 135, 160}, frames[0].Shape())
}

func TestGenerate_Sinogram(t *testing.T) {
	p := mustPattern(t, pattern.Sinogram, []int{0, 2}, []int{1}, 3)

	frames, err := Generate(tomoShape, p, nil)
	require.NoError(t, err)
	require.Len(t, frames, 135)
	assert.Equal(t, tensor.Shape{180, 1, 160}, frames[7].Shape())
	assert.Equal(t, 7, frames[7][1].Start)
}

func TestGenerate_RowMajorOverSliceDims(t *testing.T) {
	p := mustPattern(t, "CUSTOM", []int{2}, []int{0, 1}, 3)

	frames, err := Generate(tensor.Shape{2, 3, 4}, p, nil)
	require.NoError(t, err)
	require.Len(t, frames, 6)

	var got [][2]int
	for _, f := range frames {
		got = append(got, [2]int{f[0].Start, f[1].Start})
	}
	want := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame order mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_Cardinality(t *testing.T) {
	shape := tensor.Shape{3, 4, 5, 2}
	for mask := 0; mask < 1<<len(shape); mask++ {
		var core, slice []int
		want := 1
		for d := range shape {
			if mask&(1<<d) != 0 {
				core = append(core, d)
			} else {
				slice = append(slice, d)
				want *= shape[d]
			}
		}
		p := mustPattern(t, "CUSTOM", core, slice, len(shape))
		frames, err := Generate(shape, p, nil)
		require.NoError(t, err)
		assert.Len(t, frames, want, "core=%v slice=%v", core, slice)
		assert.Equal(t, want, Count(shape, p, nil))
	}
}

func TestGenerate_RankMismatch(t *testing.T) {
	p := mustPattern(t, pattern.Projection, []int{1, 2}, []int{0}, 3)
	_, err := Generate(tensor.Shape{4, 4}, p, nil)
	assert.Error(t, err)
}

func TestGroup_Scenario(t *testing.T) {
	p := mustPattern(t, pattern.Projection, []int{1, 2}, []int{0}, 3)
	frames, err := Generate(tomoShape, p, nil)
	require.NoError(t, err)

	chunks, err := Group(frames, 8)
	require.NoError(t, err)
	require.Len(t, chunks, 23)
	for i := 0; i < 22; i++ {
		assert.Equal(t, 8, chunks[i].Len())
		assert.Equal(t, i, chunks[i].Index)
		assert.Equal(t, i*8, chunks[i].First)
	}
	assert.Equal(t, 4, chunks[22].Len())
	assert.Equal(t, 176, chunks[22].First)

	bounds, ok := chunks[22].Bounds()
	require.True(t, ok)
	assert.Equal(t, tensor.Selector{Start: 176, Stop: 180}, bounds[0])
	assert.Equal(t, tensor.Selector{Start: 0, Stop: 135}, bounds[1])
}

func TestGroup_UngroupRoundTrip(t *testing.T) {
	p := mustPattern(t, "CUSTOM", nil, []int{0}, 1)
	for length := 0; length <= 40; length++ {
		var frames []tensor.Region
		if length > 0 {
			var err error
			frames, err = Generate(tensor.Shape{length}, p, nil)
			require.NoError(t, err)
		}
		for n := 1; n <= length+2; n++ {
			chunks, err := Group(frames, ChunkSize(n))
			require.NoError(t, err)
			got := Ungroup(chunks)
			require.Equal(t, len(frames), len(got), "length=%d n=%d", length, n)
			for i := range frames {
				require.True(t, frames[i].Equal(got[i]), "length=%d n=%d frame=%d", length, n, i)
			}
			if length > 0 {
				last := chunks[len(chunks)-1].Len()
				if length%n == 0 {
					assert.Equal(t, n, last)
				} else {
					assert.Equal(t, length%n, last)
				}
			}
		}
	}
}

func TestGroup_Sentinels(t *testing.T) {
	p := mustPattern(t, pattern.Projection, []int{1, 2}, []int{0}, 3)
	frames, err := Generate(tomoShape, p, nil)
	require.NoError(t, err)

	single, err := Group(frames, Single)
	require.NoError(t, err)
	assert.Len(t, single, 180)

	all, err := Group(frames, Multiple)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 180, all[0].Len())

	_, err = Group(frames, 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestParseChunkSize(t *testing.T) {
	tests := map[string]ChunkSize{
		"single":   Single,
		"multiple": Multiple,
		"all":      Multiple,
		"8":        8,
		" 8 ":      8,
		" Single ": Single,
		"ALL\n":    Multiple,
	}
	for in, want := range tests {
		got, err := ParseChunkSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"0", "-3", "many", "", " ", "8 frames"} {
		_, err := ParseChunkSize(in)
		assert.ErrorIs(t, err, ErrInvalidChunkSize, in)
	}
	assert.Equal(t, "multiple", Multiple.String())
	assert.Equal(t, "12", ChunkSize(12).String())
}

func TestChunkBounds_NonContiguous(t *testing.T) {
	p := mustPattern(t, "CUSTOM", []int{2}, []int{0, 1}, 3)
	frames, err := Generate(tensor.Shape{2, 3, 4}, p, nil)
	require.NoError(t, err)

	chunks, err := Group(frames, 4)
	require.NoError(t, err)

	// First chunk wraps from row 0 into row 1.
	_, ok := chunks[0].Bounds()
	assert.False(t, ok)

	chunks, err = Group(frames, 3)
	require.NoError(t, err)
	b, ok := chunks[1].Bounds()
	require.True(t, ok)
	assert.Equal(t, tensor.Region{{Start: 1, Stop: 2}, {Start: 0, Stop: 3}, {Start: 0, Stop: 4}}, b)
}

func TestFixedDirections(t *testing.T) {
	p := mustPattern(t, "SWEEP", []int{1, 2}, []int{0, 3}, 4)
	shape := tensor.Shape{10, 4, 5, 6}

	var fixed FixedDirections
	require.NoError(t, fixed.Fix([]int{-1}, []int{2}, p, shape))

	frames, err := Generate(shape, p, &fixed)
	require.NoError(t, err)
	require.Len(t, frames, 10)
	assert.Equal(t, 10, Count(shape, p, &fixed))
	for _, f := range frames {
		assert.Equal(t, tensor.Selector{Start: 2, Stop: 3}, f[3])
	}

	chunks, err := Group(frames, 4)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)

	fixed.Unfix()
	frames, err = Generate(shape, p, &fixed)
	require.NoError(t, err)
	assert.Len(t, frames, 60)
}

func TestFixedDirections_Errors(t *testing.T) {
	p := mustPattern(t, pattern.Projection, []int{1, 2}, []int{0}, 3)

	tests := []struct {
		name    string
		dims    []int
		values  []int
		wantDim int
	}{
		{name: "core dimension", dims: []int{1}, values: []int{0}, wantDim: 1},
		{name: "out of range dimension", dims: []int{3}, values: []int{0}, wantDim: 3},
		{name: "out of range value", dims: []int{0}, values: []int{180}, wantDim: 0},
		{name: "length mismatch", dims: []int{0}, values: nil, wantDim: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fixed FixedDirections
			require.NoError(t, fixed.Fix([]int{0}, []int{5}, p, tomoShape))

			err := fixed.Fix(tt.dims, tt.values, p, tomoShape)
			require.ErrorIs(t, err, ErrInvalidFixedDirection)
			var fe *InvalidFixedDirectionError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantDim, fe.Dim)

			// The previous fix is untouched.
			v, ok := fixed.Value(0)
			require.True(t, ok)
			assert.Equal(t, 5, v)
			_, ok = fixed.Value(1)
			assert.False(t, ok)
		})
	}
}
