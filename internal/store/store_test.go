package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tomo/internal/tensor"
)

func ramp(shape tensor.Shape) *tensor.Array {
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = float32(i)
	}
	a, err := tensor.FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return a
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	shape := tensor.Shape{4, 3, 5}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h, err := s.Create(ctx, "raw", shape, tensor.Float32)
			require.NoError(t, err)
			defer h.Close()

			full := tensor.FullRegion(shape)
			require.NoError(t, h.WriteRegion(ctx, full, ramp(shape)))

			r := tensor.Region{{Start: 1, Stop: 3}, {Start: 0, Stop: 3}, {Start: 2, Stop: 4}}
			got, err := h.ReadRegion(ctx, r)
			require.NoError(t, err)
			want, err := ramp(shape).View(r)
			require.NoError(t, err)
			assert.Equal(t, want.Data(), got.Data())

			_, err = s.Create(ctx, "raw", shape, tensor.Float32)
			assert.ErrorIs(t, err, ErrExists)

			names, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"raw"}, names)
		})
	}
}

func TestStore_ReopenSeesWrites(t *testing.T) {
	ctx := context.Background()
	shape := tensor.Shape{2, 6}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h, err := s.Create(ctx, "out", shape, tensor.Uint16)
			require.NoError(t, err)
			row := tensor.Full(tensor.Shape{1, 6}, 7.6)
			require.NoError(t, h.WriteRegion(ctx, tensor.Region{{Start: 1, Stop: 2}, {Start: 0, Stop: 6}}, row))
			require.NoError(t, h.Close())
			require.NoError(t, h.Close())

			_, err = h.ReadRegion(ctx, tensor.FullRegion(shape))
			assert.ErrorIs(t, err, ErrClosed)

			h2, err := s.Open(ctx, "out")
			require.NoError(t, err)
			defer h2.Close()
			assert.Equal(t, tensor.Uint16, h2.DType())

			got, err := h2.ReadRegion(ctx, tensor.FullRegion(shape))
			require.NoError(t, err)
			assert.Equal(t, []float32{0, 0, 0, 0, 0, 0, 8, 8, 8, 8, 8, 8}, got.Data())

			require.NoError(t, s.Remove(ctx, "out"))
			_, err = s.Open(ctx, "out")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_ConcurrentDisjointWrites(t *testing.T) {
	ctx := context.Background()
	shape := tensor.Shape{16, 8}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h, err := s.Create(ctx, "frames", shape, tensor.Float32)
			require.NoError(t, err)
			defer h.Close()

			var wg sync.WaitGroup
			for i := 0; i < shape[0]; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					r := tensor.Region{{Start: i, Stop: i + 1}, {Start: 0, Stop: 8}}
					assert.NoError(t, h.WriteRegion(ctx, r, tensor.Full(tensor.Shape{1, 8}, float32(i))))
				}(i)
			}
			wg.Wait()

			got, err := h.ReadRegion(ctx, tensor.FullRegion(shape))
			require.NoError(t, err)
			for i := 0; i < shape[0]; i++ {
				for j := 0; j < shape[1]; j++ {
					assert.Equal(t, float32(i), got.At(i, j))
				}
			}
		})
	}
}

func TestStore_RejectsOutOfBounds(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h, err := s.Create(ctx, "small", tensor.Shape{2, 2}, tensor.Float32)
			require.NoError(t, err)
			defer h.Close()

			_, err = h.ReadRegion(ctx, tensor.Region{{Start: 0, Stop: 3}, {Start: 0, Stop: 2}})
			assert.Error(t, err)
		})
	}
}

func TestEncoding_DTypes(t *testing.T) {
	values := []float32{-3.4, 0, 1.5, 300.2}
	tests := []struct {
		dtype tensor.DataType
		want  []float32
	}{
		{tensor.Float32, values},
		{tensor.Float64, values},
		{tensor.Int32, []float32{-3, 0, 2, 300}},
		{tensor.Uint16, []float32{0, 0, 2, 300}},
		{tensor.Uint8, []float32{0, 0, 2, 255}},
	}

	for _, tt := range tests {
		buf := make([]byte, len(values)*tt.dtype.Size())
		EncodeElements(tt.dtype, buf, values)
		got := make([]float32, len(values))
		DecodeElements(tt.dtype, got, buf)
		assert.InDeltaSlice(t, tt.want, got, 1e-5, tt.dtype.String())
	}
}

func TestRuns(t *testing.T) {
	shape := tensor.Shape{3, 4}
	r := tensor.Region{{Start: 1, Stop: 3}, {Start: 1, Stop: 3}}

	type run struct{ offset, pos, n int }
	var got []run
	require.NoError(t, Runs(shape, r, func(offset, pos, n int) error {
		got = append(got, run{offset, pos, n})
		return nil
	}))
	assert.Equal(t, []run{{5, 0, 2}, {9, 2, 2}}, got)
}

func TestLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background(), 1<<20))

	l := NewLimiter(1000)
	require.NoError(t, l.Wait(context.Background(), 1000))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, 5000))
}

func TestFileStore_InvalidName(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Create(context.Background(), "../escape", tensor.Shape{2}, tensor.Float32)
	assert.Error(t, err)
}
