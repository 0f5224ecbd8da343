package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/container"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
	"github.com/born-ml/tomo/internal/variant"
)

// fillFrames writes value i into every element of slab i along axis 0.
func fillFrames(t *testing.T, d *Dataset) {
	t.Helper()
	ctx := context.Background()
	acc, err := d.OpenForWrite()
	require.NoError(t, err)
	defer acc.Close()

	shape := d.Shape()
	r := tensor.FullRegion(shape)
	for i := 0; i < shape[0]; i++ {
		r[0] = tensor.Selector{Start: i, Stop: i + 1}
		require.NoError(t, acc.Write(ctx, r, tensor.Full(r.Shape(), float32(i))))
	}
}

func TestDataset_Lifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	d, err := Create(ctx, st, "raw", tensor.Shape{4, 3, 2}, tensor.Float32)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, d.ID())
	assert.Equal(t, "raw", d.Name())
	assert.Equal(t, variant.KindPlain, d.Kind())

	p, err := d.RegisterPattern(pattern.Projection, []int{1, 2}, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, p.Slice)

	_, err = d.RegisterPattern(pattern.Sinogram, []int{0}, []int{1})
	assert.ErrorIs(t, err, pattern.ErrInvalidPattern)

	fillFrames(t, d)

	ro, err := d.OpenForRead()
	require.NoError(t, err)
	assert.False(t, ro.Writable())
	full := tensor.FullRegion(d.Shape())
	err = ro.Write(ctx, full, tensor.Zeros(d.Shape()))
	assert.ErrorIs(t, err, store.ErrReadOnly)

	got, err := ro.Read(ctx, tensor.Region{{Start: 2, Stop: 3}, {Start: 0, Stop: 1}, {Start: 0, Stop: 1}})
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, got.Data())

	require.NoError(t, ro.Close())
	require.NoError(t, ro.Close())
	_, err = ro.Read(ctx, full)
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err = d.OpenForWrite()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDataset_Derive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	d, err := Create(ctx, st, "raw", tensor.Shape{4, 3}, tensor.Uint16, WithMetadata(map[string]string{"k": "v"}))
	require.NoError(t, err)
	defer d.Close()
	_, err = d.RegisterPattern(pattern.Projection, []int{1}, []int{0})
	require.NoError(t, err)

	out, err := d.Derive(ctx, st, "stage0", tensor.Float32)
	require.NoError(t, err)
	defer out.Close()

	assert.NotEqual(t, d.ID(), out.ID())
	assert.Equal(t, d.Shape(), out.Shape())
	assert.Equal(t, tensor.Float32, out.DType())
	assert.True(t, out.Patterns().Has(pattern.Projection))
	assert.Equal(t, map[string]string{"k": "v"}, out.Metadata())

	// Patterns registered later on the derived dataset stay local to it.
	_, err = out.RegisterPattern(pattern.Sinogram, []int{0}, []int{1})
	require.NoError(t, err)
	assert.False(t, d.Patterns().Has(pattern.Sinogram))
}

func TestDataset_DarkFlatVariant(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	raw, err := Create(ctx, st, "raw", tensor.Shape{6, 2}, tensor.Float32)
	require.NoError(t, err)
	fillFrames(t, raw)
	require.NoError(t, raw.Close())

	d, err := Open(ctx, st, "raw", WithVariant("darkflat", config.Params{
		"image_key": []int{2, 0, 0, 0, 1, 1},
	}))
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, variant.KindDarkFlat, d.Kind())
	assert.Equal(t, tensor.Shape{3, 2}, d.Shape())

	df, ok := d.DarkFlat()
	require.True(t, ok)
	flat, err := df.Flat(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{4.5, 4.5}, flat.Data())

	plain, err := Open(ctx, st, "raw")
	require.NoError(t, err)
	defer plain.Close()
	_, ok = plain.DarkFlat()
	assert.False(t, ok)
}

func TestDataset_StackedArrays(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	for _, name := range []string{"a", "b"} {
		d, err := Create(ctx, st, name, tensor.Shape{2, 2}, tensor.Float32)
		require.NoError(t, err)
		require.NoError(t, d.Close())
	}

	d, err := Open(ctx, st, "a", WithExtraArrays("b"), WithVariant("stacked", nil))
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, tensor.Shape{2, 2, 2}, d.Shape())

	_, err = Open(ctx, st, "a", WithExtraArrays("b"))
	assert.Error(t, err)

	_, err = Open(ctx, st, "a", WithVariant("mirrored", nil))
	assert.ErrorIs(t, err, variant.ErrUnknownVariant)
}

func TestContainer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := t.TempDir()

	d, err := Create(ctx, st, "scan", tensor.Shape{5, 3, 2}, tensor.Float32)
	require.NoError(t, err)
	_, err = d.RegisterPattern(pattern.Projection, []int{1, 2}, []int{0})
	require.NoError(t, err)
	_, err = d.RegisterPattern(pattern.Sinogram, []int{0, 2}, []int{1})
	require.NoError(t, err)
	fillFrames(t, d)

	path := filepath.Join(dir, "scan.tomo")
	require.NoError(t, Save(ctx, d, path, container.CompressionZSTD))
	require.NoError(t, d.Close())

	opened, err := OpenContainer(path)
	require.NoError(t, err)
	defer opened.Close()
	assert.Equal(t, d.ID(), opened.ID())
	assert.Equal(t, []pattern.Name{pattern.Projection, pattern.Sinogram}, opened.Patterns().Names())

	loaded, err := Load(ctx, path, store.NewMemoryStore(), "scan")
	require.NoError(t, err)
	defer loaded.Close()

	for _, ds := range []*Dataset{opened, loaded} {
		acc, err := ds.OpenForRead()
		require.NoError(t, err)
		got, err := acc.Read(ctx, tensor.Region{{Start: 0, Stop: 5}, {Start: 1, Stop: 2}, {Start: 1, Stop: 2}})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 2, 3, 4}, got.Data())
		require.NoError(t, acc.Close())
	}
}

func TestContainer_ImageKeyComposesDarkFlat(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	raw, err := Create(ctx, st, "raw", tensor.Shape{5, 2}, tensor.Float32)
	require.NoError(t, err)
	fillFrames(t, raw)
	acc, err := raw.OpenForRead()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "raw.tomo")
	err = container.NewWriter(path).Write(ctx, acc, container.Contents{
		Name:     "raw",
		Patterns: []container.PatternMeta{{Name: "PROJECTION", Core: []int{1}, Slice: []int{0}}},
		ImageKey: &container.ImageKeyMeta{Axis: 0, Codes: []int{0, 0, 0, 2, 1}},
	})
	require.NoError(t, err)
	require.NoError(t, acc.Close())
	require.NoError(t, raw.Close())

	d, err := Load(ctx, path, store.NewMemoryStore(), "raw")
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, variant.KindDarkFlat, d.Kind())
	assert.Equal(t, tensor.Shape{3, 2}, d.Shape())
	assert.True(t, d.Patterns().Has(pattern.Projection))

	df, ok := d.DarkFlat()
	require.True(t, ok)
	dark, err := df.Dark(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 3}, dark.Data())
}
