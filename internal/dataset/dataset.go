// Package dataset binds a backing array, its indexing variant and its access
// patterns into one unit the pipeline reads from and writes to.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
	"github.com/born-ml/tomo/internal/variant"
)

// ErrClosed is returned when a dataset or access has been closed.
var ErrClosed = errors.New("dataset is closed")

// Dataset is an N-dimensional array with its access patterns.
//
// The backing handles are opened when the dataset is created or opened and
// released by Close. The indexing variant is composed once at that point and
// never changes.
type Dataset struct {
	id       uuid.UUID
	name     string
	handles  []store.Handle
	source   variant.Source
	patterns *pattern.Registry
	metadata map[string]string

	mu     sync.Mutex
	closed bool
}

type options struct {
	id       uuid.UUID
	variant  string
	params   config.Params
	registry *variant.Registry
	extra    []string
	metadata map[string]string
}

// Option configures a Dataset.
type Option func(*options)

// WithID sets the dataset ID instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(o *options) { o.id = id }
}

// WithVariant composes the dataset with the named indexing variant.
func WithVariant(name string, params config.Params) Option {
	return func(o *options) {
		o.variant = name
		o.params = params
	}
}

// WithVariantRegistry sets the registry variants are looked up in.
// The default holds the built-in variants.
func WithVariantRegistry(r *variant.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithExtraArrays passes further backing arrays from the same store to the
// variant, after the primary one. Stacked and concatenated variants combine
// them; darkflat treats them as dark and flat sources.
func WithExtraArrays(names ...string) Option {
	return func(o *options) { o.extra = append(o.extra, names...) }
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]string) Option {
	return func(o *options) { o.metadata = maps.Clone(md) }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.id == uuid.Nil {
		o.id = uuid.New()
	}
	if o.registry == nil {
		o.registry = variant.NewDefaultRegistry()
	}
	return o
}

// Create allocates a new backing array named name in st and returns a plain
// dataset over it.
func Create(ctx context.Context, st store.Store, name string, shape tensor.Shape, dtype tensor.DataType, opts ...Option) (*Dataset, error) {
	h, err := st.Create(ctx, name, shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("create dataset %s: %w", name, err)
	}
	return newDataset(ctx, st, name, h, buildOptions(opts))
}

// Open opens the backing array named name in st.
func Open(ctx context.Context, st store.Store, name string, opts ...Option) (*Dataset, error) {
	h, err := st.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", name, err)
	}
	return newDataset(ctx, st, name, h, buildOptions(opts))
}

// FromHandle wraps an already open handle; the dataset takes ownership of it.
func FromHandle(h store.Handle, opts ...Option) (*Dataset, error) {
	o := buildOptions(opts)
	if len(o.extra) > 0 {
		_ = h.Close()
		return nil, errors.New("extra arrays need a store")
	}
	return newDataset(context.Background(), nil, h.Name(), h, o)
}

func newDataset(ctx context.Context, st store.Store, name string, primary store.Handle, o *options) (*Dataset, error) {
	d := &Dataset{
		id:       o.id,
		name:     name,
		handles:  []store.Handle{primary},
		metadata: o.metadata,
	}

	sources := []variant.Source{variant.NewPlain(primary)}
	for _, extra := range o.extra {
		h, err := st.Open(ctx, extra)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("open dataset %s: %w", name, err)
		}
		d.handles = append(d.handles, h)
		sources = append(sources, variant.NewPlain(h))
	}

	switch {
	case o.variant != "":
		src, err := o.registry.Build(o.variant, sources, o.params)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		d.source = src
	case len(sources) > 1:
		_ = d.Close()
		return nil, fmt.Errorf("dataset %s: %d arrays given without a variant", name, len(sources))
	default:
		d.source = sources[0]
	}

	d.patterns = pattern.NewRegistry(len(d.source.Shape()))
	return d, nil
}

// ID returns the dataset's unique ID.
func (d *Dataset) ID() uuid.UUID { return d.id }

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Shape returns the logical shape seen through the indexing variant.
func (d *Dataset) Shape() tensor.Shape { return d.source.Shape() }

// DType returns the backing element type.
func (d *Dataset) DType() tensor.DataType { return d.source.DType() }

// Kind returns the indexing variant of the dataset.
func (d *Dataset) Kind() variant.Kind { return d.source.Kind() }

// Source returns the composed indexing variant.
func (d *Dataset) Source() variant.Source { return d.source }

// Patterns returns the dataset's pattern registry.
func (d *Dataset) Patterns() *pattern.Registry { return d.patterns }

// Metadata returns a copy of the dataset metadata.
func (d *Dataset) Metadata() map[string]string { return maps.Clone(d.metadata) }

// RegisterPattern validates and registers an access pattern.
func (d *Dataset) RegisterPattern(name pattern.Name, core, slice []int) (pattern.Pattern, error) {
	p, err := d.patterns.Register(name, core, slice)
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("dataset %s: %w", d.name, err)
	}
	return p, nil
}

// DarkFlat returns the dark/flat variant if the dataset is composed with one.
func (d *Dataset) DarkFlat() (*variant.DarkFlat, bool) {
	df, ok := d.source.(*variant.DarkFlat)
	return df, ok
}

// Derive creates a plain dataset with the same logical shape and patterns,
// backed by a new array named name in st.
func (d *Dataset) Derive(ctx context.Context, st store.Store, name string, dtype tensor.DataType) (*Dataset, error) {
	out, err := Create(ctx, st, name, d.Shape(), dtype, WithMetadata(d.metadata))
	if err != nil {
		return nil, err
	}
	out.patterns = d.patterns.Clone()
	return out, nil
}

// OpenForRead returns a scoped read access. Close it when done.
func (d *Dataset) OpenForRead() (*Access, error) {
	return d.open(false)
}

// OpenForWrite returns a scoped read-write access. Close it when done.
func (d *Dataset) OpenForWrite() (*Access, error) {
	return d.open(true)
}

func (d *Dataset) open(write bool) (*Access, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("dataset %s: %w", d.name, ErrClosed)
	}
	return &Access{ds: d, write: write}, nil
}

// Close releases the backing handles. It is safe to call more than once.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for _, h := range d.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Access is a scoped view of a dataset handed to one stage.
type Access struct {
	ds    *Dataset
	write bool

	mu     sync.RWMutex
	closed bool
}

// Dataset returns the dataset behind the access.
func (a *Access) Dataset() *Dataset { return a.ds }

// Shape returns the logical shape of the dataset.
func (a *Access) Shape() tensor.Shape { return a.ds.Shape() }

// DType returns the backing element type of the dataset.
func (a *Access) DType() tensor.DataType { return a.ds.DType() }

// Writable reports whether the access was opened for writing.
func (a *Access) Writable() bool { return a.write }

// Read reads region r of the logical array.
func (a *Access) Read(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}
	return a.ds.source.Read(ctx, r)
}

// Write writes arr into region r of the logical array.
func (a *Access) Write(ctx context.Context, r tensor.Region, arr *tensor.Array) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	if !a.write {
		return fmt.Errorf("dataset %s: %w", a.ds.name, store.ErrReadOnly)
	}
	return a.ds.source.Write(ctx, r, arr)
}

// Close ends the access. It is safe to call more than once.
func (a *Access) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
