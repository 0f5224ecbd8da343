package variant

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/tomo/internal/tensor"
)

// DarkFlat hides the calibration frames of a source along one axis.
//
// The logical shape has only the data entries on that axis. Dark and Flat
// return the per-category mean over the axis, computed on first use and
// cached.
type DarkFlat struct {
	src  Source
	axis int
	key  *ImageKey

	// Separate calibration sources; when set they replace the image key
	// categories.
	darkSrc Source
	flatSrc Source

	darkScale float32
	flatScale float32

	mu   sync.Mutex
	dark *tensor.Array
	flat *tensor.Array
}

// DarkFlatOption configures a DarkFlat.
type DarkFlatOption func(*DarkFlat)

// WithDarkScale multiplies the aggregated dark frame by f.
func WithDarkScale(f float32) DarkFlatOption {
	return func(d *DarkFlat) { d.darkScale = f }
}

// WithFlatScale multiplies the aggregated flat frame by f.
func WithFlatScale(f float32) DarkFlatOption {
	return func(d *DarkFlat) { d.flatScale = f }
}

// NewDarkFlat separates src along axis using key.
// A key whose length does not match the axis extent is a malformed selector.
func NewDarkFlat(src Source, axis int, key *ImageKey, opts ...DarkFlatOption) (*DarkFlat, error) {
	shape := src.Shape()
	ax, err := tensor.NormalizeAxis(axis, len(shape))
	if err != nil {
		return nil, fmt.Errorf("darkflat: %w", err)
	}
	if key == nil {
		return nil, &SelectorError{Index: -1, Reason: "missing image key"}
	}
	if key.Len() != shape[ax] {
		return nil, &SelectorError{
			Index:  -1,
			Reason: fmt.Sprintf("image key has %d entries, axis %d has extent %d", key.Len(), ax, shape[ax]),
		}
	}
	d := &DarkFlat{
		src:       src,
		axis:      ax,
		key:       key,
		darkScale: 1,
		flatScale: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewDarkFlatFromSources builds a DarkFlat whose calibration frames live in
// their own sources. Every index of data is a data entry. dark and flat may
// be nil, in which case the fallback frame is used.
func NewDarkFlatFromSources(data Source, axis int, dark, flat Source, opts ...DarkFlatOption) (*DarkFlat, error) {
	shape := data.Shape()
	ax, err := tensor.NormalizeAxis(axis, len(shape))
	if err != nil {
		return nil, fmt.Errorf("darkflat: %w", err)
	}
	frame := shape.Without(ax)
	for _, cal := range []Source{dark, flat} {
		if cal == nil {
			continue
		}
		cs := cal.Shape()
		if len(cs) != len(shape) || !cs.Without(ax).Equal(frame) {
			return nil, fmt.Errorf("darkflat: calibration shape %v does not match data %v: %w", cs, shape, ErrIncompatibleSources)
		}
	}
	d, err := NewDarkFlat(data, ax, AllData(shape[ax]), opts...)
	if err != nil {
		return nil, err
	}
	d.darkSrc = dark
	d.flatSrc = flat
	return d, nil
}

func (d *DarkFlat) Kind() Kind             { return KindDarkFlat }
func (d *DarkFlat) DType() tensor.DataType { return d.src.DType() }

// Shape returns the logical shape, with only data entries on the key axis.
func (d *DarkFlat) Shape() tensor.Shape {
	s := d.src.Shape().Clone()
	s[d.axis] = d.key.Count(Data)
	return s
}

// Axis returns the axis the image key classifies.
func (d *DarkFlat) Axis() int { return d.axis }

// Key returns the image key.
func (d *DarkFlat) Key() *ImageKey { return d.key }

// DataIndex maps a logical index on the key axis to its physical index.
func (d *DarkFlat) DataIndex(i int) (int, error) { return d.key.DataIndex(i) }

// physicalRuns splits the logical selector sel into runs that are contiguous
// in physical indices. fn receives the logical start, physical start and
// length of each run.
func (d *DarkFlat) physicalRuns(sel tensor.Selector, fn func(logical, physical, n int) error) error {
	i := sel.Start
	for i < sel.Stop {
		p, err := d.key.DataIndex(i)
		if err != nil {
			return err
		}
		n := 1
		for i+n < sel.Stop {
			next, err := d.key.DataIndex(i + n)
			if err != nil {
				return err
			}
			if next != p+n {
				break
			}
			n++
		}
		if err := fn(i, p, n); err != nil {
			return err
		}
		i += n
	}
	return nil
}

func (d *DarkFlat) Read(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	if err := checkRead(d, r); err != nil {
		return nil, err
	}
	out := tensor.Zeros(r.Shape())
	dst := tensor.FullRegion(out.Shape())
	start := r[d.axis].Start

	err := d.physicalRuns(r[d.axis], func(logical, physical, n int) error {
		part, err := d.src.Read(ctx, withAxis(r, d.axis, physical, physical+n))
		if err != nil {
			return err
		}
		return out.Assign(withAxis(dst, d.axis, logical-start, logical-start+n), part)
	})
	if err != nil {
		return nil, fmt.Errorf("darkflat read %v: %w", r, err)
	}
	return out, nil
}

func (d *DarkFlat) Write(ctx context.Context, r tensor.Region, a *tensor.Array) error {
	if err := checkWrite(d, r, a); err != nil {
		return err
	}
	src := tensor.FullRegion(a.Shape())
	start := r[d.axis].Start

	err := d.physicalRuns(r[d.axis], func(logical, physical, n int) error {
		part, err := a.View(withAxis(src, d.axis, logical-start, logical-start+n))
		if err != nil {
			return err
		}
		return d.src.Write(ctx, withAxis(r, d.axis, physical, physical+n), part)
	})
	if err != nil {
		return fmt.Errorf("darkflat write %v: %w", r, err)
	}
	return nil
}

// Dark returns the mean dark frame, or zeros when there are no dark entries.
// The result has the source shape without the key axis and must not be
// modified.
func (d *DarkFlat) Dark(ctx context.Context) (*tensor.Array, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dark == nil {
		a, err := d.aggregate(ctx, Dark, d.darkSrc, 0, d.darkScale)
		if err != nil {
			return nil, err
		}
		d.dark = a
	}
	return d.dark, nil
}

// Flat returns the mean flat frame, or ones when there are no flat entries.
// The result has the source shape without the key axis and must not be
// modified.
func (d *DarkFlat) Flat(ctx context.Context) (*tensor.Array, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flat == nil {
		a, err := d.aggregate(ctx, Flat, d.flatSrc, 1, d.flatScale)
		if err != nil {
			return nil, err
		}
		d.flat = a
	}
	return d.flat, nil
}

func (d *DarkFlat) aggregate(ctx context.Context, c Category, cal Source, fallback, scale float32) (*tensor.Array, error) {
	frame := d.src.Shape().Without(d.axis)

	var stackedFrames *tensor.Array
	switch {
	case cal != nil:
		a, err := cal.Read(ctx, tensor.FullRegion(cal.Shape()))
		if err != nil {
			return nil, fmt.Errorf("read %s source: %w", c, err)
		}
		stackedFrames = a
	case d.key.Count(c) > 0:
		full := tensor.FullRegion(d.src.Shape())
		parts := make([]*tensor.Array, 0, d.key.Count(c))
		for _, p := range d.key.Indices(c) {
			a, err := d.src.Read(ctx, withAxis(full, d.axis, p, p+1))
			if err != nil {
				return nil, fmt.Errorf("read %s frame %d: %w", c, p, err)
			}
			parts = append(parts, a)
		}
		stackedFrames = tensor.Cat(parts, d.axis)
	default:
		return tensor.Full(frame, fallback), nil
	}

	mean := tensor.MeanAxis(stackedFrames, d.axis)
	if scale != 1 {
		mean.Apply(func(x float32) float32 { return x * scale })
	}
	return mean, nil
}
