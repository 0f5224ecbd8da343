package variant

import (
	"context"
	"fmt"

	"github.com/born-ml/tomo/internal/tensor"
)

// Stacked presents k equally shaped sources as one array with a new axis of
// extent k; index i on that axis is source i.
type Stacked struct {
	axis    int
	sources []Source
	shape   tensor.Shape
}

// NewStacked stacks sources along a new axis inserted at axis.
func NewStacked(axis int, sources ...Source) (*Stacked, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("stacked: no sources: %w", ErrIncompatibleSources)
	}
	base := sources[0].Shape()
	ax, err := tensor.NormalizeAxis(axis, len(base)+1)
	if err != nil {
		return nil, fmt.Errorf("stacked: %w", err)
	}
	for i, s := range sources[1:] {
		if !s.Shape().Equal(base) {
			return nil, fmt.Errorf("stacked: source %d has shape %v, expected %v: %w", i+1, s.Shape(), base, ErrIncompatibleSources)
		}
	}

	shape := make(tensor.Shape, 0, len(base)+1)
	shape = append(shape, base[:ax]...)
	shape = append(shape, len(sources))
	shape = append(shape, base[ax:]...)
	return &Stacked{axis: ax, sources: sources, shape: shape}, nil
}

func (s *Stacked) Kind() Kind             { return KindStacked }
func (s *Stacked) Shape() tensor.Shape    { return s.shape }
func (s *Stacked) DType() tensor.DataType { return s.sources[0].DType() }

// Axis returns the stacking axis.
func (s *Stacked) Axis() int { return s.axis }

func (s *Stacked) Read(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	if err := checkRead(s, r); err != nil {
		return nil, err
	}
	out := tensor.Zeros(r.Shape())
	dst := tensor.FullRegion(out.Shape())
	inner := dropAxis(r, s.axis)
	sel := r[s.axis]

	for i := sel.Start; i < sel.Stop; i++ {
		part, err := s.sources[i].Read(ctx, inner)
		if err != nil {
			return nil, fmt.Errorf("stacked read source %d: %w", i, err)
		}
		j := i - sel.Start
		if err := out.Assign(withAxis(dst, s.axis, j, j+1), part.Unsqueeze(s.axis)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Stacked) Write(ctx context.Context, r tensor.Region, a *tensor.Array) error {
	if err := checkWrite(s, r, a); err != nil {
		return err
	}
	src := tensor.FullRegion(a.Shape())
	inner := dropAxis(r, s.axis)
	sel := r[s.axis]

	for i := sel.Start; i < sel.Stop; i++ {
		j := i - sel.Start
		slab, err := a.View(withAxis(src, s.axis, j, j+1))
		if err != nil {
			return err
		}
		if err := s.sources[i].Write(ctx, inner, slab.Squeeze(s.axis)); err != nil {
			return fmt.Errorf("stacked write source %d: %w", i, err)
		}
	}
	return nil
}

// Concatenated lays k sources end to end along an existing axis. The sources
// must agree on every other dimension.
type Concatenated struct {
	axis    int
	sources []Source
	offsets []int // offsets[i] is the first logical index of source i; len k+1
	shape   tensor.Shape
}

// NewConcatenated joins sources along axis.
func NewConcatenated(axis int, sources ...Source) (*Concatenated, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("concatenated: no sources: %w", ErrIncompatibleSources)
	}
	base := sources[0].Shape()
	ax, err := tensor.NormalizeAxis(axis, len(base))
	if err != nil {
		return nil, fmt.Errorf("concatenated: %w", err)
	}

	offsets := make([]int, len(sources)+1)
	for i, s := range sources {
		sh := s.Shape()
		if len(sh) != len(base) || !sh.Without(ax).Equal(base.Without(ax)) {
			return nil, fmt.Errorf("concatenated: source %d has shape %v, incompatible with %v on axis %d: %w",
				i, sh, base, ax, ErrIncompatibleSources)
		}
		offsets[i+1] = offsets[i] + sh[ax]
	}

	shape := base.Clone()
	shape[ax] = offsets[len(sources)]
	return &Concatenated{axis: ax, sources: sources, offsets: offsets, shape: shape}, nil
}

func (c *Concatenated) Kind() Kind             { return KindConcatenated }
func (c *Concatenated) Shape() tensor.Shape    { return c.shape }
func (c *Concatenated) DType() tensor.DataType { return c.sources[0].DType() }

// Axis returns the concatenation axis.
func (c *Concatenated) Axis() int { return c.axis }

// spans calls fn for every source that sel overlaps, with the overlap
// expressed as a local selector in the source and the logical start.
func (c *Concatenated) spans(sel tensor.Selector, fn func(i int, local tensor.Selector, logical int) error) error {
	for i := range c.sources {
		lo, hi := c.offsets[i], c.offsets[i+1]
		start, stop := max(sel.Start, lo), min(sel.Stop, hi)
		if start >= stop {
			continue
		}
		if err := fn(i, tensor.Selector{Start: start - lo, Stop: stop - lo}, start); err != nil {
			return err
		}
	}
	return nil
}

func (c *Concatenated) Read(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	if err := checkRead(c, r); err != nil {
		return nil, err
	}
	out := tensor.Zeros(r.Shape())
	dst := tensor.FullRegion(out.Shape())
	sel := r[c.axis]

	err := c.spans(sel, func(i int, local tensor.Selector, logical int) error {
		part, err := c.sources[i].Read(ctx, withAxis(r, c.axis, local.Start, local.Stop))
		if err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		j := logical - sel.Start
		return out.Assign(withAxis(dst, c.axis, j, j+local.Len()), part)
	})
	if err != nil {
		return nil, fmt.Errorf("concatenated read %v: %w", r, err)
	}
	return out, nil
}

func (c *Concatenated) Write(ctx context.Context, r tensor.Region, a *tensor.Array) error {
	if err := checkWrite(c, r, a); err != nil {
		return err
	}
	src := tensor.FullRegion(a.Shape())
	sel := r[c.axis]

	err := c.spans(sel, func(i int, local tensor.Selector, logical int) error {
		j := logical - sel.Start
		part, err := a.View(withAxis(src, c.axis, j, j+local.Len()))
		if err != nil {
			return err
		}
		if err := c.sources[i].Write(ctx, withAxis(r, c.axis, local.Start, local.Stop), part); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("concatenated write %v: %w", r, err)
	}
	return nil
}

// Replicated appends a trailing axis of extent n to a source. Every index on
// that axis serves the same underlying data; reads return broadcast views
// rather than copies.
type Replicated struct {
	src   Source
	n     int
	shape tensor.Shape
}

// NewReplicated replicates src n times along a new trailing axis.
func NewReplicated(src Source, n int) (*Replicated, error) {
	if n < 1 {
		return nil, fmt.Errorf("replicated: extent must be positive, got %d", n)
	}
	shape := append(src.Shape().Clone(), n)
	return &Replicated{src: src, n: n, shape: shape}, nil
}

func (r *Replicated) Kind() Kind             { return KindReplicated }
func (r *Replicated) Shape() tensor.Shape    { return r.shape }
func (r *Replicated) DType() tensor.DataType { return r.src.DType() }

// Read drops the trailing selector, reads the underlying source once and
// broadcasts the result along the trailing axis.
func (r *Replicated) Read(ctx context.Context, reg tensor.Region) (*tensor.Array, error) {
	if err := checkRead(r, reg); err != nil {
		return nil, err
	}
	last := len(reg) - 1
	a, err := r.src.Read(ctx, reg[:last])
	if err != nil {
		return nil, fmt.Errorf("replicated read %v: %w", reg, err)
	}
	return a.Unsqueeze(last).Expand(last, reg[last].Len()), nil
}

// Write always fails: replicas share one underlying array.
func (r *Replicated) Write(context.Context, tensor.Region, *tensor.Array) error {
	return fmt.Errorf("replicated write: %w", ErrReadOnly)
}
