// Package variant presents backing arrays to the pipeline through a fixed
// set of indexing variants.
//
// A dataset's Source is chosen once, when the dataset is built, and is never
// re-composed afterwards:
//
//   - Plain reads and writes a backing handle directly.
//   - DarkFlat hides calibration frames selected by an ImageKey and exposes
//     their mean through Dark and Flat.
//   - Stacked presents k equally shaped sources as slabs of a new axis.
//   - Concatenated lays k sources end to end along an existing axis.
//   - Replicated adds a trailing axis whose every index serves the same data.
//
// Composite variants take other Sources, so they nest by wrapping.
package variant

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
)

// Common errors.
var (
	// ErrMalformedSelector marks an image key that cannot separate data from
	// calibration frames.
	ErrMalformedSelector = errors.New("malformed selector")
	// ErrIncompatibleSources marks sources that cannot be combined.
	ErrIncompatibleSources = errors.New("incompatible sources")
	// ErrUnknownVariant is returned for a name with no registered factory.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrReadOnly is returned by variants that cannot be written.
	ErrReadOnly = store.ErrReadOnly
)

// Kind tags the variant behind a Source.
type Kind int

// Variant kinds.
const (
	KindPlain Kind = iota
	KindDarkFlat
	KindStacked
	KindConcatenated
	KindReplicated
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindDarkFlat:
		return "darkflat"
	case KindStacked:
		return "stacked"
	case KindConcatenated:
		return "concatenated"
	case KindReplicated:
		return "replicated"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Source is the capability every variant provides. Regions are expressed in
// the Source's logical shape.
type Source interface {
	Kind() Kind
	Shape() tensor.Shape
	DType() tensor.DataType
	Read(ctx context.Context, r tensor.Region) (*tensor.Array, error)
	Write(ctx context.Context, r tensor.Region, a *tensor.Array) error
}

// Plain is a Source backed directly by a store handle.
type Plain struct {
	h store.Handle
}

// NewPlain wraps h.
func NewPlain(h store.Handle) *Plain {
	return &Plain{h: h}
}

// Handle returns the backing handle.
func (p *Plain) Handle() store.Handle { return p.h }

func (p *Plain) Kind() Kind             { return KindPlain }
func (p *Plain) Shape() tensor.Shape    { return p.h.Shape() }
func (p *Plain) DType() tensor.DataType { return p.h.DType() }

func (p *Plain) Read(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	return p.h.ReadRegion(ctx, r)
}

func (p *Plain) Write(ctx context.Context, r tensor.Region, a *tensor.Array) error {
	return p.h.WriteRegion(ctx, r, a)
}

// withAxis returns a copy of r with the selector on axis replaced.
func withAxis(r tensor.Region, axis, start, stop int) tensor.Region {
	out := r.Clone()
	out[axis] = tensor.Selector{Start: start, Stop: stop}
	return out
}

// dropAxis returns r without the selector on axis.
func dropAxis(r tensor.Region, axis int) tensor.Region {
	out := make(tensor.Region, 0, len(r)-1)
	out = append(out, r[:axis]...)
	return append(out, r[axis+1:]...)
}

func checkRead(s Source, r tensor.Region) error {
	if err := r.Within(s.Shape()); err != nil {
		return fmt.Errorf("%s read: %w", s.Kind(), err)
	}
	return nil
}

func checkWrite(s Source, r tensor.Region, a *tensor.Array) error {
	if err := r.Within(s.Shape()); err != nil {
		return fmt.Errorf("%s write: %w", s.Kind(), err)
	}
	if !a.Shape().Equal(r.Shape()) {
		return fmt.Errorf("%s write: array shape %v does not match region %v", s.Kind(), a.Shape(), r)
	}
	return nil
}
