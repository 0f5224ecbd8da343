// Package store provides the backing storage that datasets read from and
// write to through index regions.
//
// A Store creates and opens named arrays; each open array is a Handle that
// must be closed when the pipeline is torn down.
package store

import (
	"context"
	"errors"
	"os"

	"github.com/born-ml/tomo/internal/tensor"
)

// Common errors.
var (
	// ErrNotFound maps to os.ErrNotExist so callers can use either.
	ErrNotFound = os.ErrNotExist
	ErrExists   = errors.New("array already exists")
	ErrClosed   = errors.New("handle is closed")
	ErrReadOnly = errors.New("handle is read-only")
)

// Handle is an open backing array.
//
// ReadRegion is safe for concurrent use. WriteRegion is safe for concurrent
// use as long as callers write disjoint regions.
type Handle interface {
	// Name returns the array's name within its store.
	Name() string
	// Shape returns the array's shape.
	Shape() tensor.Shape
	// DType returns the element encoding of the array.
	DType() tensor.DataType
	// ReadRegion reads the elements selected by r.
	ReadRegion(ctx context.Context, r tensor.Region) (*tensor.Array, error)
	// WriteRegion stores a into the elements selected by r.
	WriteRegion(ctx context.Context, r tensor.Region, a *tensor.Array) error
	// Close releases the handle. It is safe to call more than once.
	Close() error
}

// Store creates and opens named arrays.
type Store interface {
	// Create allocates a new zero-filled array.
	Create(ctx context.Context, name string, shape tensor.Shape, dtype tensor.DataType) (Handle, error)
	// Open opens an existing array.
	Open(ctx context.Context, name string) (Handle, error)
	// Remove deletes an array.
	Remove(ctx context.Context, name string) error
	// List returns the names of all arrays.
	List(ctx context.Context) ([]string, error)
}

func checkRegion(h Handle, r tensor.Region) error {
	return r.Within(h.Shape())
}
