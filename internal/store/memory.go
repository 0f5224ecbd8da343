package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/born-ml/tomo/internal/tensor"
)

// MemoryStore keeps arrays in memory as float32. Values written are
// quantized to the array's dtype so results match a file-backed store.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu     sync.RWMutex
	arrays map[string]*memoryArray
}

type memoryArray struct {
	dtype tensor.DataType
	data  *tensor.Array
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		arrays: make(map[string]*memoryArray),
	}
}

// Create allocates a new zero-filled array.
func (m *MemoryStore) Create(_ context.Context, name string, shape tensor.Shape, dtype tensor.DataType) (Handle, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.arrays[name]; ok {
		return nil, fmt.Errorf("create %s: %w", name, ErrExists)
	}
	arr := &memoryArray{dtype: dtype, data: tensor.Zeros(shape)}
	m.arrays[name] = arr
	return &memoryHandle{name: name, arr: arr}, nil
}

// Put stores a copy of a under name, replacing any existing array.
func (m *MemoryStore) Put(_ context.Context, name string, a *tensor.Array, dtype tensor.DataType) error {
	data := a.Clone()
	data.Apply(func(v float32) float32 { return Quantize(dtype, v) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrays[name] = &memoryArray{dtype: dtype, data: data}
	return nil
}

// Open opens an existing array.
func (m *MemoryStore) Open(_ context.Context, name string) (Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arr, ok := m.arrays[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrNotFound)
	}
	return &memoryHandle{name: name, arr: arr}, nil
}

// Remove deletes an array. Open handles keep their data.
func (m *MemoryStore) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.arrays[name]; !ok {
		return fmt.Errorf("remove %s: %w", name, ErrNotFound)
	}
	delete(m.arrays, name)
	return nil
}

// List returns the names of all arrays in sorted order.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.arrays))
	for name := range m.arrays {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// memoryHandle implements Handle for in-memory arrays.
type memoryHandle struct {
	name   string
	arr    *memoryArray
	closed atomic.Bool
}

func (h *memoryHandle) Name() string           { return h.name }
func (h *memoryHandle) Shape() tensor.Shape    { return h.arr.data.Shape() }
func (h *memoryHandle) DType() tensor.DataType { return h.arr.dtype }

func (h *memoryHandle) ReadRegion(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := h.arr.data.View(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", h.name, err)
	}
	return v.Clone(), nil
}

func (h *memoryHandle) WriteRegion(ctx context.Context, r tensor.Region, a *tensor.Array) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q := a.Clone()
	q.Apply(func(v float32) float32 { return Quantize(h.arr.dtype, v) })
	if err := h.arr.data.Assign(r, q); err != nil {
		return fmt.Errorf("write %s: %w", h.name, err)
	}
	return nil
}

func (h *memoryHandle) Close() error {
	h.closed.Store(true)
	return nil
}
