package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/born-ml/tomo/internal/tensor"
)

const (
	dataExt = ".dat"
	metaExt = ".json"
)

// fileMeta is the sidecar describing a raw array file.
type fileMeta struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
}

// FileStore keeps each array as a raw little-endian file in a directory,
// with a JSON sidecar holding its shape and dtype.
//
// Reads and writes touch only the contiguous runs a region selects, so
// workers writing disjoint frames never overlap on disk.
type FileStore struct {
	dir     string
	limiter *Limiter
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithIOLimit throttles reads and writes to bytesPerSec.
func WithIOLimit(bytesPerSec int64) FileOption {
	return func(s *FileStore) {
		s.limiter = NewLimiter(bytesPerSec)
	}
}

// NewFileStore creates a store rooted at dir, creating the directory if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &FileStore{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileStore) path(name, ext string) (string, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid array name %q", name)
	}
	return filepath.Join(s.dir, name+ext), nil
}

// Create allocates a new zero-filled array file.
func (s *FileStore) Create(_ context.Context, name string, shape tensor.Shape, dtype tensor.DataType) (Handle, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	dataPath, err := s.path(name, dataExt)
	if err != nil {
		return nil, err
	}
	metaPath, _ := s.path(name, metaExt)

	meta, err := json.Marshal(fileMeta{Shape: shape.Clone(), DType: dtype.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	//nolint:gosec // G304: path is confined to the store directory
	file, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create %s: %w", name, ErrExists)
		}
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if err := file.Truncate(int64(shape.NumElements() * dtype.Size())); err != nil {
		_ = file.Close()
		_ = os.Remove(dataPath)
		return nil, fmt.Errorf("failed to size file: %w", err)
	}
	if err := os.WriteFile(metaPath, meta, 0o640); err != nil {
		_ = file.Close()
		_ = os.Remove(dataPath)
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	return &fileHandle{name: name, file: file, shape: shape.Clone(), dtype: dtype, limiter: s.limiter}, nil
}

// Open opens an existing array file for reading and writing.
func (s *FileStore) Open(_ context.Context, name string) (Handle, error) {
	dataPath, err := s.path(name, dataExt)
	if err != nil {
		return nil, err
	}
	metaPath, _ := s.path(name, metaExt)

	//nolint:gosec // G304: path is confined to the store directory
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	var meta fileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("open %s: failed to parse metadata: %w", name, err)
	}
	dtype, err := tensor.ParseDataType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	shape := tensor.Shape(meta.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	//nolint:gosec // G304: path is confined to the store directory
	file, err := os.OpenFile(dataPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if want := int64(shape.NumElements() * dtype.Size()); stat.Size() != want {
		_ = file.Close()
		return nil, fmt.Errorf("open %s: file is %d bytes, expected %d", name, stat.Size(), want)
	}

	return &fileHandle{name: name, file: file, shape: shape, dtype: dtype, limiter: s.limiter}, nil
}

// Remove deletes an array and its sidecar.
func (s *FileStore) Remove(_ context.Context, name string) error {
	dataPath, err := s.path(name, dataExt)
	if err != nil {
		return err
	}
	metaPath, _ := s.path(name, metaExt)
	if err := os.Remove(dataPath); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// List returns the names of all arrays in sorted order.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), dataExt); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// fileHandle implements Handle over an *os.File using positional I/O.
type fileHandle struct {
	name    string
	file    *os.File
	shape   tensor.Shape
	dtype   tensor.DataType
	limiter *Limiter

	closeOnce sync.Once
	closeErr  error
	mu        sync.RWMutex // guards file against Close during I/O
	closed    bool
}

func (h *fileHandle) Name() string           { return h.name }
func (h *fileHandle) Shape() tensor.Shape    { return h.shape }
func (h *fileHandle) DType() tensor.DataType { return h.dtype }

func (h *fileHandle) ReadRegion(ctx context.Context, r tensor.Region) (*tensor.Array, error) {
	if err := checkRegion(h, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", h.name, err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}

	out := tensor.Zeros(r.Shape())
	values := out.Data()
	size := h.dtype.Size()
	buf := make([]byte, runLength(r)*size)

	err := Runs(h.shape, r, func(offset, pos, n int) error {
		if err := h.limiter.Wait(ctx, n*size); err != nil {
			return err
		}
		if _, err := h.file.ReadAt(buf[:n*size], int64(offset*size)); err != nil {
			return err
		}
		DecodeElements(h.dtype, values[pos:pos+n], buf[:n*size])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s %v: %w", h.name, r, err)
	}
	return out, nil
}

func (h *fileHandle) WriteRegion(ctx context.Context, r tensor.Region, a *tensor.Array) error {
	if err := checkRegion(h, r); err != nil {
		return fmt.Errorf("write %s: %w", h.name, err)
	}
	if !a.Shape().Equal(r.Shape()) {
		return fmt.Errorf("write %s: array shape %v does not match region %v", h.name, a.Shape(), r)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}

	values := a.Data()
	size := h.dtype.Size()
	buf := make([]byte, runLength(r)*size)

	err := Runs(h.shape, r, func(offset, pos, n int) error {
		if err := h.limiter.Wait(ctx, n*size); err != nil {
			return err
		}
		EncodeElements(h.dtype, buf[:n*size], values[pos:pos+n])
		_, err := h.file.WriteAt(buf[:n*size], int64(offset*size))
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s %v: %w", h.name, r, err)
	}
	return nil
}

func (h *fileHandle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closed = true
		h.closeErr = h.file.Close()
	})
	return h.closeErr
}
