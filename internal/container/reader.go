package container

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
)

// Reader reads a .tomo file. It implements store.Handle; writes fail with
// store.ErrReadOnly. Blocks are decoded on demand, so reading a region only
// touches the slabs it spans.
type Reader struct {
	path        string
	file        *os.File
	header      Header
	flags       uint32
	shape       tensor.Shape
	dtype       tensor.DataType
	compression Compression
	dataOffset  int64
	dataSize    int64
	checksum    [32]byte

	mu     sync.RWMutex
	closed bool
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool // Skip checksum validation (faster but less safe)
}

var _ store.Handle = (*Reader)(nil)

// Open opens a .tomo file and validates its header and checksum.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens a .tomo file with custom options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for dataset loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{path: path, file: file}
	if err := r.parseHeader(opts); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) parseHeader(opts ReaderOptions) error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	copy(r.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	currentPos := int64(FixedHeaderSize) + int64(headerSize)
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	r.dataOffset = currentPos + padding
	//nolint:gosec // G115: checked against the file size below
	r.dataSize = int64(dataSize)

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if r.dataOffset+r.dataSize > info.Size() {
		return fmt.Errorf("data section extends beyond end of file: %w", io.ErrUnexpectedEOF)
	}

	r.shape = tensor.Shape(r.header.Shape)
	if err := r.shape.Validate(); err != nil || len(r.shape) == 0 {
		return fmt.Errorf("invalid shape %v", r.header.Shape)
	}
	if r.dtype, err = tensor.ParseDataType(r.header.DType); err != nil {
		return err
	}
	if r.compression, err = ParseCompression(r.header.Compression); err != nil {
		return err
	}
	slabBytes := int64(r.shape[1:].NumElements() * r.dtype.Size())
	if err := validateBlocks(r.header.Blocks, r.shape[0], slabBytes, r.dataSize); err != nil {
		return err
	}

	if !opts.SkipChecksumValidation {
		h := sha256.New()
		if _, err := io.Copy(h, io.NewSectionReader(r.file, r.dataOffset, r.dataSize)); err != nil {
			return fmt.Errorf("failed to read data for checksum: %w", err)
		}
		var sum [32]byte
		copy(sum[:], h.Sum(nil))
		if sum != r.checksum {
			return ErrChecksumMismatch
		}
	}
	return nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

// Flags returns the format flags.
func (r *Reader) Flags() uint32 { return r.flags }

// Name returns the dataset name, or the file name when the header has none.
func (r *Reader) Name() string {
	if r.header.Name != "" {
		return r.header.Name
	}
	return strings.TrimSuffix(filepath.Base(r.path), filepath.Ext(r.path))
}

func (r *Reader) Shape() tensor.Shape    { return r.shape }
func (r *Reader) DType() tensor.DataType { return r.dtype }

// Slab decodes block i: the array with axis 0 fixed to i, as shape
// [1, shape[1:]...].
func (r *Reader) Slab(i int) (*tensor.Array, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, store.ErrClosed
	}
	if i < 0 || i >= r.shape[0] {
		return nil, fmt.Errorf("block %d out of range [0, %d)", i, r.shape[0])
	}

	b := r.header.Blocks[i]
	encoded := make([]byte, b.Size)
	if _, err := r.file.ReadAt(encoded, r.dataOffset+b.Offset); err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", i, err)
	}
	raw, err := decompressBlock(encoded, r.compression, b.Stored, int(b.RawSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", i, err)
	}

	slabShape := append(tensor.Shape{1}, r.shape[1:]...)
	values := make([]float32, slabShape.NumElements())
	store.DecodeElements(r.dtype, values, raw)
	return tensor.FromSlice(values, slabShape)
}

// ReadRegion decodes the blocks r spans and assembles the region.
func (r *Reader) ReadRegion(ctx context.Context, reg tensor.Region) (*tensor.Array, error) {
	if err := reg.Within(r.shape); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Name(), err)
	}
	out := tensor.Zeros(reg.Shape())
	dst := tensor.FullRegion(out.Shape())
	inSlab := reg.Clone()
	inSlab[0] = tensor.Selector{Start: 0, Stop: 1}

	for i := reg[0].Start; i < reg[0].Stop; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slab, err := r.Slab(i)
		if err != nil {
			return nil, err
		}
		part, err := slab.View(inSlab)
		if err != nil {
			return nil, err
		}
		j := i - reg[0].Start
		dst[0] = tensor.Selector{Start: j, Stop: j + 1}
		if err := out.Assign(dst, part); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteRegion always fails: containers are immutable once written.
func (r *Reader) WriteRegion(context.Context, tensor.Region, *tensor.Array) error {
	return fmt.Errorf("write %s: %w", r.Name(), store.ErrReadOnly)
}

// CopyTo copies every slab into h, which must have the same shape.
func (r *Reader) CopyTo(ctx context.Context, h store.Handle) error {
	if !h.Shape().Equal(r.shape) {
		return fmt.Errorf("copy %s: destination shape %v, expected %v", r.Name(), h.Shape(), r.shape)
	}
	dst := tensor.FullRegion(r.shape)
	for i := 0; i < r.shape[0]; i++ {
		slab, err := r.Slab(i)
		if err != nil {
			return err
		}
		dst[0] = tensor.Selector{Start: i, Stop: i + 1}
		if err := h.WriteRegion(ctx, dst, slab); err != nil {
			return fmt.Errorf("copy %s slab %d: %w", r.Name(), i, err)
		}
	}
	return nil
}

// Close closes the underlying file. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
