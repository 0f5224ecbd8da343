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
	"time"

	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
)

// ArrayReader is the read side of a dataset source.
type ArrayReader interface {
	Shape() tensor.Shape
	DType() tensor.DataType
	Read(ctx context.Context, r tensor.Region) (*tensor.Array, error)
}

// Contents describes everything except the array data.
type Contents struct {
	ID       string
	Name     string
	Patterns []PatternMeta
	ImageKey *ImageKeyMeta
	Metadata map[string]string
}

// Writer writes a dataset to a .tomo file.
type Writer struct {
	path        string
	compression Compression
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression sets the block codec. The default is ZSTD.
func WithCompression(c Compression) WriterOption {
	return func(w *Writer) { w.compression = c }
}

// NewWriter creates a writer for path.
func NewWriter(path string, opts ...WriterOption) *Writer {
	w := &Writer{path: path, compression: CompressionZSTD}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write reads src slab by slab along axis 0 and writes the container.
//
// Blocks are staged in a temporary file next to the target so the header,
// which carries the block table, can be written first.
//
//nolint:gocyclo,cyclop // Complex writer logic is unavoidable for binary format
func (w *Writer) Write(ctx context.Context, src ArrayReader, contents Contents) error {
	shape := src.Shape()
	if len(shape) == 0 {
		return fmt.Errorf("container: rank 0 arrays are not supported")
	}
	dtype := src.DType()

	staging, err := os.CreateTemp(filepath.Dir(w.path), ".tomo-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		_ = staging.Close()
		_ = os.Remove(staging.Name())
	}()

	hash := sha256.New()
	dataWriter := io.MultiWriter(staging, hash)

	slab := tensor.FullRegion(shape)
	slabElems := shape[1:].NumElements()
	raw := make([]byte, slabElems*dtype.Size())
	blocks := make([]BlockMeta, shape[0])
	var offset int64

	for i := 0; i < shape[0]; i++ {
		slab[0] = tensor.Selector{Start: i, Stop: i + 1}
		a, err := src.Read(ctx, slab)
		if err != nil {
			return fmt.Errorf("failed to read slab %d: %w", i, err)
		}
		store.EncodeElements(dtype, raw, a.Data())

		encoded, stored, err := compressBlock(raw, w.compression)
		if err != nil {
			return fmt.Errorf("failed to compress block %d: %w", i, err)
		}
		if _, err := dataWriter.Write(encoded); err != nil {
			return fmt.Errorf("failed to write block %d: %w", i, err)
		}
		blocks[i] = BlockMeta{
			Offset:  offset,
			Size:    int64(len(encoded)),
			RawSize: int64(len(raw)),
			Stored:  stored,
		}
		offset += int64(len(encoded))
	}

	header := Header{
		FormatVersion: FormatVersion,
		ID:            contents.ID,
		Name:          contents.Name,
		CreatedAt:     time.Now().UTC(),
		Shape:         shape.Clone(),
		DType:         dtype.String(),
		Compression:   w.compression.String(),
		Patterns:      contents.Patterns,
		ImageKey:      contents.ImageKey,
		Blocks:        blocks,
		Metadata:      contents.Metadata,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	flags := uint32(0)
	if contents.ImageKey != nil {
		flags |= FlagHasImageKey
	}
	if len(contents.Metadata) > 0 {
		flags |= FlagHasMetadata
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	//nolint:gosec // G115: offset is a byte count and never negative
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(offset))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], hash.Sum(nil))

	//nolint:gosec // G304: File path comes from user input, which is expected for dataset saving
	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	currentPos := int64(FixedHeaderSize + len(headerJSON))
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	if padding > 0 {
		if _, err := file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind staging file: %w", err)
	}
	if _, err := io.Copy(file, staging); err != nil {
		return fmt.Errorf("failed to write data section: %w", err)
	}
	return file.Sync()
}
