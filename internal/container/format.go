// Package container implements the .tomo file format for datasets.
//
//	Format Structure:
//	  [4 bytes: Magic "TOMO"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: Reserved]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [8 bytes: Data Size (uint64 LE)]
//	  [32 bytes: SHA-256 of the data section]
//	  [Header: JSON metadata]
//	  [Padding to 64 bytes]
//	  [Data: one block per index of axis 0]
//
// Each block holds one slab of the array (axis 0 fixed), little-endian in
// the dataset's dtype, optionally compressed with LZ4 or ZSTD. Blocks that
// do not compress well are stored raw.
package container

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Format constants.
const (
	MagicBytes      = "TOMO"
	FormatVersion   = 1
	FixedHeaderSize = 64   // 0x40 bytes
	HeaderAlignment = 64   // data section starts on a 64-byte boundary
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // checksum offset in the fixed header
	MaxHeaderSize   = 100 * 1024 * 1024
)

// Flags for the .tomo format.
const (
	FlagHasImageKey uint32 = 1 << 0
	FlagHasMetadata uint32 = 1 << 1
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidBlockTable  = errors.New("invalid block table")
)

// Header is the JSON header of a .tomo file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CreatedAt     time.Time         `json:"created_at"`
	Shape         []int             `json:"shape"`
	DType         string            `json:"dtype"`
	Compression   string            `json:"compression"`
	Patterns      []PatternMeta     `json:"patterns,omitempty"`
	ImageKey      *ImageKeyMeta     `json:"image_key,omitempty"`
	Blocks        []BlockMeta       `json:"blocks"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PatternMeta records a registered access pattern.
type PatternMeta struct {
	Name  string `json:"name"`
	Core  []int  `json:"core"`
	Slice []int  `json:"slice"`
}

// ImageKeyMeta records the data/flat/dark selector of an acquisition.
type ImageKeyMeta struct {
	Axis  int   `json:"axis"`
	Codes []int `json:"codes"`
}

// BlockMeta locates one block in the data section.
type BlockMeta struct {
	Offset  int64 `json:"offset"`   // bytes from the start of the data section
	Size    int64 `json:"size"`     // encoded size
	RawSize int64 `json:"raw_size"` // decoded size
	Stored  bool  `json:"stored,omitempty"`
}

// BlockTableError describes an inconsistent block table.
type BlockTableError struct {
	Block   int
	Details string
}

func (e *BlockTableError) Error() string {
	if e.Block < 0 {
		return "block table: " + e.Details
	}
	return fmt.Sprintf("block %d: %s", e.Block, e.Details)
}

// Is reports whether target is ErrInvalidBlockTable.
func (e *BlockTableError) Is(target error) bool {
	return target == ErrInvalidBlockTable
}

// validateBlocks checks that blocks cover one slab each, stay inside the
// data section and do not overlap.
func validateBlocks(blocks []BlockMeta, count int, slabBytes, dataSize int64) error {
	if len(blocks) != count {
		return &BlockTableError{Block: -1, Details: fmt.Sprintf("got %d blocks, expected %d", len(blocks), count)}
	}

	order := make([]int, len(blocks))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return blocks[order[a]].Offset < blocks[order[b]].Offset
	})

	for k, i := range order {
		b := blocks[i]
		if b.Offset < 0 || b.Size < 0 {
			return &BlockTableError{Block: i, Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", b.Offset, b.Size)}
		}
		if b.RawSize != slabBytes {
			return &BlockTableError{Block: i, Details: fmt.Sprintf("raw size %d, expected %d", b.RawSize, slabBytes)}
		}
		if b.Offset+b.Size > dataSize {
			return &BlockTableError{Block: i, Details: fmt.Sprintf("offset %d + size %d > data_size %d", b.Offset, b.Size, dataSize)}
		}
		if k < len(order)-1 {
			next := blocks[order[k+1]]
			if b.Offset+b.Size > next.Offset {
				return &BlockTableError{Block: i, Details: fmt.Sprintf("overlaps block %d", order[k+1])}
			}
		}
	}
	return nil
}
