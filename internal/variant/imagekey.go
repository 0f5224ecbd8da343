package variant

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Category classifies one index of the image key axis.
type Category int

// Image key codes, as stored in acquisition files.
const (
	Data Category = 0
	Flat Category = 1
	Dark Category = 2
)

func (c Category) String() string {
	switch c {
	case Data:
		return "data"
	case Flat:
		return "flat"
	case Dark:
		return "dark"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// SelectorError describes a malformed image key.
type SelectorError struct {
	Index  int // offending position, or -1
	Code   int
	Reason string
}

func (e *SelectorError) Error() string {
	if e.Index < 0 {
		return "malformed selector: " + e.Reason
	}
	return fmt.Sprintf("malformed selector at index %d (code %d): %s", e.Index, e.Code, e.Reason)
}

// Is reports whether target is ErrMalformedSelector.
func (e *SelectorError) Is(target error) bool {
	return target == ErrMalformedSelector
}

// ImageKey classifies every index along one axis as data, flat or dark.
// Each category is held as a bitmap of physical indices.
type ImageKey struct {
	n     int
	codes []Category
	sets  [3]*roaring.Bitmap
}

// NewImageKey builds an image key from raw codes.
// It fails when the key is empty, holds an unknown code, or has no data.
func NewImageKey(codes []int) (*ImageKey, error) {
	if len(codes) == 0 {
		return nil, &SelectorError{Index: -1, Reason: "empty image key"}
	}
	k := &ImageKey{
		n:     len(codes),
		codes: make([]Category, len(codes)),
	}
	for i := range k.sets {
		k.sets[i] = roaring.New()
	}
	for i, c := range codes {
		if c < int(Data) || c > int(Dark) {
			return nil, &SelectorError{Index: i, Code: c, Reason: "unknown category"}
		}
		k.codes[i] = Category(c)
		k.sets[c].Add(uint32(i))
	}
	if k.sets[Data].IsEmpty() {
		return nil, &SelectorError{Index: -1, Reason: "no data entries"}
	}
	return k, nil
}

// AllData returns a key of n data entries.
func AllData(n int) *ImageKey {
	codes := make([]int, n)
	k, err := NewImageKey(codes)
	if err != nil {
		panic(err)
	}
	return k
}

// Len returns the number of physical indices the key covers.
func (k *ImageKey) Len() int { return k.n }

// Category returns the category of physical index i.
func (k *ImageKey) Category(i int) Category { return k.codes[i] }

// Count returns how many indices belong to c.
func (k *ImageKey) Count(c Category) int {
	return int(k.sets[c].GetCardinality())
}

// Indices returns the physical indices of c in ascending order.
func (k *ImageKey) Indices(c Category) []int {
	raw := k.sets[c].ToArray()
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	return out
}

// Codes returns the raw codes.
func (k *ImageKey) Codes() []int {
	out := make([]int, k.n)
	for i, c := range k.codes {
		out[i] = int(c)
	}
	return out
}

// DataIndex maps a logical data-only index to its physical index.
func (k *ImageKey) DataIndex(i int) (int, error) {
	if i < 0 || i >= k.Count(Data) {
		return 0, fmt.Errorf("data index %d out of range [0, %d)", i, k.Count(Data))
	}
	p, err := k.sets[Data].Select(uint32(i))
	if err != nil {
		return 0, err
	}
	return int(p), nil
}
