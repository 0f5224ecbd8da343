package slicing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/tomo/internal/tensor"
)

// ErrInvalidChunkSize is returned for chunk sizes below one.
var ErrInvalidChunkSize = errors.New("invalid chunk size")

// ChunkSize is the number of frames handed to a stage per processing call.
// Positive values are literal frame counts; Multiple means all frames.
type ChunkSize int

// Chunk size sentinels.
const (
	Multiple ChunkSize = -1
	Single   ChunkSize = 1
)

// ParseChunkSize accepts "single", "multiple", "all" or a positive integer.
func ParseChunkSize(s string) (ChunkSize, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "single":
		return Single, nil
	case "multiple", "all":
		return Multiple, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunkSize, s)
	}
	return ChunkSize(n), nil
}

// Resolve converts the chunk size into a frame count for a list of total frames.
func (c ChunkSize) Resolve(total int) (int, error) {
	switch {
	case c == Multiple:
		return max(total, 1), nil
	case c >= 1:
		return int(c), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidChunkSize, int(c))
	}
}

// String formats the chunk size the way ParseChunkSize accepts it.
func (c ChunkSize) String() string {
	switch c {
	case Multiple:
		return "multiple"
	case Single:
		return "single"
	default:
		return strconv.Itoa(int(c))
	}
}

// Chunk is a contiguous run of frames processed in one call.
type Chunk struct {
	Index  int             // Position in the chunk sequence.
	First  int             // Global index of the first frame.
	Frames []tensor.Region // Frames in slice-list order.
}

// Len returns the number of frames in the chunk.
func (c Chunk) Len() int {
	return len(c.Frames)
}

// Bounds returns the single region covering every frame of the chunk when
// the frames are consecutive along one dimension and identical elsewhere.
func (c Chunk) Bounds() (tensor.Region, bool) {
	if len(c.Frames) == 0 {
		return nil, false
	}
	first := c.Frames[0]
	if len(c.Frames) == 1 {
		return first.Clone(), true
	}

	axis := -1
	for d := range first {
		if c.Frames[1][d] != first[d] {
			if axis >= 0 {
				return nil, false
			}
			axis = d
		}
	}
	if axis < 0 || first[axis].Len() != 1 {
		return nil, false
	}
	for i, f := range c.Frames {
		for d := range f {
			if d == axis {
				if f[d].Start != first[d].Start+i || f[d].Len() != 1 {
					return nil, false
				}
			} else if f[d] != first[d] {
				return nil, false
			}
		}
	}

	bounds := first.Clone()
	bounds[axis] = tensor.Selector{Start: first[axis].Start, Stop: first[axis].Start + len(c.Frames)}
	return bounds, true
}

// Group partitions frames into chunks of size frames each. The final chunk
// holds the remainder when size does not divide len(frames).
func Group(frames []tensor.Region, size ChunkSize) ([]Chunk, error) {
	n, err := size.Resolve(len(frames))
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, (len(frames)+n-1)/n)
	for start := 0; start < len(frames); start += n {
		end := min(start+n, len(frames))
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			First:  start,
			Frames: frames[start:end:end],
		})
	}
	return chunks, nil
}

// Ungroup concatenates the frames of chunks in order. It is the exact
// inverse of Group.
func Ungroup(chunks []Chunk) []tensor.Region {
	total := 0
	for _, c := range chunks {
		total += len(c.Frames)
	}
	frames := make([]tensor.Region, 0, total)
	for _, c := range chunks {
		frames = append(frames, c.Frames...)
	}
	return frames
}
