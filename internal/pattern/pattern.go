// Package pattern stores the named access patterns registered on a dataset.
//
// A pattern splits the axes of an N-dimensional dataset into core dimensions,
// which are always processed together, and slice dimensions, which are
// iterated to enumerate frames.
package pattern

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/born-ml/tomo/internal/tensor"
)

// Name identifies an access pattern.
type Name string

// Core-known pattern names.
const (
	Projection   Name = "PROJECTION"
	Sinogram     Name = "SINOGRAM"
	VolumeXY     Name = "VOLUME_XY"
	VolumeXZ     Name = "VOLUME_XZ"
	VolumeYZ     Name = "VOLUME_YZ"
	Volume3D     Name = "VOLUME_3D"
	Tangentogram Name = "TANGENTOGRAM"
	SinoMovie    Name = "SINOMOVIE"
	Diffraction  Name = "DIFFRACTION"
	Spectrum     Name = "SPECTRUM"
	Scan4D       Name = "4D_SCAN"
	Timeseries   Name = "TIMESERIES"
	Metadata     Name = "METADATA"
)

var knownNames = []Name{
	Projection, Sinogram, VolumeXY, VolumeXZ, VolumeYZ, Volume3D,
	Tangentogram, SinoMovie, Diffraction, Spectrum, Scan4D, Timeseries, Metadata,
}

var userNamePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_]*$`)

// Known reports whether n is one of the enumerated core pattern names.
func (n Name) Known() bool {
	return slices.Contains(knownNames, n)
}

// Validate checks a pattern name.
//
// Known names are always valid. User-defined names must be upper-case
// identifiers and must not be a differently spelled known name (for example
// "Projection" or "projection").
func (n Name) Validate() error {
	if n.Known() {
		return nil
	}
	for _, k := range knownNames {
		if strings.EqualFold(string(n), string(k)) ||
			strings.EqualFold(strings.ReplaceAll(string(n), "-", "_"), string(k)) {
			return fmt.Errorf("%w: %q (did you mean %q?)", ErrInvalidName, n, k)
		}
	}
	if !userNamePattern.MatchString(string(n)) {
		return fmt.Errorf("%w: %q", ErrInvalidName, n)
	}
	return nil
}

// KnownNames returns the enumerated core pattern names.
func KnownNames() []Name {
	return slices.Clone(knownNames)
}

// Pattern is a validated split of a dataset's axes.
//
// Core is sorted ascending. Slice keeps its declared order, which is the
// iteration order used by slice-list generation (last varies fastest).
type Pattern struct {
	Name  Name
	Core  []int
	Slice []int
}

// Rank returns the number of dimensions the pattern covers.
func (p Pattern) Rank() int {
	return len(p.Core) + len(p.Slice)
}

// IsCore reports whether dim is a core dimension.
func (p Pattern) IsCore(dim int) bool {
	return slices.Contains(p.Core, dim)
}

// IsSlice reports whether dim is a slice dimension.
func (p Pattern) IsSlice(dim int) bool {
	return slices.Contains(p.Slice, dim)
}

// Clone returns a deep copy.
func (p Pattern) Clone() Pattern {
	return Pattern{
		Name:  p.Name,
		Core:  slices.Clone(p.Core),
		Slice: slices.Clone(p.Slice),
	}
}

// String formats the pattern for logs and errors.
func (p Pattern) String() string {
	return fmt.Sprintf("%s(core=%v, slice=%v)", p.Name, p.Core, p.Slice)
}

// New validates a core/slice split for a dataset of the given rank and
// returns the normalized pattern.
//
// Negative dimensions are normalized with tensor.NormalizeAxis. The split
// must be a partition of {0..rank-1}: every dimension appears exactly once
// across core and slice.
func New(name Name, core, slice []int, rank int) (Pattern, error) {
	if err := name.Validate(); err != nil {
		return Pattern{}, &InvalidPatternError{Pattern: name, Dim: NoDim, Reason: err.Error(), cause: err}
	}

	seen := make(map[int]string, rank)
	normalize := func(dims []int, role string) ([]int, error) {
		out := make([]int, len(dims))
		for i, d := range dims {
			nd, err := tensor.NormalizeAxis(d, rank)
			if err != nil {
				return nil, &InvalidPatternError{
					Pattern: name, Dim: d,
					Reason: fmt.Sprintf("%s dimension out of range for rank %d", role, rank),
					cause:  err,
				}
			}
			if prev, dup := seen[nd]; dup {
				return nil, &InvalidPatternError{
					Pattern: name, Dim: nd,
					Reason: fmt.Sprintf("dimension listed as both %s and %s", prev, role),
				}
			}
			seen[nd] = role
			out[i] = nd
		}
		return out, nil
	}

	c, err := normalize(core, "core")
	if err != nil {
		return Pattern{}, err
	}
	s, err := normalize(slice, "slice")
	if err != nil {
		return Pattern{}, err
	}

	for d := 0; d < rank; d++ {
		if _, ok := seen[d]; !ok {
			return Pattern{}, &InvalidPatternError{
				Pattern: name, Dim: d,
				Reason: "dimension is neither core nor slice",
			}
		}
	}

	slices.Sort(c)
	return Pattern{Name: name, Core: c, Slice: s}, nil
}
