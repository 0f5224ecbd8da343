package pipeline

import (
	"context"

	"github.com/born-ml/tomo/internal/dataset"
	"github.com/born-ml/tomo/internal/padding"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/tensor"
)

// Stage is one transformation of a pipeline.
//
// Setup is called once, before any worker starts, to declare how the stage
// reads its input. Process is then called concurrently from every worker,
// once per assigned chunk, and must return one array per frame with the
// shape of the frame's unpadded region.
type Stage interface {
	Name() string
	Setup(s *Setup) error
	Process(ctx context.Context, c *Chunk) ([]*tensor.Array, error)
}

// Setup collects what a stage declares about its input.
type Setup struct {
	index     int
	input     *dataset.Dataset
	origin    *dataset.Dataset
	selection *pattern.Selection

	chunkSize slicing.ChunkSize
	padding   padding.Spec
	fixed     slicing.FixedDirections
}

func newSetup(index int, input, origin *dataset.Dataset) *Setup {
	return &Setup{
		index:     index,
		input:     input,
		origin:    origin,
		selection: input.Patterns().Select(),
		chunkSize: slicing.Single,
		padding:   make(padding.Spec),
	}
}

// Index returns the stage's position in the pipeline.
func (s *Setup) Index() int { return s.index }

// Input returns the dataset the stage reads.
func (s *Setup) Input() *dataset.Dataset { return s.input }

// Origin returns the pipeline's original input, which still carries any
// dark/flat calibration.
func (s *Setup) Origin() *dataset.Dataset { return s.origin }

// DeclarePattern selects the access pattern frames are generated from.
func (s *Setup) DeclarePattern(name pattern.Name) (pattern.Pattern, error) {
	p, err := s.selection.Activate(name)
	if err != nil {
		return pattern.Pattern{}, err
	}
	s.fixed.Unfix()
	return p, nil
}

// DeclareChunkSize sets how many frames are handed to Process at once.
// The default is slicing.Single.
func (s *Setup) DeclareChunkSize(n slicing.ChunkSize) error {
	if _, err := n.Resolve(1); err != nil {
		return err
	}
	s.chunkSize = n
	return nil
}

// DeclarePadding requests before and after neighbours along dim. Only slice
// dimensions of the declared pattern may be padded.
func (s *Setup) DeclarePadding(dim, before, after int) error {
	p, err := s.selection.Active()
	if err != nil {
		return err
	}
	candidate := make(padding.Spec, len(s.padding)+1)
	for d, m := range s.padding {
		candidate[d] = m
	}
	if d, err := tensor.NormalizeAxis(dim, p.Rank()); err == nil {
		dim = d
	}
	candidate[dim] = padding.Margin{Before: before, After: after}
	norm, err := candidate.Normalize(p)
	if err != nil {
		return err
	}
	s.padding = norm
	return nil
}

// DeclareFixed pins slice dimensions of the declared pattern to one index.
func (s *Setup) DeclareFixed(dims, values []int) error {
	p, err := s.selection.Active()
	if err != nil {
		return err
	}
	return s.fixed.Fix(dims, values, p, s.input.Shape())
}

// Pattern returns the declared pattern.
func (s *Setup) Pattern() (pattern.Pattern, error) {
	return s.selection.Active()
}
