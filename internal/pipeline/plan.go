package pipeline

import (
	"github.com/born-ml/tomo/internal/padding"
	"github.com/born-ml/tomo/internal/parallel"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/tensor"
)

// Plan is the frame and chunk layout of one stage. It is built before any
// worker starts and never modified afterwards.
type Plan struct {
	Stage     int
	Name      string
	Pattern   pattern.Pattern
	Shape     tensor.Shape
	ChunkSize slicing.ChunkSize
	Padding   padding.Spec
	Frames    []tensor.Region
	Chunks    []slicing.Chunk
	Workers   int
}

func buildPlan(name string, s *Setup, workers int) (*Plan, error) {
	p, err := s.selection.Active()
	if err != nil {
		return nil, err
	}
	spec, err := s.padding.Normalize(p)
	if err != nil {
		return nil, err
	}
	shape := s.input.Shape()
	frames, err := slicing.Generate(shape, p, &s.fixed)
	if err != nil {
		return nil, err
	}
	chunks, err := slicing.Group(frames, s.chunkSize)
	if err != nil {
		return nil, err
	}
	if err := parallel.VerifyPartition(len(chunks), workers); err != nil {
		return nil, err
	}
	return &Plan{
		Stage:     s.index,
		Name:      name,
		Pattern:   p,
		Shape:     shape.Clone(),
		ChunkSize: s.chunkSize,
		Padding:   spec,
		Frames:    frames,
		Chunks:    chunks,
		Workers:   workers,
	}, nil
}

// Assignment returns the chunks owned by rank, in processing order.
func (p *Plan) Assignment(rank int) []slicing.Chunk {
	start, stop := parallel.AssignRange(len(p.Chunks), p.Workers, rank)
	return p.Chunks[start:stop:stop]
}
