package plugin

import (
	"context"
	"fmt"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/tensor"
)

// MeanFilter replaces every frame with the mean of itself and its radius
// neighbours on each side along one slice dimension. Near the dataset edge
// the window shrinks to the neighbours that exist.
//
// Parameters: radius (default 1), dim (default: first slice dimension of the
// pattern), plus the framing parameters of NoProcess.
type MeanFilter struct {
	framing framing
	radius  int
	dim     *int

	axis int
}

// NewMeanFilter is the Factory for MeanFilter.
func NewMeanFilter(params config.Params, _ *logging.Logger) (pipeline.Stage, error) {
	f, err := parseFraming(params, pattern.Projection)
	if err != nil {
		return nil, err
	}
	radius, err := params.Int("radius", 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: radius must be non-negative, got %d", ErrInvalidParams, radius)
	}
	m := &MeanFilter{framing: f, radius: radius}
	if params.Has("dim") {
		dim, err := params.Int("dim", 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		m.dim = &dim
	}
	return m, nil
}

// Name implements pipeline.Stage.
func (m *MeanFilter) Name() string { return MeanFilterName }

// Setup implements pipeline.Stage.
func (m *MeanFilter) Setup(s *pipeline.Setup) error {
	p, err := m.framing.declare(s)
	if err != nil {
		return err
	}

	switch {
	case m.dim != nil:
		axis, err := tensor.NormalizeAxis(*m.dim, p.Rank())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		m.axis = axis
	case len(p.Slice) > 0:
		m.axis = p.Slice[0]
	default:
		return fmt.Errorf("%w: pattern %s has no slice dimension to filter along", ErrInvalidParams, p.Name)
	}
	return s.DeclarePadding(m.axis, m.radius, m.radius)
}

// Process implements pipeline.Stage.
func (m *MeanFilter) Process(_ context.Context, c *pipeline.Chunk) ([]*tensor.Array, error) {
	out := make([]*tensor.Array, len(c.Frames))
	for i, f := range c.Frames {
		out[i] = tensor.MeanAxis(f.Data, m.axis).Unsqueeze(m.axis)
	}
	return out, nil
}
