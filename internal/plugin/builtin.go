package plugin

import (
	"context"
	"fmt"
	"math"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/parallel"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/tensor"
)

// Built-in plugin names.
const (
	NoProcessName          = "NoProcess"
	ScaleName              = "Scale"
	DarkFlatCorrectionName = "DarkFlatCorrection"
	MeanFilterName         = "MeanFilter"
	FrameStatsName         = "FrameStats"
)

// NoProcess copies its input to its output unchanged.
//
// Parameters: pattern (default PROJECTION), chunk_size, fixed_dims,
// fixed_values.
type NoProcess struct {
	framing framing
}

// NewNoProcess is the Factory for NoProcess.
func NewNoProcess(params config.Params, _ *logging.Logger) (pipeline.Stage, error) {
	f, err := parseFraming(params, pattern.Projection)
	if err != nil {
		return nil, err
	}
	return &NoProcess{framing: f}, nil
}

// Name implements pipeline.Stage.
func (n *NoProcess) Name() string { return NoProcessName }

// Setup implements pipeline.Stage.
func (n *NoProcess) Setup(s *pipeline.Setup) error {
	_, err := n.framing.declare(s)
	return err
}

// Process implements pipeline.Stage.
func (n *NoProcess) Process(_ context.Context, c *pipeline.Chunk) ([]*tensor.Array, error) {
	return mapFrames(c, func(_ int, core *tensor.Array) (*tensor.Array, error) {
		return core.Clone(), nil
	})
}

// Scale multiplies every element by a constant factor.
//
// Parameters: factor (required, finite), plus the framing parameters of
// NoProcess.
type Scale struct {
	framing framing
	factor  float32
}

// NewScale is the Factory for Scale.
func NewScale(params config.Params, _ *logging.Logger) (pipeline.Stage, error) {
	f, err := parseFraming(params, pattern.Projection)
	if err != nil {
		return nil, err
	}
	if !params.Has("factor") {
		return nil, fmt.Errorf("%w: factor is required", ErrInvalidParams)
	}
	factor, err := params.Float("factor", 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: factor must be finite, got %v", ErrInvalidParams, factor)
	}
	return &Scale{framing: f, factor: float32(factor)}, nil
}

// Name implements pipeline.Stage.
func (sc *Scale) Name() string { return ScaleName }

// Setup implements pipeline.Stage.
func (sc *Scale) Setup(s *pipeline.Setup) error {
	_, err := sc.framing.declare(s)
	return err
}

// Process implements pipeline.Stage.
func (sc *Scale) Process(_ context.Context, c *pipeline.Chunk) ([]*tensor.Array, error) {
	cfg := kernelConfig()
	return mapFrames(c, func(_ int, core *tensor.Array) (*tensor.Array, error) {
		out := core.Clone()
		data := out.Data()
		parallel.For(len(data), func(i int) {
			data[i] *= sc.factor
		}, cfg)
		return out, nil
	})
}
