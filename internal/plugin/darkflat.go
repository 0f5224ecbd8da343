package plugin

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/parallel"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/tensor"
	"github.com/born-ml/tomo/internal/variant"
)

// ErrMissingCalibration is returned when a correction runs on a dataset
// without dark/flat calibration.
var ErrMissingCalibration = errors.New("dataset has no dark/flat calibration")

// DarkFlatCorrection normalizes every data frame as
//
//	(data - dark) / (flat - dark)
//
// using the mean dark and flat frames of the pipeline's original input.
// Where |flat - dark| is below epsilon the output is 0.
//
// Parameters: epsilon (default 1e-6), plus the framing parameters of
// NoProcess. The key axis of the calibration must be a slice dimension of
// the pattern.
type DarkFlatCorrection struct {
	framing framing
	epsilon float32

	cal *variant.DarkFlat
}

// NewDarkFlatCorrection is the Factory for DarkFlatCorrection.
func NewDarkFlatCorrection(params config.Params, _ *logging.Logger) (pipeline.Stage, error) {
	f, err := parseFraming(params, pattern.Projection)
	if err != nil {
		return nil, err
	}
	eps, err := params.Float("epsilon", 1e-6)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if eps < 0 || math.IsNaN(eps) {
		return nil, fmt.Errorf("%w: epsilon must be non-negative, got %v", ErrInvalidParams, eps)
	}
	return &DarkFlatCorrection{framing: f, epsilon: float32(eps)}, nil
}

// Name implements pipeline.Stage.
func (d *DarkFlatCorrection) Name() string { return DarkFlatCorrectionName }

// Setup implements pipeline.Stage.
func (d *DarkFlatCorrection) Setup(s *pipeline.Setup) error {
	p, err := d.framing.declare(s)
	if err != nil {
		return err
	}
	cal, ok := s.Origin().DarkFlat()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingCalibration, s.Origin().Name())
	}
	if !p.IsSlice(cal.Axis()) {
		return fmt.Errorf("%w: calibration axis %d is not a slice dimension of %s", ErrInvalidParams, cal.Axis(), p.Name)
	}
	if !s.Input().Shape().Equal(cal.Shape()) {
		return fmt.Errorf("%w: input shape %v does not match calibrated shape %v", ErrInvalidParams, s.Input().Shape(), cal.Shape())
	}
	d.cal = cal
	return nil
}

// Process implements pipeline.Stage.
func (d *DarkFlatCorrection) Process(ctx context.Context, c *pipeline.Chunk) ([]*tensor.Array, error) {
	dark, err := d.cal.Dark(ctx)
	if err != nil {
		return nil, err
	}
	flat, err := d.cal.Flat(ctx)
	if err != nil {
		return nil, err
	}

	axis := d.cal.Axis()
	cfg := kernelConfig()
	return mapFrames(c, func(i int, core *tensor.Array) (*tensor.Array, error) {
		region := calibrationRegion(c.Frames[i].Meta.Region, axis)
		darkFrame, err := dark.View(region)
		if err != nil {
			return nil, err
		}
		flatFrame, err := flat.View(region)
		if err != nil {
			return nil, err
		}

		out := core.Clone()
		data := out.Data()
		dk := darkFrame.Unsqueeze(axis).Data()
		fl := flatFrame.Unsqueeze(axis).Data()
		parallel.For(len(data), func(j int) {
			den := fl[j] - dk[j]
			if float32(math.Abs(float64(den))) < d.epsilon || den == 0 {
				data[j] = 0
				return
			}
			data[j] = (data[j] - dk[j]) / den
		}, cfg)
		return out, nil
	})
}

// calibrationRegion drops the key axis from a frame region, giving the
// matching region of the dark and flat frames.
func calibrationRegion(r tensor.Region, axis int) tensor.Region {
	out := make(tensor.Region, 0, len(r)-1)
	for d, sel := range r {
		if d != axis {
			out = append(out, sel)
		}
	}
	return out
}
