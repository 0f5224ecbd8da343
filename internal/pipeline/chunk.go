package pipeline

import (
	"context"
	"fmt"

	"github.com/born-ml/tomo/internal/dataset"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/padding"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/tensor"
)

// FrameMeta locates a frame in the stage input.
type FrameMeta struct {
	Global int           // index in the stage's slice list
	Region tensor.Region // unpadded frame region
	Padded tensor.Region // region actually read, clamped to the dataset
	Offset []int         // position of Region inside Padded
}

// Frame is one frame of a chunk: its padded data and where it came from.
// Data may share memory with neighbouring frames and must not be modified.
type Frame struct {
	Data *tensor.Array
	Meta FrameMeta
}

// Core returns the view of Data without padding.
func (f Frame) Core() (*tensor.Array, error) {
	return padding.Crop(f.Data, f.Meta.Region, padding.Padded{Region: f.Meta.Padded, Offset: f.Meta.Offset})
}

// Chunk is the unit handed to Stage.Process.
type Chunk struct {
	Index  int // position in the stage's chunk sequence
	Plan   *Plan
	Frames []Frame
}

// readChunk reads every frame of c with its padding. When the frames of a
// chunk form one contiguous block, the whole padded block is read in a
// single call and each frame is a view into it. Margins cut short at the
// dataset edge are logged at debug level.
func readChunk(ctx context.Context, log *logging.Logger, in *dataset.Access, plan *Plan, c slicing.Chunk) (*Chunk, error) {
	out := &Chunk{
		Index:  c.Index,
		Plan:   plan,
		Frames: make([]Frame, len(c.Frames)),
	}

	var block *tensor.Array
	var blockRegion tensor.Region
	if bounds, ok := c.Bounds(); ok && len(c.Frames) > 1 {
		blockRegion = padding.Resolve(bounds, plan.Shape, plan.Padding).Region
		a, err := in.Read(ctx, blockRegion)
		if err != nil {
			return nil, err
		}
		block = a
	}

	for i, region := range c.Frames {
		p := padding.Resolve(region, plan.Shape, plan.Padding)
		meta := FrameMeta{
			Global: c.First + i,
			Region: region,
			Padded: p.Region,
			Offset: p.Offset,
		}
		if p.Clamped(region, plan.Padding) {
			log.DebugContext(ctx, "padding clamped",
				"frame", meta.Global,
				"chunk", c.Index,
				"padded", p.Region.String(),
			)
		}

		var data *tensor.Array
		var err error
		if block != nil {
			data, err = block.View(relative(p.Region, blockRegion))
		} else {
			data, err = in.Read(ctx, p.Region)
		}
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", meta.Global, err)
		}
		out.Frames[i] = Frame{Data: data, Meta: meta}
	}
	return out, nil
}

// relative expresses r in the coordinates of an array laid out as outer.
func relative(r, outer tensor.Region) tensor.Region {
	out := make(tensor.Region, len(r))
	for d, sel := range r {
		out[d] = tensor.Selector{Start: sel.Start - outer[d].Start, Stop: sel.Stop - outer[d].Start}
	}
	return out
}

// writeChunk writes the stage results for c to out.
func writeChunk(ctx context.Context, out *dataset.Access, c *Chunk, results []*tensor.Array) error {
	if len(results) != len(c.Frames) {
		return fmt.Errorf("stage returned %d results for %d frames", len(results), len(c.Frames))
	}
	for i, f := range c.Frames {
		want := f.Meta.Region.Shape()
		if results[i] == nil || !results[i].Shape().Equal(want) {
			var got tensor.Shape
			if results[i] != nil {
				got = results[i].Shape()
			}
			return fmt.Errorf("frame %d: result shape %v, expected %v", f.Meta.Global, got, want)
		}
		if err := out.Write(ctx, f.Meta.Region, results[i]); err != nil {
			return fmt.Errorf("frame %d: %w", f.Meta.Global, err)
		}
	}
	return nil
}
