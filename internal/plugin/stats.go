package plugin

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/tensor"
)

// FrameSummary holds the statistics of one frame.
type FrameSummary struct {
	Frame  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// FrameStats passes frames through unchanged and records per-frame mean,
// standard deviation and range. Summaries are logged at debug level.
//
// Parameters: the framing parameters of NoProcess.
type FrameStats struct {
	framing framing
	log     *logging.Logger

	mu      sync.Mutex
	summary map[int]FrameSummary
}

// NewFrameStats is the Factory for FrameStats.
func NewFrameStats(params config.Params, log *logging.Logger) (pipeline.Stage, error) {
	f, err := parseFraming(params, pattern.Projection)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NoopLogger()
	}
	return &FrameStats{framing: f, log: log, summary: make(map[int]FrameSummary)}, nil
}

// Name implements pipeline.Stage.
func (fs *FrameStats) Name() string { return FrameStatsName }

// Setup implements pipeline.Stage.
func (fs *FrameStats) Setup(s *pipeline.Setup) error {
	_, err := fs.framing.declare(s)
	return err
}

// Process implements pipeline.Stage.
func (fs *FrameStats) Process(ctx context.Context, c *pipeline.Chunk) ([]*tensor.Array, error) {
	return mapFrames(c, func(i int, core *tensor.Array) (*tensor.Array, error) {
		out := core.Clone()
		s := summarize(c.Frames[i].Meta.Global, out.Data())

		fs.mu.Lock()
		fs.summary[s.Frame] = s
		fs.mu.Unlock()

		fs.log.DebugContext(ctx, "frame statistics",
			"frame", s.Frame,
			"mean", s.Mean,
			"stddev", s.StdDev,
			"min", s.Min,
			"max", s.Max,
		)
		return out, nil
	})
}

// Summary returns the statistics recorded for frame, if it was processed.
func (fs *FrameStats) Summary(frame int) (FrameSummary, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, ok := fs.summary[frame]
	return s, ok
}

// Len returns the number of frames summarized so far.
func (fs *FrameStats) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.summary)
}

func summarize(frame int, data []float32) FrameSummary {
	values := make([]float64, len(data))
	lo, hi := float64(data[0]), float64(data[0])
	for i, v := range data {
		x := float64(v)
		values[i] = x
		lo = min(lo, x)
		hi = max(hi, x)
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}
	return FrameSummary{Frame: frame, Mean: mean, StdDev: std, Min: lo, Max: hi}
}
