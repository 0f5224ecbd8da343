// Package plugin holds the stage implementations a run configuration can
// name, and the registry that builds them from parameters.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/parallel"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/tensor"
)

// Common errors.
var (
	ErrUnknownPlugin = errors.New("unknown plugin")
	ErrInvalidParams = errors.New("invalid plugin parameters")
)

// Factory builds a stage from its configuration parameters.
type Factory func(params config.Params, log *logging.Logger) (pipeline.Stage, error)

// Registry maps plugin names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry holding the built-in plugins.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NoProcessName, NewNoProcess)
	r.MustRegister(ScaleName, NewScale)
	r.MustRegister(DarkFlatCorrectionName, NewDarkFlatCorrection)
	r.MustRegister(MeanFilterName, NewMeanFilter)
	r.MustRegister(FrameStatsName, NewFrameStats)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Build creates the named stage. A nil logger discards output.
func (r *Registry) Build(name string, params config.Params, log *logging.Logger) (pipeline.Stage, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownPlugin, name, r.Names())
	}
	if log == nil {
		log = logging.NoopLogger()
	}
	st, err := f(params, log)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}
	return st, nil
}

// BuildAll creates one stage per configuration entry, in order.
func (r *Registry) BuildAll(stages []config.StageConfig, log *logging.Logger) ([]pipeline.Stage, error) {
	out := make([]pipeline.Stage, 0, len(stages))
	for i, sc := range stages {
		st, err := r.Build(sc.Plugin, sc.Params, log)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// framing is the pattern, chunk size and fixed directions every built-in
// plugin accepts.
type framing struct {
	pattern     pattern.Name
	chunk       slicing.ChunkSize
	fixedDims   []int
	fixedValues []int
}

// parseFraming reads the "pattern", "chunk_size", "fixed_dims" and
// "fixed_values" parameters. chunk_size is either a frame count or one of
// the names slicing.ParseChunkSize accepts.
func parseFraming(params config.Params, defaultPattern pattern.Name) (framing, error) {
	name, err := params.String("pattern", string(defaultPattern))
	if err != nil {
		return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	f := framing{pattern: pattern.Name(name), chunk: slicing.Single}
	if err := f.pattern.Validate(); err != nil {
		return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	switch v := params["chunk_size"].(type) {
	case nil:
	case string:
		if f.chunk, err = slicing.ParseChunkSize(v); err != nil {
			return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	default:
		n, err := params.Int("chunk_size", 1)
		if err != nil {
			return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		f.chunk = slicing.ChunkSize(n)
		if _, err := f.chunk.Resolve(1); err != nil {
			return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}

	if f.fixedDims, err = params.Ints("fixed_dims"); err != nil {
		return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if f.fixedValues, err = params.Ints("fixed_values"); err != nil {
		return framing{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return f, nil
}

// declare declares the pattern, chunk size and any fixed directions on s.
// Fixed directions are checked against the declared pattern, so fixing a
// core dimension fails here.
func (f framing) declare(s *pipeline.Setup) (pattern.Pattern, error) {
	p, err := s.DeclarePattern(f.pattern)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if err := s.DeclareChunkSize(f.chunk); err != nil {
		return pattern.Pattern{}, err
	}
	if len(f.fixedDims) > 0 || len(f.fixedValues) > 0 {
		if err := s.DeclareFixed(f.fixedDims, f.fixedValues); err != nil {
			return pattern.Pattern{}, err
		}
	}
	return p, nil
}

// mapFrames applies fn to the core of every frame of c and returns the
// results in frame order.
func mapFrames(c *pipeline.Chunk, fn func(i int, core *tensor.Array) (*tensor.Array, error)) ([]*tensor.Array, error) {
	out := make([]*tensor.Array, len(c.Frames))
	for i, f := range c.Frames {
		core, err := f.Core()
		if err != nil {
			return nil, err
		}
		if out[i], err = fn(i, core); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Meta.Global, err)
		}
	}
	return out, nil
}

// kernelConfig is the in-process loop configuration for per-element work.
// Workers already run chunks concurrently, so loops only fan out on large
// frames.
func kernelConfig() parallel.Config {
	cfg := parallel.DefaultConfig()
	cfg.MinChunkSize = 1 << 14
	return cfg
}
