// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/container"
	"github.com/born-ml/tomo/internal/dataset"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/plugin"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/tensor"
)

// Type aliases for public API

// Runner executes stages over a dataset.
type Runner = pipeline.Runner

// Option configures a Runner.
type Option = pipeline.Option

// Result is the outcome of a run.
type Result = pipeline.Result

// Stage is one transformation of a pipeline.
type Stage = pipeline.Stage

// Setup collects what a stage declares about its input.
type Setup = pipeline.Setup

// Plan is the frame and chunk layout of one stage.
type Plan = pipeline.Plan

// Chunk is the unit of work handed to Stage.Process.
type Chunk = pipeline.Chunk

// Frame is one frame of a chunk with its padding.
type Frame = pipeline.Frame

// FrameMeta locates a frame in the stage input.
type FrameMeta = pipeline.FrameMeta

// ConfigurationError reports a setup failure of one stage.
type ConfigurationError = pipeline.ConfigurationError

// StageError reports a failure while a stage processed a chunk.
type StageError = pipeline.StageError

// Dataset is a named array with its access patterns.
type Dataset = dataset.Dataset

// DatasetOption configures a dataset when it is created or opened.
type DatasetOption = dataset.Option

// Store creates and opens backing arrays.
type Store = store.Store

// Logger is the structured logger used by runs.
type Logger = logging.Logger

// Params holds plugin or variant parameters.
type Params = config.Params

// PatternName names an access pattern.
type PatternName = pattern.Name

// ChunkSize is the number of frames handed to a stage per call.
type ChunkSize = slicing.ChunkSize

// Compression selects the block codec of a saved container.
type Compression = container.Compression

// Chunk sizes.
const (
	Single   ChunkSize = slicing.Single
	Multiple ChunkSize = slicing.Multiple
)

// Well-known pattern names.
const (
	Projection PatternName = pattern.Projection
	Sinogram   PatternName = pattern.Sinogram
	VolumeXY   PatternName = pattern.VolumeXY
	VolumeXZ   PatternName = pattern.VolumeXZ
	VolumeYZ   PatternName = pattern.VolumeYZ
)

// Compression codecs.
const (
	CompressionNone Compression = container.CompressionNone
	CompressionLZ4  Compression = container.CompressionLZ4
	CompressionZSTD Compression = container.CompressionZSTD
)

// Errors.
var (
	ErrConfiguration = pipeline.ErrConfiguration
	ErrUnknownPlugin = plugin.ErrUnknownPlugin
)

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	return pipeline.NewRunner(opts...)
}

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return pipeline.WithWorkers(n)
}

// WithStore sets where stage outputs are allocated.
func WithStore(st Store) Option {
	return pipeline.WithStore(st)
}

// WithOutputDType sets the element type of stage outputs.
func WithOutputDType(dt tensor.DataType) Option {
	return pipeline.WithOutputDType(dt)
}

// WithLogger sets the logger of a runner.
func WithLogger(l *Logger) Option {
	return pipeline.WithLogger(l)
}

// IsConfigurationError reports whether err was raised while setting up a run.
func IsConfigurationError(err error) bool {
	return pipeline.IsConfigurationError(err)
}

// NewMemoryStore creates a store that keeps arrays in memory.
func NewMemoryStore() Store {
	return store.NewMemoryStore()
}

// NewFileStore creates a store that keeps one raw file per array in dir.
// A positive ioLimit throttles reads and writes to that many bytes per second.
func NewFileStore(dir string, ioLimit int64) (Store, error) {
	return store.NewFileStore(dir, store.WithIOLimit(ioLimit))
}

// WithVariant composes a dataset with a registered indexing variant.
func WithVariant(name string, params Params) DatasetOption {
	return dataset.WithVariant(name, params)
}

// WithExtraArrays opens further arrays as sources of a composed variant.
func WithExtraArrays(names ...string) DatasetOption {
	return dataset.WithExtraArrays(names...)
}

// CreateDataset allocates a new zero-filled dataset in st.
func CreateDataset(ctx context.Context, st Store, name string, shape tensor.Shape, dtype tensor.DataType, opts ...DatasetOption) (*Dataset, error) {
	return dataset.Create(ctx, st, name, shape, dtype, opts...)
}

// OpenDataset opens an existing array of st as a dataset.
func OpenDataset(ctx context.Context, st Store, name string, opts ...DatasetOption) (*Dataset, error) {
	return dataset.Open(ctx, st, name, opts...)
}

// OpenContainer opens a .tomo file as a read-only dataset.
func OpenContainer(path string, opts ...DatasetOption) (*Dataset, error) {
	return dataset.OpenContainer(path, opts...)
}

// SaveContainer writes d to a .tomo file.
func SaveContainer(ctx context.Context, d *Dataset, path string, c Compression) error {
	return dataset.Save(ctx, d, path, c)
}

// BuildStage creates a built-in plugin stage by name.
func BuildStage(name string, params Params) (Stage, error) {
	return plugin.NewDefaultRegistry().Build(name, params, nil)
}

// Plugins returns the names of the built-in plugins.
func Plugins() []string {
	return plugin.NewDefaultRegistry().Names()
}
