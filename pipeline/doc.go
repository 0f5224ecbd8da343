// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline runs chains of stages over N-dimensional scientific
// datasets with a fixed pool of workers.
//
// # Overview
//
// A dataset registers named access patterns. Each pattern splits the
// dataset's dimensions into core dimensions, which every frame spans in
// full, and slice dimensions, which are iterated one index at a time. A
// stage declares the pattern it reads, how many frames it wants per call
// and optional padding along slice dimensions. The runner turns that into a
// plan of frames and chunks, splits the chunks across workers, and places a
// barrier between stages.
//
// # Basic Usage
//
//	st := pipeline.NewMemoryStore()
//	d, _ := pipeline.CreateDataset(ctx, st, "scan", tensor.Shape{180, 64, 64}, tensor.Float32)
//	d.RegisterPattern(pipeline.Projection, []int{1, 2}, []int{0})
//
//	scale, _ := pipeline.BuildStage("Scale", pipeline.Params{"factor": 2.0})
//	res, err := pipeline.NewRunner(pipeline.WithWorkers(4)).Run(ctx, d, scale)
//
// # Custom Stages
//
// Any type implementing Stage can be run. Setup is called once before
// processing starts; Process is called concurrently, once per chunk.
package pipeline
