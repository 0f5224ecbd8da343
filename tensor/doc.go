// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the N-dimensional arrays and index regions used by
// tomo pipelines.
//
// # Overview
//
// Frame data is always held as float32 in memory. DataType only describes
// how a backing store encodes elements on disk.
//   - Array: strided float32 array with zero-copy views
//   - Region, Selector: half-open index ranges, one per dimension
//   - Shape, DataType: core type definitions
//
// # Basic Usage
//
//	a := tensor.Zeros(tensor.Shape{4, 3, 5})
//	frame, _ := a.View(tensor.Region{{Start: 2, Stop: 3}, {Start: 0, Stop: 3}, {Start: 0, Stop: 5}})
//	frame.Apply(func(x float32) float32 { return x + 1 })
//
// # Broadcasting
//
// Expand presents a size-1 dimension n times without copying, by giving it
// a zero stride:
//
//	b := tensor.Full(tensor.Shape{1, 3}, 2).Expand(0, 4) // (4, 3), one row in memory
//
// Views share memory with their parent. Call Clone for an independent copy.
package tensor
