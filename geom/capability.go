// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

// WorldOf is the capability the engine needs from an image-like
// object: map a flat index (e.g. a slice pixel or a volume voxel) to
// its world-space coordinate. *volume.Volume and *sliceimg.Slice both
// implement it.
type WorldOf interface {
	WorldOf(idx int) [3]float64
}
