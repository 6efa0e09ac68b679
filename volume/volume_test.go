// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package volume

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
)

func Test_grid_index_roundtrip(tst *testing.T) {
	g := NewGrid(4, 3, 2)
	for k := 0; k < 2; k++ {
		for j := 0; j < 3; j++ {
			for i := 0; i < 4; i++ {
				idx := g.Index(i, j, k)
				ci, cj, ck := g.Coords(idx)
				chk.IntAssert(ci, i)
				chk.IntAssert(cj, j)
				chk.IntAssert(ck, k)
			}
		}
	}
}

func Test_clip_non_negative(tst *testing.T) {
	v := NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, 2, 2)
	v.Image.Set(0, 0, 0, -5)
	v.Image.Set(1, 1, 1, 3)
	v.ClipNonNegative()
	chk.Scalar(tst, "clipped voxel", 1e-12, v.Image.At(0, 0, 0), 0)
	chk.Scalar(tst, "unchanged voxel", 1e-12, v.Image.At(1, 1, 1), 3)
}

func Test_world_of(tst *testing.T) {
	v := NewVolume(geom.IdentityAffine([3]float64{0, 0, 0}, [3]float64{0.75, 0.75, 0.75}), 2, 2, 2)
	w := v.WorldOf(v.Image.Index(1, 0, 0))
	chk.Vector(tst, "world", 1e-12, w[:], []float64{0.75, 0, 0})
}
