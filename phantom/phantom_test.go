// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package phantom

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
)

func testSphere() Sphere {
	return Sphere{Center: [3]float64{20, 20, 20}, Radius: 8, Intensity: 700, Background: 0}
}

func Test_sphere_value_inside_and_outside(tst *testing.T) {
	sp := testSphere()
	chk.Scalar(tst, "center value", 1e-12, sp.Value(sp.Center), sp.Intensity)
	far := [3]float64{sp.Center[0] + 100, sp.Center[1], sp.Center[2]}
	chk.Scalar(tst, "far value", 1e-12, sp.Value(far), sp.Background)
}

func Test_volume_rasterizes_sphere(tst *testing.T) {
	sp := testSphere()
	v := sp.Volume(40, 40, 40, 1.0)
	var hot int
	for k := 0; k < 40; k++ {
		for j := 0; j < 40; j++ {
			for i := 0; i < 40; i++ {
				if v.Image.At(i, j, k) == sp.Intensity {
					hot++
				}
			}
		}
	}
	if hot == 0 {
		tst.Errorf("expected at least one voxel at sphere intensity")
	}
}

func Test_stack_samples_sphere_at_identity_transform(tst *testing.T) {
	sp := testSphere()
	st := sp.Stack("stack0", 32, 32, 16, 1.0, 2.0, geom.Identity())
	chk.IntAssert(len(st.Slices), 16)
	var anyInside bool
	for _, s := range st.Slices {
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				if s.InsideMask[j][i] {
					anyInside = true
				}
			}
		}
	}
	if !anyInside {
		tst.Errorf("expected at least one in-mask pixel across the synthesized stack")
	}
}
