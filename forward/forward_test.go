// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forward

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

func Test_simulate_weighted_sum(tst *testing.T) {
	v := volume.NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, 1, 1)
	v.Image.Set(0, 0, 0, 10)
	v.Image.Set(1, 0, 0, 20)
	v.Mask.Set(1, 0, 0, 1)

	s := sliceimg.New([][]float64{{0}}, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, 0)
	s.PSF[0][0] = []sliceimg.PSFEntry{
		{VoxelIndex: v.Image.Index(0, 0, 0), Weight: 0.25},
		{VoxelIndex: v.Image.Index(1, 0, 0), Weight: 0.75},
	}

	Simulate(s, v, ScalarVolumeModel{})

	want := 0.25*10 + 0.75*20
	chk.Scalar(tst, "Simulated", 1e-12, s.Simulated[0][0], want)
	chk.Scalar(tst, "Coverage", 1e-12, s.Coverage[0][0], 1)
	if !s.InsideMask[0][0] {
		tst.Errorf("dominant-weight voxel is inside mask, want InsideMask=true")
	}
}

func Test_simulate_empty_psf_marks_outside_fov(tst *testing.T) {
	v := volume.NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, 1, 1)
	s := sliceimg.New([][]float64{{0}}, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, 0)
	Simulate(s, v, ScalarVolumeModel{})
	chk.Scalar(tst, "Coverage", 1e-12, s.Coverage[0][0], 0)
	if s.InsideMask[0][0] {
		tst.Errorf("empty PSF pixel must have InsideMask=false")
	}
}
