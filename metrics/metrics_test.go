// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

func mkSlice(n int, perfect bool) *sliceimg.Slice {
	pixels := make([][]float64, n)
	for j := range pixels {
		pixels[j] = make([]float64, n)
		for i := range pixels[j] {
			pixels[j][i] = float64(i + j + 1)
		}
	}
	s := sliceimg.New(pixels, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, 0)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			s.InsideMask[j][i] = true
			s.Weight[j][i] = 1
			if perfect {
				s.Simulated[j][i] = pixels[j][i]
			} else {
				s.Simulated[j][i] = 0
			}
		}
	}
	return s
}

func Test_mean_ncc_perfect_match(tst *testing.T) {
	s := mkSlice(6, true)
	ncc := MeanNCC([]*sliceimg.Slice{s})
	if ncc < 0.99 {
		tst.Errorf("ncc = %v, want close to 1 for an identical simulated slice", ncc)
	}
}

func Test_mean_nrmse_zero_for_perfect_match(tst *testing.T) {
	s := mkSlice(6, true)
	nrmse := MeanNRMSE([]*sliceimg.Slice{s})
	chk.Scalar(tst, "nrmse", 1e-9, nrmse, 0)
}

func Test_mean_nrmse_positive_for_mismatch(tst *testing.T) {
	s := mkSlice(6, false)
	nrmse := MeanNRMSE([]*sliceimg.Slice{s})
	if nrmse <= 0 {
		tst.Errorf("nrmse = %v, want > 0 for a mismatched slice", nrmse)
	}
}

func Test_excluded_ratio(tst *testing.T) {
	a := mkSlice(2, true)
	b := mkSlice(2, true)
	b.ForceExcluded = true
	ratio := ExcludedRatio([]*sliceimg.Slice{a, b})
	chk.Scalar(tst, "excluded ratio", 1e-12, ratio, 0.5)
}

func Test_volume_rmse_zero_for_identical_volumes(tst *testing.T) {
	aff := geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1})
	v1 := volume.NewVolume(aff, 3, 3, 3)
	v2 := volume.NewVolume(aff, 3, 3, 3)
	chk.Scalar(tst, "rmse", 1e-12, VolumeRmse(v1, v2), 0)
}
