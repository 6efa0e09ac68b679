// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package forward implements the forward simulator (spec.md §4.2):
// given the current reconstructed volume and the PSF table, it
// produces a simulated slice, a per-pixel coverage weight and an
// inside-mask indicator for every real slice.
package forward

import (
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// Hook lets a caller swap the scalar forward model used here for a
// richer one — e.g. a 4D diffusion signal expanded in spherical
// harmonics (spec.md Non-goals: "diffusion-specific spherical-harmonic
// fitting details beyond naming the forward-model hook"). Simulate
// always drives the engine through this interface; ScalarVolumeModel
// is the only implementation the core ships.
type Hook interface {
	// SampleVoxel returns the volume's contribution used by a PSF
	// entry; for the scalar model this is simply the voxel value.
	SampleVoxel(v *volume.Volume, voxelIndex int) float64
	// VoxelInsideMask reports whether a voxel counts as "inside" for
	// the dominant-weight inside-mask rule of spec.md §4.2.
	VoxelInsideMask(v *volume.Volume, voxelIndex int) bool
}

// ScalarVolumeModel is the forward model used throughout spec.md §4.2:
// a single real-valued reconstructed volume.
type ScalarVolumeModel struct{}

func (ScalarVolumeModel) SampleVoxel(v *volume.Volume, voxelIndex int) float64 {
	i, j, k := v.Image.Coords(voxelIndex)
	return v.Image.At(i, j, k)
}

func (ScalarVolumeModel) VoxelInsideMask(v *volume.Volume, voxelIndex int) bool {
	i, j, k := v.Image.Coords(voxelIndex)
	return v.Mask.At(i, j, k) != 0
}

// Simulate fills s.Simulated, s.Coverage and s.InsideMask from the
// current volume v and s's PSF table, using model as the forward-model
// hook. Pixels with an empty PSF list are left at zero coverage
// ("marked outside-FOV", spec.md §4.2).
func Simulate(s *sliceimg.Slice, v *volume.Volume, model Hook) {
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			entries := s.PSF[j][i]
			if len(entries) == 0 {
				s.Simulated[j][i] = 0
				s.Coverage[j][i] = 0
				s.InsideMask[j][i] = false
				continue
			}
			var yhat, coverage, bestW float64
			dominantInside := false
			for _, e := range entries {
				val := model.SampleVoxel(v, e.VoxelIndex)
				yhat += e.Weight * val
				coverage += e.Weight
				if e.Weight > bestW {
					bestW = e.Weight
					dominantInside = model.VoxelInsideMask(v, e.VoxelIndex)
				}
			}
			s.Simulated[j][i] = yhat
			s.Coverage[j][i] = coverage
			s.InsideMask[j][i] = dominantInside
		}
	}
}
