// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package psf implements the geometry & PSF kernel builder (spec.md
// §4.1): for every slice pixel, the sparse list of
// reconstructed-volume voxels it influences and their weights, derived
// from an anisotropic Gaussian point-spread function.
package psf

import (
	"math"

	"github.com/cpmech/gosl/gm"

	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// cutoffFraction is the fraction of the peak weight below which a PSF
// entry is pruned (spec.md §3, §4.1).
const cutoffFraction = 0.01

// sigmaInPlaneFactor and fwhmToSigma are the PSF shape
// constants of spec.md §2 item 1.
const sigmaInPlaneFactor = 1.2
const fwhmToSigma = 2.35

// kernelProfile is the thread-local scratch a worker reuses across
// pixels of one slice: the covariance it was last built for, so a
// work-stealing goroutine does not reallocate per pixel. Grounded on
// shp.Get(geoType, goroutineId), which hands each goroutine its own
// copy of shape-function scratch instead of sharing one mutable
// instance.
type kernelProfile struct {
	sigmaX, sigmaY, sigmaZ float64
}

// VoxelIndex bins the voxel centers of a volume so the builder can
// seed its local search near a slice pixel's world projection instead
// of scanning the whole grid.
type VoxelIndex struct {
	bins gm.Bins
	vol  *volume.Volume
}

// BuildVoxelIndex indexes every voxel center of v into spatial bins.
func BuildVoxelIndex(v *volume.Volume) (*VoxelIndex, error) {
	n := v.Image.Nx * v.Image.Ny * v.Image.Nz
	xi := make([]float64, 3)
	xf := make([]float64, 3)
	for d := 0; d < 3; d++ {
		xi[d] = math.Inf(1)
		xf[d] = math.Inf(-1)
	}
	centers := make([][3]float64, n)
	for idx := 0; idx < n; idx++ {
		w := v.WorldOf(idx)
		centers[idx] = w
		for d := 0; d < 3; d++ {
			if w[d] < xi[d] {
				xi[d] = w[d]
			}
			if w[d] > xf[d] {
				xf[d] = w[d]
			}
		}
	}
	ndiv := []int{v.Image.Nx, v.Image.Ny, v.Image.Nz}
	vi := &VoxelIndex{vol: v}
	if err := vi.bins.Init(xi, xf, ndiv); err != nil {
		return nil, err
	}
	for idx, c := range centers {
		if err := vi.bins.Append(c[:], idx); err != nil {
			return nil, err
		}
	}
	return vi, nil
}

// Seed returns the flat voxel index nearest to world point p, used to
// anchor the box search around the PSF peak.
func (vi *VoxelIndex) Seed(p [3]float64) (int, bool) {
	id := vi.bins.Find(p[:])
	if id < 0 {
		return 0, false
	}
	return id, true
}

// BuildForSlice rebuilds the PSF table of every pixel of s against
// volume v, using voxel index vi to seed the local search. It is a
// pure per-slice map: safe to call concurrently for different slices
// sharing the same (read-only) v and vi.
func BuildForSlice(s *sliceimg.Slice, v *volume.Volume, vi *VoxelIndex) {
	prof := kernelProfile{
		sigmaX: sigmaInPlaneFactor * s.Affine.Spacing[0],
		sigmaY: sigmaInPlaneFactor * s.Affine.Spacing[1],
		sigmaZ: s.Thickness / fwhmToSigma,
	}
	s.InvalidatePSF()
	rot := s.Transform.R

	radius := [3]float64{2 * prof.sigmaX, 2 * prof.sigmaY, 2 * prof.sigmaZ}
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			local := s.Affine.WorldOf(float64(i), float64(j), 0)
			pw := s.Transform.Apply(local)

			if _, ok := vi.Seed(pw); !ok {
				continue
			}

			lo, hi := boundingIndexBox(v, pw, radius)
			var entries []sliceimg.PSFEntry
			peak := 0.0
			for k := lo[2]; k <= hi[2]; k++ {
				for y := lo[1]; y <= hi[1]; y++ {
					for x := lo[0]; x <= hi[0]; x++ {
						if !v.Image.InBounds(x, y, k) {
							continue
						}
						vw := v.Affine.WorldOf(float64(x), float64(y), float64(k))
						d := [3]float64{vw[0] - pw[0], vw[1] - pw[1], vw[2] - pw[2]}
						// rotate displacement into the slice's local
						// (x,y,z) frame: local = R^T * d
						lx := rot[0][0]*d[0] + rot[1][0]*d[1] + rot[2][0]*d[2]
						ly := rot[0][1]*d[0] + rot[1][1]*d[1] + rot[2][1]*d[2]
						lz := rot[0][2]*d[0] + rot[1][2]*d[1] + rot[2][2]*d[2]
						w := gaussian3(lx, ly, lz, prof)
						if w > peak {
							peak = w
						}
						idx := v.Image.Index(x, y, k)
						entries = append(entries, sliceimg.PSFEntry{VoxelIndex: idx, Weight: w})
					}
				}
			}
			entries = prune(entries, peak)
			normalize(entries)
			s.PSF[j][i] = entries
		}
	}
}

func gaussian3(x, y, z float64, p kernelProfile) float64 {
	return math.Exp(-0.5 * (x*x/(p.sigmaX*p.sigmaX) + y*y/(p.sigmaY*p.sigmaY) + z*z/(p.sigmaZ*p.sigmaZ)))
}

// boundingIndexBox returns the inclusive voxel-index range of a
// world-space box of half-widths radius centred at p.
func boundingIndexBox(v *volume.Volume, p [3]float64, radius [3]float64) (lo, hi [3]int) {
	corners := [2][3]float64{
		{p[0] - radius[0], p[1] - radius[1], p[2] - radius[2]},
		{p[0] + radius[0], p[1] + radius[1], p[2] + radius[2]},
	}
	minIdx := v.Affine.IndexOf(corners[0])
	maxIdx := v.Affine.IndexOf(corners[1])
	for d := 0; d < 3; d++ {
		a, b := minIdx[d], maxIdx[d]
		if a > b {
			a, b = b, a
		}
		lo[d] = int(math.Floor(a))
		hi[d] = int(math.Ceil(b))
	}
	return
}

// prune drops entries below cutoffFraction of the peak weight
// (spec.md §3, §4.1).
func prune(entries []sliceimg.PSFEntry, peak float64) []sliceimg.PSFEntry {
	if peak <= 0 {
		return nil
	}
	out := entries[:0]
	cutoff := cutoffFraction * peak
	for _, e := range entries {
		if e.Weight >= cutoff {
			out = append(out, e)
		}
	}
	return out
}

// normalize scales entries so Σ weights equals 1 (the integral of the
// PSF over the slice voxel support, up to the caller's own scaling of
// pixel intensity; spec.md §3 "PSF coefficient table").
func normalize(entries []sliceimg.PSFEntry) {
	var sum float64
	for _, e := range entries {
		sum += e.Weight
	}
	if sum <= 0 {
		return
	}
	for i := range entries {
		entries[i].Weight /= sum
	}
}
