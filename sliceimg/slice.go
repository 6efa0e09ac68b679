// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package sliceimg implements the Slice entity of spec.md §3: one
// thick 2D plane of an input stack, independently posed, carrying the
// per-pixel and per-slice state the engine mutates every outer
// iteration.
package sliceimg

import (
	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// PSFEntry is one (volume-voxel flat index, weight) pair of a pixel's
// PSF coefficient list (spec.md §3 "PSF coefficient table").
type PSFEntry struct {
	VoxelIndex int
	Weight     float64
}

// Slice is one 2D plane of an input stack after any dynamic/package
// split, treated as an independently-posed 3D object with thickness τ.
type Slice struct {
	Pixels [][]float64 // Pixels[j][i], real-valued
	Nx, Ny int

	Affine    geom.Affine       // slice index -> slice-local world coordinates
	Thickness float64           // τ, independent of z-spacing
	Transform geom.RigidTransform // T: slice -> volume space

	// per-pixel state, all [Ny][Nx]
	Weight     [][]float64 // w, inlier posterior in [0,1]
	Simulated  [][]float64 // ŷ
	Coverage   [][]float64 // c = Σ weight_r
	InsideMask [][]bool    // m

	// PSF table, one list per pixel, indexed [j][i]
	PSF [][][]PSFEntry

	// per-slice state
	SliceWeight float64 // W, inlier posterior for the whole slice
	Scale       float64 // s > 0
	Bias        [][]float64 // b, log-domain, zero-mean inside mask

	StackIndex int // stack-of-origin index
	SliceInStackIndex int

	ForceExcluded         bool
	StructurallyExcluded  bool // reset at the start of each outer iteration
}

// New allocates a slice of the given pixel dimensions with T initially
// identity composed with the stack transform (spec.md §3), scale 1 and
// zero bias.
func New(pixels [][]float64, affine geom.Affine, thickness float64, stackTransform geom.RigidTransform, stackIdx, sliceIdx int) *Slice {
	ny := len(pixels)
	nx := 0
	if ny > 0 {
		nx = len(pixels[0])
	}
	s := &Slice{
		Pixels:            pixels,
		Nx:                nx,
		Ny:                ny,
		Affine:            affine,
		Thickness:         thickness,
		Transform:         geom.Identity().Compose(stackTransform),
		Scale:             1,
		StackIndex:        stackIdx,
		SliceInStackIndex: sliceIdx,
		SliceWeight:       1,
	}
	s.Weight = allocLike(ny, nx, 1)
	s.Simulated = allocLike(ny, nx, 0)
	s.Coverage = allocLike(ny, nx, 0)
	s.Bias = allocLike(ny, nx, 0)
	s.InsideMask = make([][]bool, ny)
	for j := range s.InsideMask {
		s.InsideMask[j] = make([]bool, nx)
	}
	s.PSF = make([][][]PSFEntry, ny)
	for j := range s.PSF {
		s.PSF[j] = make([][]PSFEntry, nx)
	}
	return s
}

func allocLike(ny, nx int, fill float64) [][]float64 {
	out := make([][]float64, ny)
	for j := range out {
		out[j] = make([]float64, nx)
		if fill != 0 {
			for i := range out[j] {
				out[j][i] = fill
			}
		}
	}
	return out
}

// Active reports whether the slice contributes to the SR update and
// to statistics this outer iteration (spec.md §3 invariants).
func (s *Slice) Active() bool {
	return !s.ForceExcluded && !s.StructurallyExcluded
}

// ResetIterationFlags resets the per-outer-iteration state machine
// (spec.md "State machines": structurally_excluded_this_iter resets to
// active at the start of the next outer iteration).
func (s *Slice) ResetIterationFlags() {
	s.StructurallyExcluded = false
}

// WorldOf implements geom.WorldOf: the world-space position of pixel
// flat index idx under the slice's current transform.
func (s *Slice) WorldOf(idx int) [3]float64 {
	i := idx % s.Nx
	j := idx / s.Nx
	local := s.Affine.WorldOf(float64(i), float64(j), 0)
	return s.Transform.Apply(local)
}

// InvalidatePSF clears the PSF table; called whenever Transform or the
// reconstructed grid changes (spec.md §3 invariant).
func (s *Slice) InvalidatePSF() {
	for j := range s.PSF {
		for i := range s.PSF[j] {
			s.PSF[j][i] = nil
		}
	}
}

// MeanInsideMask returns the mean of a per-pixel grid over
// in-mask pixels, used by the bias-field zero-mean constraint and by
// the intensity-matching invariant.
func (s *Slice) MeanInsideMask(grid [][]float64) float64 {
	var sum, n float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if s.InsideMask[j][i] {
				sum += grid[j][i]
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// EnsureVolumeCompatible reports whether any pixel of s has a non-empty
// PSF list. A slice for which it returns false has no overlap with the
// reconstructed volume (spec.md "Failure semantics"); the function only
// reports this and does not drop the slice, and the controller does not
// call it.
func (s *Slice) EnsureVolumeCompatible(v *volume.Volume) bool {
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if len(s.PSF[j][i]) > 0 {
				return true
			}
		}
	}
	return false
}
