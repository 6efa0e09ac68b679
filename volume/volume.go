// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package volume implements the dense 3D grid that carries the
// reconstructed image plus its auxiliary mask and confidence grids
// (spec.md §3 "Volume").
package volume

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
)

// Grid is a dense nz-layer stack of (ny x nx) planes, each plane
// allocated with la.MatAlloc the way gofem allocates its dense
// Jacobian/state matrices.
type Grid struct {
	Nx, Ny, Nz int
	Data       [][][]float64 // Data[k][j][i]
}

// NewGrid allocates a zeroed grid of the given dimensions.
func NewGrid(nx, ny, nz int) *Grid {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		chk.Panic("NewGrid: dimensions must be positive, got (%d,%d,%d)", nx, ny, nz)
	}
	g := &Grid{Nx: nx, Ny: ny, Nz: nz, Data: make([][][]float64, nz)}
	for k := range g.Data {
		g.Data[k] = la.MatAlloc(ny, nx)
	}
	return g
}

// At returns the value at voxel (i,j,k).
func (g *Grid) At(i, j, k int) float64 { return g.Data[k][j][i] }

// Set stores a value at voxel (i,j,k).
func (g *Grid) Set(i, j, k int, v float64) { g.Data[k][j][i] = v }

// InBounds reports whether (i,j,k) addresses a voxel of this grid.
func (g *Grid) InBounds(i, j, k int) bool {
	return i >= 0 && i < g.Nx && j >= 0 && j < g.Ny && k >= 0 && k < g.Nz
}

// Flatten copies the grid into a single contiguous vector in (k,j,i)
// row-major order, suitable for la.VecNorm / la.VecRmsError.
func (g *Grid) Flatten() []float64 {
	out := make([]float64, 0, g.Nx*g.Ny*g.Nz)
	for k := 0; k < g.Nz; k++ {
		for j := 0; j < g.Ny; j++ {
			out = append(out, g.Data[k][j]...)
		}
	}
	return out
}

// Index returns the flat index of voxel (i,j,k) consistent with Flatten.
func (g *Grid) Index(i, j, k int) int {
	return (k*g.Ny+j)*g.Nx + i
}

// Coords returns the (i,j,k) voxel addressed by flat index idx.
func (g *Grid) Coords(idx int) (i, j, k int) {
	i = idx % g.Nx
	idx /= g.Nx
	j = idx % g.Ny
	k = idx / g.Ny
	return
}

// Volume is the reconstructed image: a Grid plus its world-space
// affine, binary ROI mask and per-voxel confidence (Σ weight*W).
type Volume struct {
	Affine     geom.Affine
	Image      *Grid
	Mask       *Grid // 0/1
	Confidence *Grid
}

// NewVolume allocates an all-zero volume on the given affine and
// dimensions (spec.md §3 invariant: "the reconstructed volume has the
// template's affine").
func NewVolume(affine geom.Affine, nx, ny, nz int) *Volume {
	return &Volume{
		Affine:     affine,
		Image:      NewGrid(nx, ny, nz),
		Mask:       NewGrid(nx, ny, nz),
		Confidence: NewGrid(nx, ny, nz),
	}
}

// WorldOf implements geom.WorldOf over this volume's voxel grid.
func (v *Volume) WorldOf(idx int) [3]float64 {
	i, j, k := v.Image.Coords(idx)
	return v.Affine.WorldOf(float64(i), float64(j), float64(k))
}

// ClipNonNegative enforces the SR solver's "intensities clipped at 0"
// post-condition (spec.md §4.3).
func (v *Volume) ClipNonNegative() {
	for k := 0; k < v.Image.Nz; k++ {
		for j := 0; j < v.Image.Ny; j++ {
			row := v.Image.Data[k][j]
			for i := range row {
				if row[i] < 0 {
					row[i] = 0
				}
			}
		}
	}
}
