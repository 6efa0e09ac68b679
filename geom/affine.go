// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package geom implements the geometric primitives the engine needs:
// world-space affines, rigid transforms, and the small WorldOf
// capability interface (DESIGN NOTES §9) that stands in for a deep
// image/transformation type hierarchy.
package geom

// Affine maps voxel/pixel indices (i,j,k) to world-space coordinates
// through an origin, a set of (possibly non-orthonormal) axis
// directions, and per-axis spacing: world = Origin + Σ Axes[a]*Spacing[a]*index[a].
type Affine struct {
	Origin  [3]float64
	Axes    [3][3]float64 // Axes[a] is the unit direction of axis a in world space
	Spacing [3]float64
}

// IdentityAffine returns the canonical axis-aligned affine with the
// given origin and spacing.
func IdentityAffine(origin, spacing [3]float64) Affine {
	return Affine{
		Origin:  origin,
		Axes:    [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Spacing: spacing,
	}
}

// WorldOf maps a fractional (i,j,k) index to world coordinates.
func (a Affine) WorldOf(i, j, k float64) [3]float64 {
	idx := [3]float64{i, j, k}
	var w [3]float64
	for d := 0; d < 3; d++ {
		w[d] = a.Origin[d]
		for ax := 0; ax < 3; ax++ {
			w[d] += a.Axes[ax][d] * a.Spacing[ax] * idx[ax]
		}
	}
	return w
}

// IndexOf maps a world point back to fractional (i,j,k) index
// coordinates, assuming Axes is orthonormal (true for every affine
// produced internally by this engine).
func (a Affine) IndexOf(w [3]float64) [3]float64 {
	d := [3]float64{w[0] - a.Origin[0], w[1] - a.Origin[1], w[2] - a.Origin[2]}
	var idx [3]float64
	for ax := 0; ax < 3; ax++ {
		dot := d[0]*a.Axes[ax][0] + d[1]*a.Axes[ax][1] + d[2]*a.Axes[ax][2]
		if a.Spacing[ax] != 0 {
			idx[ax] = dot / a.Spacing[ax]
		}
	}
	return idx
}
