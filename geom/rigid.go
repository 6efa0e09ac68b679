// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import "math"

// RigidTransform is a rotation (3x3 orthonormal matrix, row-major) plus
// a translation, mapping slice space to volume (world) space.
type RigidTransform struct {
	R [3][3]float64
	T [3]float64
}

// Identity returns the identity rigid transform.
func Identity() RigidTransform {
	return RigidTransform{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Apply maps a world point p through the transform.
func (rt RigidTransform) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = rt.T[i]
		for j := 0; j < 3; j++ {
			out[i] += rt.R[i][j] * p[j]
		}
	}
	return out
}

// Compose returns rt followed by other: p ↦ other(rt(p)).
func (rt RigidTransform) Compose(other RigidTransform) RigidTransform {
	var out RigidTransform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += other.R[i][k] * rt.R[k][j]
			}
			out.R[i][j] = s
		}
	}
	for i := 0; i < 3; i++ {
		s := other.T[i]
		for k := 0; k < 3; k++ {
			s += other.R[i][k] * rt.T[k]
		}
		out.T[i] = s
	}
	return out
}

// Inverse returns the inverse rigid transform (R^T, -R^T t).
func (rt RigidTransform) Inverse() RigidTransform {
	var out RigidTransform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = rt.R[j][i]
		}
	}
	for i := 0; i < 3; i++ {
		var s float64
		for j := 0; j < 3; j++ {
			s += out.R[i][j] * rt.T[j]
		}
		out.T[i] = -s
	}
	return out
}

// IsNearIdentity reports whether the transform differs from identity
// by less than the given translation (mm) and rotation (radians)
// tolerances.
func (rt RigidTransform) IsNearIdentity(transTol, rotTol float64) bool {
	id := Identity()
	for i := 0; i < 3; i++ {
		if math.Abs(rt.T[i]-id.T[i]) > transTol {
			return false
		}
	}
	trace := rt.R[0][0] + rt.R[1][1] + rt.R[2][2]
	angle := math.Acos(math.Max(-1, math.Min(1, (trace-1)/2)))
	return angle <= rotTol
}
