// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
)

func Test_affine_roundtrip(tst *testing.T) {
	a := IdentityAffine([3]float64{1, 2, 3}, [3]float64{0.5, 0.5, 2})
	w := a.WorldOf(2, 3, 1)
	chk.Vector(tst, "world", 1e-12, w[:], []float64{1 + 1.0, 2 + 1.5, 3 + 2})
	idx := a.IndexOf(w)
	chk.Vector(tst, "index", 1e-9, idx[:], []float64{2, 3, 1})
}

func Test_rigid_identity_compose(tst *testing.T) {
	id := Identity()
	p := [3]float64{1, 2, 3}
	q := id.Compose(id).Apply(p)
	chk.Vector(tst, "p", 1e-12, q[:], p[:])
}

func Test_rigid_inverse(tst *testing.T) {
	rt := RigidTransform{
		R: [3][3]float64{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
		T: [3]float64{1, 2, 3},
	}
	p := [3]float64{5, -1, 4}
	q := rt.Apply(p)
	back := rt.Inverse().Apply(q)
	chk.Vector(tst, "back", 1e-9, back[:], p[:])
}

func Test_near_identity(tst *testing.T) {
	id := Identity()
	if !id.IsNearIdentity(1e-9, 1e-9) {
		tst.Errorf("identity must be near identity")
	}
	perturbed := RigidTransform{R: id.R, T: [3]float64{0.002, 0, 0}}
	if perturbed.IsNearIdentity(0.001, 1e-9) {
		tst.Errorf("0.002mm shift should not be within 0.001mm tolerance")
	}
	angle := 0.01
	rotated := RigidTransform{R: [3][3]float64{
		{math.Cos(angle), -math.Sin(angle), 0},
		{math.Sin(angle), math.Cos(angle), 0},
		{0, 0, 1},
	}}
	if !rotated.IsNearIdentity(1e-9, 0.02) {
		tst.Errorf("small rotation should be within tolerance")
	}
}
