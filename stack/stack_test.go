// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stack

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
)

func mkStack(n int) *Stack {
	st := &Stack{Thickness: 2}
	for k := 0; k < n; k++ {
		st.Slices = append(st.Slices, *sliceimg.New(
			[][]float64{{0, 0}, {0, 0}},
			geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}),
			2, geom.Identity(), 0, k))
	}
	return st
}

func Test_flatten_preserves_order(tst *testing.T) {
	stacks := []*Stack{mkStack(2), mkStack(3)}
	fv := Flatten(stacks)
	chk.IntAssert(fv.Len(), 5)
	chk.IntAssert(fv.StackOrigin[0], 0)
	chk.IntAssert(fv.StackOrigin[4], 1)
}

func Test_package_of(tst *testing.T) {
	st := mkStack(6)
	st.Packages = 3
	stacks := []*Stack{st}
	fv := Flatten(stacks)
	idxs := PackageOf(stacks, fv, 0, 1)
	chk.IntAssert(len(idxs), 2)
	chk.IntAssert(idxs[0], 2)
	chk.IntAssert(idxs[1], 3)
}
