// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package stack implements the "stacks own slices by value" ownership
// model of DESIGN NOTES §9, replacing the parallel-array coupling of
// stack and slice seen in the original source.
package stack

import (
	"context"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// Stack is one input 3D image of thick slices, before or after the
// dynamic/package split performed by the I/O collaborator.
type Stack struct {
	Name      string
	Slices    []sliceimg.Slice // owned by value
	Thickness float64          // default slice thickness, if not per-slice
	Packages  int              // number of packages (for package/odd-even registration phases)
	Transform geom.RigidTransform // initial per-stack rigid transform
}

// FlatView is the ordered sequence of slices across all stacks plus
// the stack-of-origin index each one came from, letting phases
// parallelize over a single flat index range (DESIGN NOTES §9).
type FlatView struct {
	Slices      []*sliceimg.Slice
	StackOrigin []int
}

// Flatten builds a FlatView over every slice of every stack, in stack
// then slice-in-stack order.
func Flatten(stacks []*Stack) *FlatView {
	fv := &FlatView{}
	for si, st := range stacks {
		for k := range st.Slices {
			fv.Slices = append(fv.Slices, &st.Slices[k])
			fv.StackOrigin = append(fv.StackOrigin, si)
		}
	}
	return fv
}

// Len implements the length half of a parallelizable map over the flat view.
func (fv *FlatView) Len() int { return len(fv.Slices) }

// PackageOf groups the flat indices belonging to one (stack, package)
// pair, used by the registration driver's package phase (spec.md §4.6).
func PackageOf(stacks []*Stack, fv *FlatView, stackIdx, pkg int) []int {
	var idxs []int
	offset := 0
	for si, st := range stacks {
		if si == stackIdx {
			perPkg := len(st.Slices)
			if st.Packages > 0 {
				perPkg = (len(st.Slices) + st.Packages - 1) / st.Packages
			}
			lo, hi := pkg*perPkg, (pkg+1)*perPkg
			for k := lo; k < hi && k < len(st.Slices); k++ {
				idxs = append(idxs, offset+k)
			}
			return idxs
		}
		offset += len(st.Slices)
	}
	return idxs
}

// GlobalRegistrar is the FFD global stack registration collaborator
// boundary (grounded on ReconstructionFFD.cc's FFDStackRegistrations).
// It is invoked once, before the engine starts, and is outside the
// engine core: FFD itself is a non-goal (spec.md §1), only the hook
// that lets a caller wire one in belongs here.
type GlobalRegistrar interface {
	RegisterStacks(ctx context.Context, stacks []*Stack, template *volume.Volume) ([]geom.RigidTransform, error)
}
