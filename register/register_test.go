// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

import (
	"context"
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/stack"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

type fakeRegistrar struct {
	score float64
	shift float64
}

func (f fakeRegistrar) Register(ctx context.Context, v *volume.Volume, s *sliceimg.Slice, initial geom.RigidTransform, sim Similarity) (geom.RigidTransform, float64, error) {
	refined := initial
	refined.T[0] += f.shift
	return refined, f.score, nil
}

func mkStack(n int) *stack.Stack {
	st := &stack.Stack{}
	for k := 0; k < n; k++ {
		st.Slices = append(st.Slices, *sliceimg.New([][]float64{{0}}, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, k))
	}
	return st
}

func Test_similarity_from_name(tst *testing.T) {
	if SimilarityFromName("ncc") != NCC {
		tst.Errorf("expected NCC")
	}
	if SimilarityFromName("bogus") != NMI {
		tst.Errorf("unknown names must default to NMI")
	}
}

func Test_register_slice_success_updates_transform(tst *testing.T) {
	v := volume.NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 4, 4, 4)
	s := sliceimg.New([][]float64{{0}}, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, 0)
	d := &Driver{Registrar: fakeRegistrar{score: 1, shift: 5}, FailureFloor: 0.5}
	ok := d.RegisterSlice(context.Background(), v, s)
	if !ok {
		tst.Fatalf("expected success")
	}
	chk.Scalar(tst, "transform shift", 1e-12, s.Transform.T[0], 5)
}

func Test_register_slice_failure_reverts_transform(tst *testing.T) {
	v := volume.NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 4, 4, 4)
	s := sliceimg.New([][]float64{{0}}, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, 0)
	before := s.Transform
	d := &Driver{Registrar: fakeRegistrar{score: 0.1, shift: 5}, FailureFloor: 0.5}
	ok := d.RegisterSlice(context.Background(), v, s)
	if ok {
		tst.Fatalf("expected failure below the similarity floor")
	}
	if s.Transform != before {
		tst.Errorf("transform must be reverted on failure")
	}
	if !s.StructurallyExcluded {
		tst.Errorf("a failed registration must flag the slice structurally excluded")
	}
}

func Test_package_phase_propagates_delta(tst *testing.T) {
	v := volume.NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 4, 4, 4)
	st := mkStack(4)
	st.Packages = 2
	stacks := []*stack.Stack{st}
	fv := stack.Flatten(stacks)
	d := &Driver{Registrar: fakeRegistrar{score: 1, shift: 3}, FailureFloor: 0.5}
	d.PackagePhase(context.Background(), v, stacks, fv, 0, 0)
	for _, idx := range stack.PackageOf(stacks, fv, 0, 0) {
		chk.Scalar(tst, "package-corrected transform", 1e-12, fv.Slices[idx].Transform.T[0], 3)
	}
}

func Test_force_excluded_slice_is_skipped(tst *testing.T) {
	v := volume.NewVolume(geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 4, 4, 4)
	s := sliceimg.New([][]float64{{0}}, geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1}), 2, geom.Identity(), 0, 0)
	s.ForceExcluded = true
	d := &Driver{Registrar: fakeRegistrar{score: 1, shift: 5}, FailureFloor: 0.5}
	if d.RegisterSlice(context.Background(), v, s) {
		tst.Errorf("force-excluded slice must never be registered")
	}
}
