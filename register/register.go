// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package register implements the registration driver of spec.md
// §4.6: for each slice, invoke an external rigid-registration
// primitive against the current reconstructed volume, updating the
// slice-to-volume transform. The primitive itself is an external
// collaborator (spec.md §1 "the rigid-body image registration
// primitive itself... treated as a black box").
package register

import (
	"context"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/stack"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
	"github.com/baby-MedIA/SVRTK-qMRI/workpool"
)

// Similarity selects the image-similarity measure used by the
// registration primitive (spec.md §4.6).
type Similarity int

const (
	NMI Similarity = iota
	NCC
)

// similarityByName mirrors fem.solverallocators: a small registry
// resolving a configuration string to a concrete choice, rather than
// a type switch sprinkled through the driver.
var similarityByName = map[string]Similarity{
	"nmi": NMI,
	"ncc": NCC,
}

// SimilarityFromName resolves a configuration string (spec.md §6 "ncc"
// option); unknown names default to NMI.
func SimilarityFromName(name string) Similarity {
	if s, ok := similarityByName[name]; ok {
		return s
	}
	return NMI
}

// Registrar is the "black box" rigid registration primitive: given a
// target volume and a source slice (interpreted as a thin 3D volume
// of thickness τ), return a refined rigid transform and the achieved
// similarity score. A returned error models the primitive throwing
// (DESIGN NOTES §9: "wrap every registration call in a
// result-returning boundary").
type Registrar interface {
	Register(ctx context.Context, target *volume.Volume, source *sliceimg.Slice, initial geom.RigidTransform, sim Similarity) (geom.RigidTransform, float64, error)
}

// FailureFloor is the default similarity score below which a
// registration result is rejected (spec.md §4.6 "on failure (similarity
// below a floor or divergence)").
const FailureFloor = 0.0

// Driver orchestrates the package / odd-even / per-slice registration
// phases of spec.md §4.6 around a Registrar.
type Driver struct {
	Registrar    Registrar
	Similarity   Similarity
	FailureFloor float64
}

// RegisterSlice refines one slice's transform in place. On failure, T
// is reverted and the slice is flagged structurally excluded for this
// iteration (spec.md §4.6, §7 RegistrationFailure); ok reports success.
func (d *Driver) RegisterSlice(ctx context.Context, v *volume.Volume, s *sliceimg.Slice) (ok bool) {
	if s.ForceExcluded {
		return false
	}
	before := s.Transform
	refined, score, err := d.Registrar.Register(ctx, v, s, s.Transform, d.Similarity)
	if err != nil || score < d.FailureFloor {
		s.Transform = before
		s.StructurallyExcluded = true
		return false
	}
	s.Transform = refined
	s.InvalidatePSF()
	return true
}

// PerSlicePhase registers every active slice of the flat view
// concurrently (spec.md §5 "registration: independent per slice").
func (d *Driver) PerSlicePhase(ctx context.Context, v *volume.Volume, fv *stack.FlatView) {
	workpool.Map(ctx, fv.Len(), 0, func(k int) {
		d.RegisterSlice(ctx, v, fv.Slices[k])
	})
}

// PackagePhase registers one (stack, package) group as a single rigid
// unit (spec.md §4.6 "groups slices of one package and registers the
// package rigidly"): the representative (first) slice of the group is
// registered, and the resulting correction is applied uniformly to
// every slice of the group, preserving each slice's relative pose
// within the package.
func (d *Driver) PackagePhase(ctx context.Context, v *volume.Volume, stacks []*stack.Stack, fv *stack.FlatView, stackIdx, pkg int) {
	d.registerGroup(ctx, v, fv, stack.PackageOf(stacks, fv, stackIdx, pkg))
}

// OddEvenPhase splits a package into interleaved halves (spec.md §4.6
// "an odd/even phase splits the package into interleaved halves") and
// runs PackagePhase-style joint correction on each half independently.
func (d *Driver) OddEvenPhase(ctx context.Context, v *volume.Volume, stacks []*stack.Stack, fv *stack.FlatView, stackIdx, pkg int) {
	idxs := stack.PackageOf(stacks, fv, stackIdx, pkg)
	var evens, odds []int
	for n, idx := range idxs {
		if n%2 == 0 {
			evens = append(evens, idx)
		} else {
			odds = append(odds, idx)
		}
	}
	d.registerGroup(ctx, v, fv, evens)
	d.registerGroup(ctx, v, fv, odds)
}

// registerGroup registers the first slice of idxs and propagates the
// resulting correction to the rest of the group, the same joint
// rigid-block update PackagePhase applies to a whole package.
func (d *Driver) registerGroup(ctx context.Context, v *volume.Volume, fv *stack.FlatView, idxs []int) {
	if len(idxs) == 0 {
		return
	}
	rep := fv.Slices[idxs[0]]
	before := rep.Transform
	if !d.RegisterSlice(ctx, v, rep) {
		return
	}
	delta := before.Inverse().Compose(rep.Transform)
	for _, idx := range idxs[1:] {
		s := fv.Slices[idx]
		if s.ForceExcluded {
			continue
		}
		s.Transform = s.Transform.Compose(delta)
		s.InvalidatePSF()
	}
}
