// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package srsolve implements one super-resolution gradient step
// (spec.md §4.3): a weighted least-squares data term plus an
// edge-preserving regularizer, applied to the reconstructed volume.
package srsolve

import (
	"context"
	"math"

	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
	"github.com/baby-MedIA/SVRTK-qMRI/workpool"
)

// StepSize is the fixed gradient-descent step α of spec.md §4.3.
const StepSize = 0.028

// neighbor26 lists the 26 integer offsets of a voxel's full
// neighborhood, each paired with 1/‖v-v'‖ (spec.md §4.3 regularizer).
var neighbor26 = buildNeighbor26()

func buildNeighbor26() []struct {
	d      [3]int
	invLen float64
} {
	var out []struct {
		d      [3]int
		invLen float64
	}
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				length := math.Sqrt(float64(dx*dx + dy*dy + dz*dz))
				out = append(out, struct {
					d      [3]int
					invLen float64
				}{[3]int{dx, dy, dz}, 1 / length})
			}
		}
	}
	return out
}

// phi is the Huber-like bounded-slope edge potential of spec.md §4.3.
func phi(t float64) float64 { return t / (1 + t*t) }

// Step performs one SR iteration; with speedup set, the data term
// samples every second pixel along each in-plane axis (stride 2
// instead of 1; spec.md §4.3 "a speedup mode"). slices
// must already carry an up-to-date PSF table, simulated pixels and
// per-pixel/per-slice weights.
func Step(ctx context.Context, v *volume.Volume, slices []*sliceimg.Slice, lambda, delta float64, speedup bool) {
	dataGrad := accumulateDataGradient(ctx, v, slices, speedup)
	regGrad := accumulateRegularizerGradient(ctx, v, delta)
	confidence := accumulateConfidence(ctx, v, slices)

	n := v.Image.Nx * v.Image.Ny * v.Image.Nz
	workpool.Map(ctx, n, 0, func(idx int) {
		i, j, k := v.Image.Coords(idx)
		val := v.Image.At(i, j, k) + StepSize*(dataGrad[idx]+lambda*regGrad[idx])
		v.Image.Set(i, j, k, val)
		v.Confidence.Set(i, j, k, confidence[idx])
	})
	v.ClipNonNegative()
}

// accumulateConfidence implements spec.md §3's confidence invariant:
// Σ per-pixel weights over a slice, times the slice's own weight W,
// contributes to volume confidence at the voxels its PSF addresses.
// Shares accumulateDataGradient's private-buffer-then-summation shape,
// dropping the residual term since confidence only tracks coverage.
func accumulateConfidence(ctx context.Context, v *volume.Volume, slices []*sliceimg.Slice) []float64 {
	n := v.Image.Nx * v.Image.Ny * v.Image.Nz
	total := workpool.Reduce(ctx, len(slices), 0,
		func(k int) map[int]float64 {
			s := slices[k]
			if !s.Active() {
				return nil
			}
			partial := make(map[int]float64)
			for j := 0; j < s.Ny; j++ {
				for i := 0; i < s.Nx; i++ {
					if !s.InsideMask[j][i] {
						continue
					}
					weight := s.SliceWeight * s.Weight[j][i]
					if weight == 0 {
						continue
					}
					for _, e := range s.PSF[j][i] {
						partial[e.VoxelIndex] += e.Weight * weight
					}
				}
			}
			return partial
		},
		nil,
		func(acc map[int]float64, part map[int]float64) map[int]float64 {
			if acc == nil {
				acc = make(map[int]float64, n)
			}
			for idx, val := range part {
				acc[idx] += val
			}
			return acc
		})

	out := make([]float64, n)
	for idx, val := range total {
		out[idx] = val
	}
	return out
}

// accumulateDataGradient implements spec.md §4.3's data term: for
// every (slice k, pixel) with m=1, r = y*exp(-b)/s - ŷ, and the
// per-voxel gradient contribution is w_{kij,v}*W_k*w_{kij}*r. Each
// slice accumulates into a private buffer (the "private per-thread
// gradient buffers" of spec.md §5); buffers are merged by a single
// summation pass in slice order, a fixed reduction order independent
// of goroutine completion order.
func accumulateDataGradient(ctx context.Context, v *volume.Volume, slices []*sliceimg.Slice, speedup bool) []float64 {
	n := v.Image.Nx * v.Image.Ny * v.Image.Nz
	stride := 1
	if speedup {
		stride = 2
	}
	total := workpool.Reduce(ctx, len(slices), 0,
		func(k int) map[int]float64 {
			s := slices[k]
			if !s.Active() {
				return nil
			}
			partial := make(map[int]float64)
			for j := 0; j < s.Ny; j += stride {
				for i := 0; i < s.Nx; i += stride {
					if !s.InsideMask[j][i] {
						continue
					}
					r := s.Pixels[j][i]*math.Exp(-s.Bias[j][i])/s.Scale - s.Simulated[j][i]
					weight := s.SliceWeight * s.Weight[j][i]
					if weight == 0 {
						continue
					}
					for _, e := range s.PSF[j][i] {
						partial[e.VoxelIndex] += e.Weight * weight * r
					}
				}
			}
			return partial
		},
		nil,
		func(acc map[int]float64, part map[int]float64) map[int]float64 {
			if acc == nil {
				acc = make(map[int]float64, n)
			}
			for idx, val := range part {
				acc[idx] += val
			}
			return acc
		})

	out := make([]float64, n)
	for idx, val := range total {
		out[idx] = val
	}
	return out
}

// accumulateRegularizerGradient computes reg_grad[v] = Σ_{v'∈N26(v)}
// (1/‖v-v'‖)·φ((V[v]-V[v'])/δ) for every voxel (spec.md §4.3). Writes
// are disjoint per voxel index, so this parallelizes without private
// buffers or locks.
func accumulateRegularizerGradient(ctx context.Context, v *volume.Volume, delta float64) []float64 {
	n := v.Image.Nx * v.Image.Ny * v.Image.Nz
	out := make([]float64, n)
	if delta == 0 {
		return out
	}
	workpool.Map(ctx, n, 0, func(idx int) {
		i, j, k := v.Image.Coords(idx)
		here := v.Image.At(i, j, k)
		var acc float64
		for _, nb := range neighbor26 {
			ni, nj, nk := i+nb.d[0], j+nb.d[1], k+nb.d[2]
			if !v.Image.InBounds(ni, nj, nk) {
				continue
			}
			t := (here - v.Image.At(ni, nj, nk)) / delta
			acc += nb.invLen * phi(t)
		}
		out[idx] = acc
	})
	return out
}
