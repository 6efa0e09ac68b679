// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package controller implements the outer/inner iteration controller
// of spec.md §4.8, wiring every other package together the way
// fem.Domain.Run drives one FE simulation: allocate state, loop the
// solver, save output, in a single entry point the command line talks
// to.
package controller

import (
	"context"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"

	"github.com/baby-MedIA/SVRTK-qMRI/biasscale"
	"github.com/baby-MedIA/SVRTK-qMRI/config"
	"github.com/baby-MedIA/SVRTK-qMRI/exclude"
	"github.com/baby-MedIA/SVRTK-qMRI/forward"
	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/metrics"
	"github.com/baby-MedIA/SVRTK-qMRI/psf"
	"github.com/baby-MedIA/SVRTK-qMRI/register"
	"github.com/baby-MedIA/SVRTK-qMRI/robust"
	"github.com/baby-MedIA/SVRTK-qMRI/schedule"
	"github.com/baby-MedIA/SVRTK-qMRI/snapshot"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/srsolve"
	"github.com/baby-MedIA/SVRTK-qMRI/stack"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
	"github.com/baby-MedIA/SVRTK-qMRI/workpool"
)

// Engine owns the reconstruction state across the outer loop and the
// collaborators it is not allowed to hard-code: the registration
// primitive, the bias blur, and the output sink.
type Engine struct {
	Cfg       *config.Config
	Volume    *volume.Volume
	Stacks    []*stack.Stack
	FlatView  *stack.FlatView
	Registrar register.Registrar
	Blur      biasscale.Blurrer
	Sink      snapshot.Sink
	Model     forward.Hook

	state *robust.State
	sum   metrics.Summary
}

// NewEngine wires default collaborators (ScalarVolumeModel,
// SeparableGaussianBlurrer, NoopSink) and leaves Registrar nil — a
// caller must supply one unless Cfg.NoRegistration is set.
func NewEngine(cfg *config.Config, v *volume.Volume, stacks []*stack.Stack) *Engine {
	return &Engine{
		Cfg:    cfg,
		Volume: v,
		Stacks: stacks,
		Blur:   biasscale.SeparableGaussianBlurrer{},
		Sink:   snapshot.NoopSink{},
		Model:  forward.ScalarVolumeModel{},
	}
}

// Run executes the full outer/inner loop of spec.md §4.8 and returns
// the final metrics summary.
func (e *Engine) Run(ctx context.Context) (metrics.Summary, error) {
	if e.Volume.Mask.Nx == 0 {
		chk.Panic("Run: empty volume")
	}
	e.FlatView = stack.Flatten(e.Stacks)
	if e.FlatView.Len() == 0 {
		return e.sum, &config.ValidationError{Reason: "no slices to reconstruct from"}
	}
	e.ForceExcludeFlags()

	vi, err := psf.BuildVoxelIndex(e.Volume)
	if err != nil {
		return e.sum, err
	}

	driver := &register.Driver{Registrar: e.Registrar, Similarity: e.Similarity(), FailureFloor: register.FailureFloor}

	for iter := 0; iter < e.Cfg.Iterations; iter++ {
		io.Pf("--- outer iteration %d/%d ---\n", iter+1, e.Cfg.Iterations)
		e.resetIteration()

		// step 1: registration driver, skipped on the first iteration
		// unless svr_only forces it on every iteration.
		if e.Registrar != nil && (iter > 0 || e.Cfg.SVROnly) && !e.Cfg.NoRegistration {
			driver.PerSlicePhase(ctx, e.Volume, e.FlatView)
		}

		// step 2: global structural NCC gate.
		if e.Cfg.Structural {
			for _, s := range e.FlatView.Slices {
				if s.Active() {
					exclude.GlobalGate(s, e.Cfg.ExclusionNCC)
				}
			}
		}

		// step 3: smoothing schedule for this iteration, evaluated
		// through the gosl fun.Func adapter rather than calling
		// e.Cfg.LambdaAt directly.
		lambdaFn := schedule.LambdaFunc{Cfg: e.Cfg}
		lambda := lambdaFn.F(float64(iter), nil)

		// step 4: reset EM, rebuild PSF, seed volume.
		e.state = robust.NewState(0, e.Cfg.Average, 0)
		e.rebuildPSF(ctx, vi)
		e.seedVolume()

		// step 5: simulate, init robust statistics, E-step, SSIM.
		e.simulateAll(ctx)
		if !e.Cfg.NoRobustStatistics {
			robust.EStepPixels(ctx, e.FlatView.Slices, e.state)
			if !e.Cfg.ExcludeSlicesOnly {
				robust.EStepSlices(ctx, e.FlatView.Slices, e.state)
			}
		}
		if e.Cfg.Structural {
			for _, s := range e.FlatView.Slices {
				if s.Active() {
					exclude.LocalSSIMGate(s, exclude.DefaultSSIMWindow, exclude.DefaultSSIMThreshold)
				}
			}
		}

		// step 6: inner SR loop.
		steps := e.Cfg.SrStepsFor(iter)
		for m := 0; m < steps; m++ {
			if !e.Cfg.NoIntensityMatching {
				e.estimateBiasScale(ctx)
			}
			srsolve.Step(ctx, e.Volume, e.FlatView.Slices, lambda, e.Cfg.Delta, false)
			biasscale.NormalizeGlobalBias(ctx, e.FlatView.Slices)
			e.simulateAll(ctx)
			if !e.Cfg.NoRobustStatistics {
				robust.MStep(e.FlatView.Slices, e.state)
				robust.EStepPixels(ctx, e.FlatView.Slices, e.state)
			}
			if e.Cfg.Structural {
				for _, s := range e.FlatView.Slices {
					if s.Active() {
						exclude.LocalSSIMGate(s, exclude.DefaultSSIMWindow, exclude.DefaultSSIMThreshold)
					}
				}
			}
		}

		// step 7: mask to ROI, record metrics.
		if !e.Cfg.WithBackground {
			e.maskToROI()
		}
		rec := e.sum.Append(iter, e.FlatView.Slices)
		e.Sink.WriteMetric(rec)
		e.Sink.WriteVolume(iter, "reconstruction", e.Volume)
		e.Sink.WriteSliceTransforms(iter, e.currentTransforms())
		io.Pf("ncc=%.4f nrmse=%.4f mean_weight=%.4f excluded=%.4f\n", rec.NCC, rec.NRMSE, rec.MeanWeight, rec.ExcludedRatio)
	}
	return e.sum, nil
}

// Similarity resolves the configured registration similarity measure.
func (e *Engine) Similarity() register.Similarity {
	if e.Cfg.NCC {
		return register.NCC
	}
	return register.NMI
}

// ForceExcludeFlags applies config.ForceExclude to every slice once,
// ahead of the outer loop (force_excluded is terminal for the run,
// spec.md "State machines").
func (e *Engine) ForceExcludeFlags() []*sliceimg.Slice {
	for k, s := range e.FlatView.Slices {
		if e.Cfg.IsForceExcluded(k) {
			s.ForceExcluded = true
		}
	}
	return e.FlatView.Slices
}

// resetIteration clears the per-outer-iteration structural-exclusion
// flag (spec.md "State machines": "resets to active at the start of
// the next outer iteration").
func (e *Engine) resetIteration() {
	for _, s := range e.FlatView.Slices {
		s.ResetIterationFlags()
	}
}

// rebuildPSF rebuilds every active slice's PSF table in parallel
// (spec.md §5 "PSF-table rebuild").
func (e *Engine) rebuildPSF(ctx context.Context, vi *psf.VoxelIndex) {
	workpool.Map(ctx, e.FlatView.Len(), 0, func(k int) {
		s := e.FlatView.Slices[k]
		if !s.Active() {
			return
		}
		psf.BuildForSlice(s, e.Volume, vi)
	})
}

// seedVolume computes the Gaussian seed V0[v] = sum(weighted slice
// contributions)/sum(weights) (spec.md §4.8 step 4), a single-threaded
// reduction over every active slice's PSF table.
func (e *Engine) seedVolume() {
	n := e.Volume.Image.Nx * e.Volume.Image.Ny * e.Volume.Image.Nz
	num := make([]float64, n)
	den := make([]float64, n)
	for _, s := range e.FlatView.Slices {
		if !s.Active() {
			continue
		}
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				y := s.Pixels[j][i]
				for _, en := range s.PSF[j][i] {
					num[en.VoxelIndex] += en.Weight * y
					den[en.VoxelIndex] += en.Weight
				}
			}
		}
	}
	for idx := 0; idx < n; idx++ {
		if den[idx] <= 0 {
			continue
		}
		i, j, k := e.Volume.Image.Coords(idx)
		e.Volume.Image.Set(i, j, k, num[idx]/den[idx])
	}
}

// simulateAll runs the forward model over every active slice
// (spec.md §5 "forward simulation").
func (e *Engine) simulateAll(ctx context.Context) {
	workpool.Map(ctx, e.FlatView.Len(), 0, func(k int) {
		s := e.FlatView.Slices[k]
		if !s.Active() {
			return
		}
		forward.Simulate(s, e.Volume, e.Model)
	})
}

// estimateBiasScale runs the bias+scale estimator over every active
// slice (spec.md §5 "bias+scale estimation").
func (e *Engine) estimateBiasScale(ctx context.Context) {
	workpool.Map(ctx, e.FlatView.Len(), 0, func(k int) {
		s := e.FlatView.Slices[k]
		if !s.Active() {
			return
		}
		biasscale.EstimateBias(s, e.Blur, e.Cfg.Sigma, 0)
		s.Scale = biasscale.EstimateScale(s, 0)
	})
}

// maskToROI zeroes every reconstructed voxel outside the mask
// (spec.md §4.8 step 7 "Optionally mask volume to ROI").
func (e *Engine) maskToROI() {
	for k := 0; k < e.Volume.Image.Nz; k++ {
		for j := 0; j < e.Volume.Image.Ny; j++ {
			for i := 0; i < e.Volume.Image.Nx; i++ {
				if e.Volume.Mask.At(i, j, k) == 0 {
					e.Volume.Image.Set(i, j, k, 0)
				}
			}
		}
	}
}

func (e *Engine) currentTransforms() []geom.RigidTransform {
	out := make([]geom.RigidTransform, e.FlatView.Len())
	for k, s := range e.FlatView.Slices {
		out[k] = s.Transform
	}
	return out
}
