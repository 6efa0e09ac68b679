// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package config holds the configuration surface of the reconstruction
// engine, read from a JSON document by a collaborator and validated
// here before the engine starts.
package config

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/utl"
)

// Config holds every recognized option of the engine (spec.md §6).
type Config struct {

	// outer/inner loop control
	Iterations   int `json:"iterations"`   // N_outer
	SrIterations int `json:"sr_iterations"` // inner SR steps per outer iteration

	// bias field
	Sigma float64 `json:"sigma"` // σ_bias, mm

	// output grid
	Resolution float64 `json:"resolution"` // isotropic output spacing, mm

	// SR regularizer
	Lambda   float64 `json:"lambda"`    // edge-preserving regularizer weight
	LastIter float64 `json:"lastIter"`  // λ used on the final outer iteration
	Delta    float64 `json:"delta"`     // edge scale δ
	Multires int     `json:"multires"`  // number of λ cascade levels

	// intensity matching
	Average float64 `json:"average"` // per-stack intensity-matching target

	// masking
	SmoothMask float64 `json:"smooth_mask"` // mask Gaussian σ

	// structural exclusion
	ExclusionNCC float64 `json:"exclusionNCC"` // global NCC gate threshold
	Structural   bool    `json:"structural"`   // enable NCC + SSIM gates

	// registration
	NCC           bool `json:"ncc"`            // use NCC instead of NMI
	NoRegistration bool `json:"no_registration"` // freeze T (1 outer iteration)
	NoGlobal      bool `json:"no_global"`      // skip FFD global stack registration
	SVROnly       bool `json:"svr_only"`       // skip first Gaussian-seed-only pass

	// robust statistics
	NoRobustStatistics bool `json:"no_robust_statistics"` // skip EM
	ExcludeSlicesOnly  bool `json:"exclude_slices_only"`  // robust weights act on whole slices only
	NoIntensityMatching bool `json:"no_intensity_matching"` // skip bias+scale

	// background reconstruction
	WithBackground bool `json:"with_background"` // reconstruct outside mask
	BgDilation     int  `json:"bg_dilation"`     // dilation radius (voxels) for the background ROI

	// exclusion
	ForceExclude []int `json:"force_exclude"` // permanently excluded slice indices

	// collaborator paths (consumed by I/O collaborators; not touched here)
	TransformationsDir string `json:"transformations"` // directory of initial slice transforms

	// derived (set by PostProcess)
	lambdaLevels []float64 // λ value to use at each outer iteration, cascade-expanded
}

// SetDefault assigns every default named in spec.md §6.
func (o *Config) SetDefault() {
	o.Iterations = 3
	o.SrIterations = 7
	o.Sigma = 20.0
	o.Resolution = 0.75
	o.Lambda = 0.02
	o.LastIter = 0.02
	o.Delta = 150
	o.Multires = 3
	o.Average = 700
	o.SmoothMask = 4
	o.ExclusionNCC = 0.5
}

// ValidationError is returned by Validate; it is the only error kind
// that aborts the run before the engine starts (InputValidation, spec.md §7).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks the option set for internal consistency. nStacks is
// the number of input stacks as reported by the I/O collaborator.
func (o *Config) Validate(nStacks int) error {
	if o.Iterations <= 0 {
		return &ValidationError{Reason: "iterations must be positive"}
	}
	if o.SrIterations <= 0 {
		return &ValidationError{Reason: "sr_iterations must be positive"}
	}
	if o.Resolution <= 0 {
		return &ValidationError{Reason: "resolution must be positive"}
	}
	if o.Average <= 0 {
		return &ValidationError{Reason: "average intensity target must be positive"}
	}
	if nStacks <= 0 {
		return &ValidationError{Reason: "at least one input stack is required"}
	}
	if o.Multires <= 0 {
		o.Multires = 1
	}
	return nil
}

// PostProcess derives fields that depend on other fields, mirroring
// inp.LinSolData.PostProcess deriving the solver name from MPI size.
func (o *Config) PostProcess() {
	if o.NoRegistration {
		o.Iterations = 1
	}
	o.lambdaLevels = make([]float64, o.Iterations)
	for iter := 0; iter < o.Iterations; iter++ {
		o.lambdaLevels[iter] = o.lambdaForIter(iter)
	}
}

// lambdaForIter implements the multi-resolution λ cascade of spec.md
// §4.8 step 3: at the final outer iteration use (δ, lastIter); otherwise
// double λ every ⌈N_outer/levels⌉ iterations.
//
// The source's schedule predicate is iter == iterations*(levels-i-1)/levels
// using integer division, which for small iterations/levels can skip a
// level entirely. Whether that truncation is intentional is an open
// question (spec.md §9); this preserves the formula rather than "fixing" it.
func (o *Config) lambdaForIter(iter int) float64 {
	if iter == o.Iterations-1 {
		return o.LastIter
	}
	lam := o.Lambda
	for i := 0; i < o.Multires; i++ {
		if iter == o.Iterations*(o.Multires-i-1)/o.Multires {
			break
		}
		lam *= 2
	}
	return lam
}

// LambdaAt returns the regularizer weight to use at outer iteration iter.
func (o *Config) LambdaAt(iter int) float64 {
	if iter < 0 || iter >= len(o.lambdaLevels) {
		chk.Panic("LambdaAt: iteration %d out of range [0,%d)", iter, len(o.lambdaLevels))
	}
	return o.lambdaLevels[iter]
}

// IsForceExcluded reports whether slice index idx is in ForceExclude,
// the same index-or-(-1) lookup inp uses to test face/vertex tag
// membership (utl.IntIndexSmall).
func (o *Config) IsForceExcluded(idx int) bool {
	return utl.IntIndexSmall(o.ForceExclude, idx) >= 0
}

// SrStepsFor returns the number of inner SR iterations to run at outer
// iteration iter: 3x the configured count on the final outer iteration
// (spec.md §4.8 step 6; §6 sr_iterations).
func (o *Config) SrStepsFor(iter int) int {
	if iter == o.Iterations-1 {
		return o.SrIterations * 3
	}
	return o.SrIterations
}
