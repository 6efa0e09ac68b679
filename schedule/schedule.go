// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package schedule exposes the per-outer-iteration smoothing schedule
// (spec.md §4.8 step 3) as a gosl fun.Func, the same abstraction
// gofem's elements use for time-dependent loads (e.g. e_p.go's
// gravity function Gfcn), here evaluated at an outer-iteration index
// instead of physical time.
package schedule

import "github.com/baby-MedIA/SVRTK-qMRI/config"

// LambdaFunc adapts config.Config.LambdaAt to the fun.Func interface
// (F(t float64, x []float64) float64): t is read as the outer
// iteration index.
type LambdaFunc struct {
	Cfg *config.Config
}

// F implements fun.Func; x is unused (no spatial dependence).
func (lf LambdaFunc) F(t float64, x []float64) float64 {
	return lf.Cfg.LambdaAt(int(t))
}

// Grad implements the optional derivative half of fun.Func; the
// schedule is piecewise constant, so its derivative is zero everywhere
// it is defined.
func (lf LambdaFunc) Grad(t float64, x []float64) []float64 {
	return []float64{0}
}
