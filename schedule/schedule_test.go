// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schedule

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/config"
)

func Test_lambda_func_matches_config(tst *testing.T) {
	var cfg config.Config
	cfg.SetDefault()
	cfg.Iterations = 4
	cfg.PostProcess()

	lf := LambdaFunc{Cfg: &cfg}
	for iter := 0; iter < cfg.Iterations; iter++ {
		got := lf.F(float64(iter), nil)
		want := cfg.LambdaAt(iter)
		chk.Scalar(tst, "lambda", 1e-12, got, want)
	}
}

func Test_lambda_func_grad_is_zero(tst *testing.T) {
	var cfg config.Config
	cfg.SetDefault()
	cfg.PostProcess()
	lf := LambdaFunc{Cfg: &cfg}
	g := lf.Grad(0, nil)
	chk.Vector(tst, "grad", 1e-12, g, []float64{0})
}
