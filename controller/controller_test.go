// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"context"
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/config"
	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/phantom"
	"github.com/baby-MedIA/SVRTK-qMRI/snapshot"
	"github.com/baby-MedIA/SVRTK-qMRI/stack"
)

func sphereScene(tst *testing.T) (*config.Config, *Engine) {
	sp := phantom.Sphere{Center: [3]float64{16, 16, 16}, Radius: 6, Intensity: 700, Background: 0}
	v := sp.Volume(32, 32, 32, 1.0)
	// blank the seed so the reconstruction is not trivially correct
	// before the first outer iteration runs.
	for k := 0; k < v.Image.Nz; k++ {
		for j := 0; j < v.Image.Ny; j++ {
			for i := 0; i < v.Image.Nx; i++ {
				v.Image.Set(i, j, k, 0)
			}
		}
	}

	st1 := sp.Stack("axial", 24, 24, 20, 1.3, 1.3, geom.Identity())
	st2 := sp.Stack("coronal", 24, 24, 20, 1.3, 1.3, geom.Identity())
	stacks := []*stack.Stack{st1, st2}

	var cfg config.Config
	cfg.SetDefault()
	cfg.Iterations = 2
	cfg.SrIterations = 3
	cfg.NoRegistration = true // phantom stacks share the volume frame; no registration needed
	if err := cfg.Validate(len(stacks)); err != nil {
		tst.Fatalf("unexpected validation error: %v", err)
	}
	cfg.PostProcess()

	e := NewEngine(&cfg, v, stacks)
	return &cfg, e
}

func Test_engine_run_correlates_with_phantom(tst *testing.T) {
	cfg, e := sphereScene(tst)
	_ = cfg
	summary, err := e.Run(context.Background())
	if err != nil {
		tst.Fatalf("unexpected error: %v", err)
	}
	chk.IntAssert(len(summary.Records), 1)
	rec := summary.Records[0]
	if rec.NCC < 0.3 {
		tst.Errorf("ncc = %v, want a reconstruction correlated with the phantom", rec.NCC)
	}
}

func Test_engine_writes_to_recording_sink(tst *testing.T) {
	_, e := sphereScene(tst)
	sink := &snapshot.RecordingSink{}
	e.Sink = sink
	_, err := e.Run(context.Background())
	if err != nil {
		tst.Fatalf("unexpected error: %v", err)
	}
	chk.IntAssert(len(sink.Metrics), 1)
	chk.IntAssert(len(sink.Volumes), 1)
}

func Test_engine_rejects_empty_flat_view(tst *testing.T) {
	var cfg config.Config
	cfg.SetDefault()
	cfg.PostProcess()
	sp := phantom.Sphere{Center: [3]float64{8, 8, 8}, Radius: 2, Intensity: 500, Background: 0}
	v := sp.Volume(16, 16, 16, 1.0)
	e := NewEngine(&cfg, v, nil)
	_, err := e.Run(context.Background())
	if err == nil {
		tst.Errorf("expected an error when no stacks are supplied")
	}
}
