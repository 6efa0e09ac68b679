// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// svr-reconstruct is the command-line entry point: read a JSON
// configuration, load the input stacks an I/O collaborator already
// parsed into memory, run the reconstruction engine, and report the
// final metrics.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"

	"github.com/baby-MedIA/SVRTK-qMRI/config"
	"github.com/baby-MedIA/SVRTK-qMRI/controller"
	"github.com/baby-MedIA/SVRTK-qMRI/snapshot"
	"github.com/baby-MedIA/SVRTK-qMRI/stack"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			chk.Verbose = true
			io.PfRed("ERROR: %v\n", err)
			os.Exit(1)
		}
	}()

	cfgPath, _ := io.ArgToFilename(0, "", ".json", true)
	outDir := io.ArgToString(1, "")
	verbose := io.ArgToBool(2, true)

	io.Pf("\n%v\n", io.ArgsTable(
		"configuration file", "cfgPath", cfgPath,
		"output directory", "outDir", outDir,
		"show messages", "verbose", verbose,
	))

	cfg := readConfig(cfgPath)

	stacks, tmpl := loadStacks(cfg)
	if err := cfg.Validate(len(stacks)); err != nil {
		chk.Panic("invalid configuration: %v", err)
	}
	cfg.PostProcess()

	ctx := context.Background()

	if !cfg.NoGlobal {
		applyGlobalRegistration(ctx, stacks, tmpl)
	}

	e := controller.NewEngine(cfg, tmpl, stacks)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			chk.Panic("cannot create output directory: %v", err)
		}
		e.Sink = snapshot.NewDirSink(outDir, verbose)
	}

	summary, err := e.Run(ctx)
	if err != nil {
		chk.Panic("reconstruction failed:\n%v", err)
	}

	if rec, ok := summary.Last(); ok {
		io.Pf("\nfinal: ncc=%.4f nrmse=%.4f mean_weight=%.4f excluded=%.4f\n",
			rec.NCC, rec.NRMSE, rec.MeanWeight, rec.ExcludedRatio)
	}
}

func readConfig(path string) *config.Config {
	data, err := os.ReadFile(path)
	if err != nil {
		chk.Panic("cannot read configuration file %q:\n%v", path, err)
	}
	cfg := &config.Config{}
	cfg.SetDefault()
	if err := json.Unmarshal(data, cfg); err != nil {
		chk.Panic("cannot parse configuration file %q:\n%v", path, err)
	}
	return cfg
}

// loadStacks is the I/O collaborator boundary: reading DICOM/NIfTI
// stacks and building the reconstruction template volume is out of
// scope here (spec.md §1 "Non-goals"); this stub lets the binary run
// against whatever loader a deployment wires in.
func loadStacks(cfg *config.Config) ([]*stack.Stack, *volume.Volume) {
	chk.Panic("no stack loader wired in: provide one in place of loadStacks")
	return nil, nil
}

// globalRegistrar is the FFD global stack registration collaborator
// boundary (stack.GlobalRegistrar): FFD itself is a non-goal (spec.md
// §1), so this stays nil until a deployment wires one in, the same way
// loadStacks stays a stub above.
var globalRegistrar stack.GlobalRegistrar

// applyGlobalRegistration runs the global stack registration hook once
// before the engine starts, gated by cfg.NoGlobal, and applies the
// refined per-stack transform each returned entry carries.
func applyGlobalRegistration(ctx context.Context, stacks []*stack.Stack, tmpl *volume.Volume) {
	if globalRegistrar == nil {
		return
	}
	transforms, err := globalRegistrar.RegisterStacks(ctx, stacks, tmpl)
	if err != nil {
		chk.Panic("global stack registration failed:\n%v", err)
	}
	for i, t := range transforms {
		if i < len(stacks) {
			stacks[i].Transform = t
		}
	}
}
