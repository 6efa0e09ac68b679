// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/metrics"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

func Test_noop_sink_accepts_everything(tst *testing.T) {
	var s NoopSink
	aff := geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1})
	v := volume.NewVolume(aff, 2, 2, 2)
	if err := s.WriteVolume(0, "recon", v); err != nil {
		tst.Errorf("unexpected error: %v", err)
	}
	if err := s.WriteSliceTransforms(0, []geom.RigidTransform{geom.Identity()}); err != nil {
		tst.Errorf("unexpected error: %v", err)
	}
	if err := s.WriteMetric(metrics.Record{Iteration: 0}); err != nil {
		tst.Errorf("unexpected error: %v", err)
	}
	if err := s.WriteDebugArtifact(0, "dbg", nil); err != nil {
		tst.Errorf("unexpected error: %v", err)
	}
}

func Test_recording_sink_accumulates(tst *testing.T) {
	var s RecordingSink
	aff := geom.IdentityAffine([3]float64{}, [3]float64{1, 1, 1})
	v := volume.NewVolume(aff, 2, 2, 2)
	s.WriteVolume(1, "recon", v)
	s.WriteSliceTransforms(1, []geom.RigidTransform{geom.Identity()})
	s.WriteMetric(metrics.Record{Iteration: 1, NCC: 0.9})
	s.WriteDebugArtifact(1, "dbg", []byte("x"))

	chk.IntAssert(len(s.Volumes), 1)
	chk.IntAssert(s.Volumes[0].Iter, 1)
	chk.IntAssert(len(s.Transforms), 1)
	chk.IntAssert(len(s.Metrics), 1)
	chk.Scalar(tst, "recorded NCC", 1e-12, s.Metrics[0].NCC, 0.9)
	chk.IntAssert(len(s.Debug), 1)
	if string(s.Debug[0].Data) != "x" {
		tst.Errorf("debug artifact not recorded: %+v", s.Debug)
	}
}
