// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package snapshot moves every persistence decision behind a Sink
// collaborator (DESIGN NOTES §9: "move all persistence to collaborators
// behind a SnapshotSink instead of hard-coded I/O paths"), the same
// role fem.Domain.Save/Summary.Save play for FE time-step output, here
// generalized so the engine itself never opens a file.
package snapshot

import (
	"encoding/json"
	"os"
	"path"

	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/utl"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/metrics"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// Sink receives every artifact the engine produces: the reconstructed
// volume, refined slice transforms, per-iteration metrics and ad hoc
// debug images. A Sink that drops everything (NoopSink) makes the
// engine runnable headless, e.g. under test.
type Sink interface {
	WriteVolume(iter int, name string, v *volume.Volume) error
	WriteSliceTransforms(iter int, transforms []geom.RigidTransform) error
	WriteMetric(rec metrics.Record) error
	WriteDebugArtifact(iter int, name string, data []byte) error
}

// NoopSink discards every artifact; the default when no output
// directory is configured.
type NoopSink struct{}

func (NoopSink) WriteVolume(iter int, name string, v *volume.Volume) error       { return nil }
func (NoopSink) WriteSliceTransforms(iter int, transforms []geom.RigidTransform) error { return nil }
func (NoopSink) WriteMetric(rec metrics.Record) error                           { return nil }
func (NoopSink) WriteDebugArtifact(iter int, name string, data []byte) error     { return nil }

// RecordingSink accumulates every artifact in memory, for tests that
// assert on what the engine would have persisted.
type RecordingSink struct {
	Volumes     []VolumeWrite
	Transforms  [][]geom.RigidTransform
	Metrics     []metrics.Record
	Debug       []DebugWrite
}

type VolumeWrite struct {
	Iter int
	Name string
	V    *volume.Volume
}

type DebugWrite struct {
	Iter int
	Name string
	Data []byte
}

func (o *RecordingSink) WriteVolume(iter int, name string, v *volume.Volume) error {
	o.Volumes = append(o.Volumes, VolumeWrite{Iter: iter, Name: name, V: v})
	return nil
}

func (o *RecordingSink) WriteSliceTransforms(iter int, transforms []geom.RigidTransform) error {
	o.Transforms = append(o.Transforms, transforms)
	return nil
}

func (o *RecordingSink) WriteMetric(rec metrics.Record) error {
	o.Metrics = append(o.Metrics, rec)
	return nil
}

func (o *RecordingSink) WriteDebugArtifact(iter int, name string, data []byte) error {
	o.Debug = append(o.Debug, DebugWrite{Iter: iter, Name: name, Data: data})
	return nil
}

// DirSink writes every artifact as JSON under a directory, one file
// per call, mirroring fem's out_*_path naming convention of
// "<key>_p<proc>_<tidx>.<enc>" filenames.
type DirSink struct {
	Dir     string
	Verbose bool
}

func NewDirSink(dir string, verbose bool) *DirSink {
	return &DirSink{Dir: dir, Verbose: verbose}
}

func (o *DirSink) writeJSON(filename string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fn := path.Join(o.Dir, filename)
	if err := os.WriteFile(fn, data, 0644); err != nil {
		return err
	}
	if o.Verbose {
		io.Pfblue2("file <%s> written\n", fn)
	}
	return nil
}

func (o *DirSink) WriteVolume(iter int, name string, v *volume.Volume) error {
	return o.writeJSON(io.Sf("%s_iter%03d.json", name, iter), v)
}

func (o *DirSink) WriteSliceTransforms(iter int, transforms []geom.RigidTransform) error {
	return o.writeJSON(io.Sf("transforms_iter%03d.json", iter), transforms)
}

func (o *DirSink) WriteMetric(rec metrics.Record) error {
	return o.writeJSON(io.Sf("metrics_iter%03d.json", rec.Iteration), rec)
}

func (o *DirSink) WriteDebugArtifact(iter int, name string, data []byte) error {
	// utl.Sf formats the debug artifact's own tag line, distinct from
	// io.Sf's role of building the file path itself.
	tag := utl.Sf("{ \"name\" : %s  \"iter\" : %d }", name, iter)
	fn := path.Join(o.Dir, io.Sf("%s_iter%03d.dbg", name, iter))
	data = append([]byte(tag+"\n"), data...)
	if err := os.WriteFile(fn, data, 0644); err != nil {
		return err
	}
	if o.Verbose {
		io.Pfblue2("file <%s> written\n", fn)
	}
	return nil
}
