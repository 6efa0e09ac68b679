// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package phantom generates synthetic ground truth for controller
// tests, playing the role ana.PressCylin plays for gofem's element
// tests: a closed-form object whose expected reconstruction is known,
// so an end-to-end test can assert convergence rather than merely "it
// ran".
package phantom

import (
	"math"

	"github.com/baby-MedIA/SVRTK-qMRI/geom"
	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/stack"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// Sphere is the analytic solution: a uniform-intensity ball of radius
// Radius centered at Center, embedded in a uniform Background intensity.
type Sphere struct {
	Center      [3]float64
	Radius      float64
	Intensity   float64
	Background  float64
}

// Value is the analytic intensity at world point p.
func (o Sphere) Value(p [3]float64) float64 {
	d := dist(p, o.Center)
	if d <= o.Radius {
		return o.Intensity
	}
	return o.Background
}

func dist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Volume rasterizes the sphere onto a volume grid of the given
// dimensions and spacing, its own affine acting as the registration
// template (spec.md §4.1 "template volume").
func (o Sphere) Volume(nx, ny, nz int, spacing float64) *volume.Volume {
	origin := [3]float64{
		o.Center[0] - float64(nx)*spacing/2,
		o.Center[1] - float64(ny)*spacing/2,
		o.Center[2] - float64(nz)*spacing/2,
	}
	aff := geom.IdentityAffine(origin, [3]float64{spacing, spacing, spacing})
	v := volume.NewVolume(aff, nx, ny, nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := aff.WorldOf(float64(i), float64(j), float64(k))
				val := o.Value(p)
				v.Image.Set(i, j, k, val)
				if val > o.Background {
					v.Mask.Set(i, j, k, 1)
				}
			}
		}
	}
	return v
}

// Stack synthesizes one input stack of nSlices thick axial slices of
// pixel size (nx,ny) sampling the sphere, as if acquired at spacing
// thickness along z with in-plane spacing pixelSize, offset from the
// volume's own frame by transform (spec.md §3 "Stack").
func (o Sphere) Stack(name string, nx, ny, nSlices int, pixelSize, thickness float64, transform geom.RigidTransform) *stack.Stack {
	st := &stack.Stack{Name: name, Thickness: thickness, Packages: 1, Transform: transform}
	zOrigin := o.Center[2] - float64(nSlices)*thickness/2
	xOrigin := o.Center[0] - float64(nx)*pixelSize/2
	yOrigin := o.Center[1] - float64(ny)*pixelSize/2
	for k := 0; k < nSlices; k++ {
		sliceOrigin := [3]float64{xOrigin, yOrigin, zOrigin + float64(k)*thickness}
		aff := geom.IdentityAffine(sliceOrigin, [3]float64{pixelSize, pixelSize, 1})
		pixels := make([][]float64, ny)
		for j := range pixels {
			pixels[j] = make([]float64, nx)
			for i := range pixels[j] {
				local := aff.WorldOf(float64(i), float64(j), 0)
				pixels[j][i] = o.Value(transform.Apply(local))
			}
		}
		s := sliceimg.New(pixels, aff, thickness, transform, 0, k)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if pixels[j][i] > o.Background {
					s.InsideMask[j][i] = true
				}
			}
		}
		st.Slices = append(st.Slices, *s)
	}
	return st
}
