// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package metrics tracks the per-iteration quality numbers of spec.md
// §6 ("per-iteration metrics file... NCC, NRMSE... mean volume weight,
// excluded-slice ratio"), grounded on fem.Summary's role of
// accumulating per-time-step output records.
package metrics

import (
	"math"

	"github.com/cpmech/gosl/la"

	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/volume"
)

// Record is one outer iteration's snapshot of reconstruction quality.
type Record struct {
	Iteration      int
	NCC            float64
	NRMSE          float64
	MeanWeight     float64
	ExcludedRatio  float64
}

// Summary accumulates one Record per outer iteration, mirroring
// fem.Summary's OutTimes/Resids accumulation across time steps.
type Summary struct {
	Records []Record
}

// Append computes and stores the metrics for one completed outer
// iteration over the given slices.
func (o *Summary) Append(iter int, slices []*sliceimg.Slice) Record {
	rec := Record{
		Iteration:     iter,
		NCC:           MeanNCC(slices),
		NRMSE:         MeanNRMSE(slices),
		MeanWeight:    MeanWeight(slices),
		ExcludedRatio: ExcludedRatio(slices),
	}
	o.Records = append(o.Records, rec)
	return rec
}

// Last returns the most recently appended record and whether one exists.
func (o *Summary) Last() (Record, bool) {
	if len(o.Records) == 0 {
		return Record{}, false
	}
	return o.Records[len(o.Records)-1], true
}

// flattenMasked collects the in-mask pixels of a slice's real and
// simulated images as parallel flat vectors, suitable for la.VecNorm /
// la.VecRmsError.
func flattenMasked(s *sliceimg.Slice) (y, yhat []float64) {
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if !s.InsideMask[j][i] {
				continue
			}
			y = append(y, s.Pixels[j][i])
			yhat = append(yhat, s.Simulated[j][i])
		}
	}
	return
}

// sliceNCC is the normalized cross-correlation between a slice's real
// and simulated in-mask pixels.
func sliceNCC(y, yhat []float64) float64 {
	n := float64(len(y))
	if n == 0 {
		return 0
	}
	var sumY, sumYhat float64
	for i := range y {
		sumY += y[i]
		sumYhat += yhat[i]
	}
	meanY, meanYhat := sumY/n, sumYhat/n
	var cov, varY, varYhat float64
	for i := range y {
		dy := y[i] - meanY
		dyh := yhat[i] - meanYhat
		cov += dy * dyh
		varY += dy * dy
		varYhat += dyh * dyh
	}
	denom := math.Sqrt(varY * varYhat)
	if denom <= 0 {
		return 0
	}
	return cov / denom
}

// sliceNRMSE is the RMS residual between a slice's real and simulated
// in-mask pixels, normalized by la.VecNorm(y).
func sliceNRMSE(y, yhat []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	diff := make([]float64, len(y))
	for i := range y {
		diff[i] = y[i] - yhat[i]
	}
	denom := la.VecNorm(y)
	if denom <= 0 {
		return 0
	}
	return la.VecNorm(diff) / denom
}

// MeanNCC averages sliceNCC over every active slice.
func MeanNCC(slices []*sliceimg.Slice) float64 {
	var sum, n float64
	for _, s := range slices {
		if !s.Active() {
			continue
		}
		y, yhat := flattenMasked(s)
		sum += sliceNCC(y, yhat)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// MeanNRMSE averages sliceNRMSE over every active slice.
func MeanNRMSE(slices []*sliceimg.Slice) float64 {
	var sum, n float64
	for _, s := range slices {
		if !s.Active() {
			continue
		}
		y, yhat := flattenMasked(s)
		sum += sliceNRMSE(y, yhat)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// MeanWeight averages every active slice's per-pixel robust weight.
func MeanWeight(slices []*sliceimg.Slice) float64 {
	var sum, n float64
	for _, s := range slices {
		if !s.Active() {
			continue
		}
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				if !s.InsideMask[j][i] {
					continue
				}
				sum += s.Weight[j][i]
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// ExcludedRatio is the fraction of slices flagged force- or
// structurally-excluded.
func ExcludedRatio(slices []*sliceimg.Slice) float64 {
	if len(slices) == 0 {
		return 0
	}
	var excluded float64
	for _, s := range slices {
		if s.ForceExcluded || s.StructurallyExcluded {
			excluded++
		}
	}
	return excluded / float64(len(slices))
}

// VolumeRmse computes the RMS difference between two volumes of equal
// shape, e.g. a reconstruction against a known phantom ground truth.
func VolumeRmse(a, b *volume.Volume) float64 {
	if a.Image.Nx != b.Image.Nx || a.Image.Ny != b.Image.Ny || a.Image.Nz != b.Image.Nz {
		return math.NaN()
	}
	va := a.Image.Flatten()
	vb := b.Image.Flatten()
	diff := make([]float64, len(va))
	for i := range va {
		diff[i] = va[i] - vb[i]
	}
	return la.VecNorm(diff) / math.Sqrt(float64(len(diff)))
}
