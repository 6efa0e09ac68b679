// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package robust implements the EM / robust statistics of spec.md
// §4.4: a two-component (Gaussian inlier + uniform outlier) mixture
// per in-mask pixel, and a two-slice-class (good vs bad) mixture per
// slice, with E- and M-steps jointly estimating inlier variance,
// outlier mixing weight, and slice-level class probabilities.
package robust

import (
	"context"
	"math"
	"sort"

	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/workpool"
)

// floorPositive is the constant degenerate numerics are clamped to
// (spec.md §4.4 "Degenerate numerics... floor to small positive
// constants"; spec.md §7 NumericDegenerate).
const floorPositive = 1e-8

// State holds the global EM parameters of spec.md §3 ("Global
// parameters"): inlier variance, class-mixing probability, voxel
// outlier range, and slice-class priors.
type State struct {
	SigmaIn2 float64 // σ²_in
	PIn      float64 // p_inlier

	OutlierMin, OutlierMax float64 // range of the uniform outlier component

	CoverageFloor float64 // pixels below this coverage get w=0

	// slice-class mixture (good vs bad), fit to the median in-slice
	// inlier weight of every active slice.
	GoodMean, GoodVar float64
	BadMean, BadVar   float64
	GoodPrior         float64
}

// NewState initializes the EM state with the defaults of spec.md §4.4:
// σ²_in=(max-min)²/36, p_in=0.9, slice-class prior good=0.9.
func NewState(min, max, coverageFloor float64) *State {
	span := max - min
	return &State{
		SigmaIn2:      span * span / 36,
		PIn:           0.9,
		OutlierMin:    min,
		OutlierMax:    max,
		CoverageFloor: coverageFloor,
		GoodMean:      0.9,
		GoodVar:       0.01,
		BadMean:       0.3,
		BadVar:        0.05,
		GoodPrior:     0.9,
	}
}

func gaussianDensity(r, mean, variance float64) float64 {
	if variance <= 0 {
		variance = floorPositive
	}
	return math.Exp(-0.5*(r-mean)*(r-mean)/variance) / math.Sqrt(2*math.Pi*variance)
}

func (st *State) uniformDensity() float64 {
	span := st.OutlierMax - st.OutlierMin
	if span <= 0 {
		return 1 / floorPositive
	}
	return 1 / span
}

// residual computes r_{kij} = y·exp(-b)/s - ŷ (spec.md §4.4/§4.3).
func residual(s *sliceimg.Slice, i, j int) float64 {
	return s.Pixels[j][i]*math.Exp(-s.Bias[j][i])/s.Scale - s.Simulated[j][i]
}

// EStepPixels is spec.md §4.4's per-pixel E-step: w_{kij} ←
// p_in·N(r;0,σ²_in) / (p_in·N + (1-p_in)/(max-min)). Pixels outside
// mask or below the coverage floor get w=0.
func EStepPixels(ctx context.Context, slices []*sliceimg.Slice, st *State) {
	workpool.Map(ctx, len(slices), 0, func(k int) {
		s := slices[k]
		if s.ForceExcluded {
			zeroWeights(s)
			return
		}
		uniform := st.uniformDensity()
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				if !s.InsideMask[j][i] || s.Coverage[j][i] < st.CoverageFloor {
					s.Weight[j][i] = 0
					continue
				}
				r := residual(s, i, j)
				pIn := gaussianDensity(r, 0, st.SigmaIn2)
				num := st.PIn * pIn
				den := num + (1-st.PIn)*uniform
				if den <= 0 {
					s.Weight[j][i] = 0
					continue
				}
				s.Weight[j][i] = num / den
			}
		}
	})
}

func zeroWeights(s *sliceimg.Slice) {
	for j := range s.Weight {
		for i := range s.Weight[j] {
			s.Weight[j][i] = 0
		}
	}
}

// EStepSlices is spec.md §4.4's per-slice E-step: fit a slice-level
// Gaussian to the sorted in-slice inlier weights, then set W_k to the
// posterior of the slice under the two-slice-class mixture. The
// "sorted" step is a median-like robust summary of the slice's own
// weight distribution, read as the slice's quality score qk.
func EStepSlices(ctx context.Context, slices []*sliceimg.Slice, st *State) {
	workpool.Map(ctx, len(slices), 0, func(k int) {
		s := slices[k]
		if s.ForceExcluded {
			s.SliceWeight = 0
			return
		}
		qk := sliceQualityScore(s)
		good := st.GoodPrior * gaussianDensity(qk, st.GoodMean, st.GoodVar)
		bad := (1 - st.GoodPrior) * gaussianDensity(qk, st.BadMean, st.BadVar)
		if good+bad <= 0 {
			s.SliceWeight = 0
			return
		}
		s.SliceWeight = good / (good + bad)
	})
}

// sliceQualityScore returns the median in-mask pixel weight, i.e. the
// "sorted in-slice inlier weights" of spec.md §4.4.
func sliceQualityScore(s *sliceimg.Slice) float64 {
	var vals []float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if s.InsideMask[j][i] {
				vals = append(vals, s.Weight[j][i])
			}
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	return vals[len(vals)/2]
}

// MStep is spec.md §4.4's M-step: σ²_in ← weighted variance of
// residuals across all slices; p_in ← weighted mean of w; slice-class
// statistics updated analogously from the per-slice quality scores.
func MStep(slices []*sliceimg.Slice, st *State) {
	var sumW, sumWR2, sumW1 float64
	var goodSumW, goodSumQ, goodSumQ2 float64
	var badSumW, badSumQ, badSumQ2 float64
	var goodTotal, total float64

	for _, s := range slices {
		if !s.Active() {
			continue
		}
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				if !s.InsideMask[j][i] {
					continue
				}
				w := s.Weight[j][i] * s.SliceWeight
				r := residual(s, i, j)
				sumW += w
				sumWR2 += w * r * r
				sumW1 += w
			}
		}
		qk := sliceQualityScore(s)
		good := st.GoodPrior * gaussianDensity(qk, st.GoodMean, st.GoodVar)
		bad := (1 - st.GoodPrior) * gaussianDensity(qk, st.BadMean, st.BadVar)
		var resp float64
		if good+bad > 0 {
			resp = good / (good + bad)
		}
		goodSumW += resp
		goodSumQ += resp * qk
		goodSumQ2 += resp * qk * qk
		badSumW += 1 - resp
		badSumQ += (1 - resp) * qk
		badSumQ2 += (1 - resp) * qk * qk
		total++
		goodTotal += resp
	}

	if sumW > floorPositive {
		st.SigmaIn2 = sumWR2 / sumW
	}
	if st.SigmaIn2 < floorPositive {
		st.SigmaIn2 = floorPositive
	}
	if len(slices) > 0 {
		st.PIn = meanPixelWeight(slices)
	}
	if st.PIn < floorPositive {
		st.PIn = floorPositive
	}

	if goodSumW > floorPositive {
		st.GoodMean = goodSumQ / goodSumW
		st.GoodVar = math.Max(goodSumQ2/goodSumW-st.GoodMean*st.GoodMean, floorPositive)
	}
	if badSumW > floorPositive {
		st.BadMean = badSumQ / badSumW
		st.BadVar = math.Max(badSumQ2/badSumW-st.BadMean*st.BadMean, floorPositive)
	}
	if total > 0 {
		st.GoodPrior = goodTotal / total
	}
}

func meanPixelWeight(slices []*sliceimg.Slice) float64 {
	var sum, n float64
	for _, s := range slices {
		if !s.Active() {
			continue
		}
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				if s.InsideMask[j][i] {
					sum += s.Weight[j][i]
					n++
				}
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
