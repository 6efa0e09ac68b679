// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package biasscale implements the bias & scale estimator of spec.md
// §4.5: a per-slice multiplicative intensity scale and a log-domain
// smooth bias field, fit to residuals between real and simulated
// slices under the current weights.
package biasscale

import (
	"context"
	"math"

	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
	"github.com/baby-MedIA/SVRTK-qMRI/workpool"
)

// floorPositive guards against the "scale -> 0" numeric degeneracy of
// spec.md §5 ("Failure semantics").
const floorPositive = 1e-6

// BiasLimit clips the log-domain bias field to avoid drift (spec.md
// §4.5 "clip to ±limit to avoid drift").
const BiasLimit = 3.0 // natural-log units, i.e. roughly a 20x multiplicative swing

// Blurrer is the Gaussian-blur collaborator the engine needs to
// smooth a slice's bias field; the blur primitive itself is out of
// scope (spec.md §1) and is injected here.
type Blurrer interface {
	Blur2D(grid [][]float64, mask [][]bool, sigmaMM float64, spacingX, spacingY float64) [][]float64
}

// SeparableGaussianBlurrer is a minimal default Blurrer, provided so
// this module is independently testable; production deployments are
// expected to inject the resampling collaborator's own blur instead.
type SeparableGaussianBlurrer struct{}

func (SeparableGaussianBlurrer) Blur2D(grid [][]float64, mask [][]bool, sigmaMM, spacingX, spacingY float64) [][]float64 {
	ny := len(grid)
	if ny == 0 {
		return grid
	}
	nx := len(grid[0])
	out := make([][]float64, ny)
	for j := range out {
		out[j] = make([]float64, nx)
	}
	if sigmaMM <= 0 {
		for j := range grid {
			copy(out[j], grid[j])
		}
		return out
	}
	radiusX := int(math.Ceil(3 * sigmaMM / spacingX))
	radiusY := int(math.Ceil(3 * sigmaMM / spacingY))
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if mask != nil && !mask[j][i] {
				continue
			}
			var sum, wsum float64
			for dj := -radiusY; dj <= radiusY; dj++ {
				jj := j + dj
				if jj < 0 || jj >= ny {
					continue
				}
				for di := -radiusX; di <= radiusX; di++ {
					ii := i + di
					if ii < 0 || ii >= nx {
						continue
					}
					if mask != nil && !mask[jj][ii] {
						continue
					}
					dx, dy := float64(di)*spacingX, float64(dj)*spacingY
					w := math.Exp(-0.5 * (dx*dx + dy*dy) / (sigmaMM * sigmaMM))
					sum += w * grid[jj][ii]
					wsum += w
				}
			}
			if wsum > 0 {
				out[j][i] = sum / wsum
			}
		}
	}
	return out
}

// EstimateScale returns the closed-form weighted-least-squares scale
// of spec.md §4.5 for one slice under the low_intensity_cutoff gate.
func EstimateScale(s *sliceimg.Slice, lowIntensityCutoff float64) float64 {
	meanYhat := meanSimulated(s)
	threshold := lowIntensityCutoff * meanYhat

	var num, den float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if !s.InsideMask[j][i] || s.Simulated[j][i] <= threshold {
				continue
			}
			w := s.Weight[j][i] * s.SliceWeight
			y := s.Pixels[j][i] * math.Exp(-s.Bias[j][i])
			yhat := s.Simulated[j][i]
			num += w * y * yhat
			den += w * yhat * yhat
		}
	}
	if den <= floorPositive {
		return floorPositive
	}
	scale := num / den
	if scale <= floorPositive {
		return floorPositive
	}
	return scale
}

func meanSimulated(s *sliceimg.Slice) float64 {
	var sum, n float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if s.InsideMask[j][i] {
				sum += s.Simulated[j][i]
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// EstimateBias fits the pixelwise log-residual log(y/(s·ŷ)), smooths
// it with blur at sigmaMM, subtracts its in-mask mean to keep it
// zero-mean, and clips to ±BiasLimit (spec.md §4.5).
func EstimateBias(s *sliceimg.Slice, blur Blurrer, sigmaMM, lowIntensityCutoff float64) {
	meanYhat := meanSimulated(s)
	threshold := lowIntensityCutoff * meanYhat

	raw := make([][]float64, s.Ny)
	for j := range raw {
		raw[j] = make([]float64, s.Nx)
	}
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if !s.InsideMask[j][i] || s.Simulated[j][i] <= threshold || s.Pixels[j][i] <= 0 {
				continue
			}
			raw[j][i] = math.Log(s.Pixels[j][i] / (s.Scale * s.Simulated[j][i]))
		}
	}

	smoothed := blur.Blur2D(raw, s.InsideMask, sigmaMM, s.Affine.Spacing[0], s.Affine.Spacing[1])
	mean := s.MeanInsideMask(smoothed)
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			v := smoothed[j][i] - mean
			if v > BiasLimit {
				v = BiasLimit
			}
			if v < -BiasLimit {
				v = -BiasLimit
			}
			s.Bias[j][i] = v
		}
	}
}

// NormalizeGlobalBias implements the optional global bias correction
// of spec.md §4.5: subtract the in-mask mean log-bias across all
// active slices from every active slice's bias field. The controller
// calls it after every inner SR step.
func NormalizeGlobalBias(ctx context.Context, slices []*sliceimg.Slice) {
	var sum, n float64
	for _, s := range slices {
		if !s.Active() {
			continue
		}
		sum += s.MeanInsideMask(s.Bias) * float64(countInside(s))
		n += float64(countInside(s))
	}
	if n == 0 {
		return
	}
	globalMean := sum / n
	workpool.Map(ctx, len(slices), 0, func(k int) {
		s := slices[k]
		if !s.Active() {
			return
		}
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				s.Bias[j][i] -= globalMean
			}
		}
	})
}

func countInside(s *sliceimg.Slice) int {
	n := 0
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if s.InsideMask[j][i] {
				n++
			}
		}
	}
	return n
}

// MatchesTarget reports whether a slice's inside-mask mean intensity
// (after bias and scale correction) is within 1% of target — the
// invariant of spec.md §3 and §8.
func MatchesTarget(s *sliceimg.Slice, target float64) bool {
	var sum, n float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if s.InsideMask[j][i] {
				sum += s.Pixels[j][i] * math.Exp(-s.Bias[j][i]) / s.Scale
				n++
			}
		}
	}
	if n == 0 {
		return true
	}
	mean := sum / n
	return math.Abs(mean-target) < 0.01*target
}
