// Copyright 2024 The SVRTK-qMRI Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package exclude implements structural exclusion (spec.md §4.7): a
// global NCC gate that down-weights or drops whole slices, and a
// local SSIM gate that builds per-slice inlier masks.
package exclude

import (
	"math"

	"github.com/baby-MedIA/SVRTK-qMRI/sliceimg"
)

// DefaultNCCThreshold and DefaultSSIMThreshold are spec.md §4.7's
// default gate thresholds.
const (
	DefaultNCCThreshold  = 0.5
	DefaultSSIMThreshold = 0.6
	DefaultSSIMWindow    = 11
)

// GlobalNCC computes the normalized cross-correlation between a
// slice's real and simulated pixels, inside mask only (spec.md §4.7).
func GlobalNCC(s *sliceimg.Slice) float64 {
	var sumY, sumYhat, n float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if !s.InsideMask[j][i] {
				continue
			}
			sumY += s.Pixels[j][i]
			sumYhat += s.Simulated[j][i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	meanY, meanYhat := sumY/n, sumYhat/n

	var cov, varY, varYhat float64
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if !s.InsideMask[j][i] {
				continue
			}
			dy := s.Pixels[j][i] - meanY
			dyhat := s.Simulated[j][i] - meanYhat
			cov += dy * dyhat
			varY += dy * dy
			varYhat += dyhat * dyhat
		}
	}
	denom := math.Sqrt(varY * varYhat)
	if denom <= 0 {
		return 0
	}
	return cov / denom
}

// GlobalGate applies the global NCC gate: a slice whose NCC falls
// below threshold is flagged structurally excluded for this outer
// iteration (spec.md §4.7, §"State machines").
func GlobalGate(s *sliceimg.Slice, threshold float64) (ncc float64, excluded bool) {
	if s.ForceExcluded {
		return 0, false
	}
	ncc = GlobalNCC(s)
	if ncc < threshold {
		s.StructurallyExcluded = true
		return ncc, true
	}
	return ncc, false
}

// LocalSSIMGate computes a windowed SSIM map between a slice's real
// and simulated pixels and zeroes the per-pixel inlier weight wherever
// the local SSIM falls below threshold (spec.md §4.7 "pixels below 0.6
// are masked out of the per-slice inlier mask for this outer
// iteration").
func LocalSSIMGate(s *sliceimg.Slice, window int, threshold float64) [][]float64 {
	ssim := windowedSSIM(s.Pixels, s.Simulated, s.InsideMask, window)
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			if s.InsideMask[j][i] && ssim[j][i] < threshold {
				s.Weight[j][i] = 0
			}
		}
	}
	return ssim
}

// ssimC1, ssimC2 are the standard SSIM stabilization constants scaled
// to an 8-bit-equivalent dynamic range of 700 (the engine's default
// intensity-matching target), since MR slice intensities are not
// bounded to [0,255].
const dynamicRange = 700.0

var ssimC1 = math.Pow(0.01*dynamicRange, 2)
var ssimC2 = math.Pow(0.03*dynamicRange, 2)

// windowedSSIM computes a per-pixel SSIM value over a window x window
// neighborhood centered at each pixel (spec.md §4.7 "11x11").
func windowedSSIM(a, b [][]float64, mask [][]bool, window int) [][]float64 {
	ny := len(a)
	out := make([][]float64, ny)
	if ny == 0 {
		return out
	}
	nx := len(a[0])
	for j := range out {
		out[j] = make([]float64, nx)
	}
	radius := window / 2
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			var sumA, sumB, n float64
			for dj := -radius; dj <= radius; dj++ {
				jj := j + dj
				if jj < 0 || jj >= ny {
					continue
				}
				for di := -radius; di <= radius; di++ {
					ii := i + di
					if ii < 0 || ii >= nx {
						continue
					}
					if mask != nil && !mask[jj][ii] {
						continue
					}
					sumA += a[jj][ii]
					sumB += b[jj][ii]
					n++
				}
			}
			if n == 0 {
				out[j][i] = 1
				continue
			}
			meanA, meanB := sumA/n, sumB/n
			var varA, varB, cov float64
			for dj := -radius; dj <= radius; dj++ {
				jj := j + dj
				if jj < 0 || jj >= ny {
					continue
				}
				for di := -radius; di <= radius; di++ {
					ii := i + di
					if ii < 0 || ii >= nx {
						continue
					}
					if mask != nil && !mask[jj][ii] {
						continue
					}
					da := a[jj][ii] - meanA
					db := b[jj][ii] - meanB
					varA += da * da
					varB += db * db
					cov += da * db
				}
			}
			varA /= n
			varB /= n
			cov /= n
			num := (2*meanA*meanB + ssimC1) * (2*cov + ssimC2)
			den := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
			if den <= 0 {
				out[j][i] = 1
				continue
			}
			out[j][i] = num / den
		}
	}
	return out
}
