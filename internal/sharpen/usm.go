// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package sharpen implements unsharp masking, the classical spatial sharpening filter
// used as a baseline against deconvolution
package sharpen

import (
	"math"

	"github.com/mlnoga/deconv/internal/plane"
)

// Reflects out of bounds coordinates back into [0, size-1]
func reflect(size, x int) int {
	if x < 0 {
		return -x - 1
	}
	if x >= size {
		return 2*size - x - 1
	}
	return x
}

func gaussianDefiniteIntegral(mu, sigma, x float64) float64 {
	return 0.5 * (1 + math.Erf((x-mu)/(math.Sqrt2*sigma)))
}

// Maximum mass of the gaussian left outside of a truncated kernel, per side
const acceptOut = 0.01

// Generates a truncated, normalized 1D gaussian kernel of odd length for the given sigma.
// Entries integrate the gaussian over each pixel
func GaussianKernel1D(sigma float64) []float64 {
	radius := 0
	for gaussianDefiniteIntegral(0, sigma, -0.5-float64(radius)) >= acceptOut {
		radius++
	}
	if radius > 0 {
		radius--
	}
	kernel := make([]float64, 2*radius+1)

	// left half and centre by integration, right half mirrored
	sum := 0.0
	lower := gaussianDefiniteIntegral(0, sigma, -0.5-float64(radius))
	for i := 0; i <= radius; i++ {
		upper := gaussianDefiniteIntegral(0, sigma, -0.5-float64(radius)+float64(i+1))
		kernel[i] = upper - lower
		sum += kernel[i]
		lower = upper
	}
	for i := 1; i <= radius; i++ {
		kernel[radius+i] = kernel[radius-i]
		sum += kernel[radius+i]
	}

	// renormalize for the truncated tails
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// Convolves rows of src with the kernel into dst, reflecting at the borders
func convolveX(dst, src *plane.Plane, kernel []float64) {
	k := len(kernel) / 2
	for y := 0; y < src.Height; y++ {
		row := src.Data[y*src.Width : (y+1)*src.Width]
		for x := range row {
			sum := 0.0
			for i := -k; i <= k; i++ {
				sum += row[reflect(src.Width, x+i)] * kernel[i+k]
			}
			dst.Data[y*src.Width+x] = sum
		}
	}
}

// Convolves columns of src with the kernel into dst, reflecting at the borders
func convolveY(dst, src *plane.Plane, kernel []float64) {
	k := len(kernel) / 2
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			sum := 0.0
			for i := -k; i <= k; i++ {
				sum += src.Data[reflect(src.Height, y+i)*src.Width+x] * kernel[i+k]
			}
			dst.Data[y*src.Width+x] = sum
		}
	}
}

// Blurs the plane with a separable gaussian of the given sigma. Borders are reflected, not wrapped
func GaussFilter2D(p *plane.Plane, sigma float64) *plane.Plane {
	kernel := GaussianKernel1D(sigma)
	tmp := plane.New(p.Width, p.Height)
	res := plane.New(p.Width, p.Height)
	convolveX(tmp, p, kernel)
	convolveY(res, tmp, kernel)
	return res
}

// Sharpens p by adding gain times the difference to its gaussian blur. Pixels below
// absThreshold are left unchanged, results are clipped to the input range
func UnsharpMask(p *plane.Plane, sigma, gain, absThreshold float64) *plane.Plane {
	blurred := GaussFilter2D(p, sigma)
	min, max := math.Inf(1), math.Inf(-1)
	for _, d := range p.Data {
		min, max = math.Min(min, d), math.Max(max, d)
	}
	res := plane.New(p.Width, p.Height)
	for i, d := range p.Data {
		if d < absThreshold {
			res.Data[i] = d
			continue
		}
		r := d + (d-blurred.Data[i])*gain
		res.Data[i] = math.Max(min, math.Min(max, r))
	}
	return res
}
