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

package psf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/mlnoga/deconv/internal/plane"
)

var sigmaToFWHM = 2.0 * math.Sqrt(2.0*math.Log(2.0))

// Full width at half maximum of a gaussian with the given standard deviation
func FWHM(sigma float64) float64 { return sigma * sigmaToFWHM }

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func gaussianDefiniteIntegral(mu, sigma, x float64) float64 {
	return 0.5 * (1 + math.Erf((x-mu)/(math.Sqrt2*sigma)))
}

// Generates a 1D gaussian profile of the given length, centred on index length/2.
// Each entry integrates the gaussian over its pixel, so small sigmas stay exact
func gaussianProfile(length int, sigma float64) []float64 {
	mu := float64(length / 2)
	profile := make([]float64, length)
	lower := gaussianDefiniteIntegral(mu, sigma, -0.5)
	for i := range profile {
		upper := gaussianDefiniteIntegral(mu, sigma, float64(i)+0.5)
		profile[i] = upper - lower
		lower = upper
	}
	return profile
}

// Builds a normalized gaussian point spread function of the given dimensions and standard
// deviation in pixels. The peak sits at (width/2, height/2) and the samples sum to one.
func MakeGaussian(width, height int, sigma float64) (*plane.Plane, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid PSF dimensions %dx%d", width, height)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("invalid PSF sigma %g", sigma)
	}
	px := gaussianProfile(width, sigma)
	py := gaussianProfile(height, sigma)
	p := plane.New(width, height)
	for y, vy := range py {
		for x, vx := range px {
			p.Data[y*width+x] = vx * vy
		}
	}
	Normalize(p)
	return p, nil
}

// Scales the kernel to unit sum, in place. Kernels summing to zero are left unchanged
func Normalize(p *plane.Plane) {
	sum := p.Sum()
	if sum == 0 {
		return
	}
	p.Scale(1 / sum)
}

// Estimates the standard deviation of a roughly gaussian, centred PSF by fitting
// amplitude and sigma of a gaussian around the brightest pixel with Nelder-Mead
func FitGaussianSigma(p *plane.Plane) (sigma float64, err error) {
	cx, cy, peak := p.Max()
	if peak <= 0 {
		return 0, errors.New("PSF has no positive peak")
	}

	// Initial guess from the second moment of the positive part
	sum, m2 := 0.0, 0.0
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			v := p.At(x, y)
			if v <= 0 {
				continue
			}
			dx, dy := float64(x-cx), float64(y-cy)
			sum += v
			m2 += v * (dx*dx + dy*dy)
		}
	}
	sigma0 := math.Sqrt(m2 / sum / 2)
	if sigma0 < 0.5 {
		sigma0 = 0.5
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			amp, s := x[0], x[1]
			if s <= 0 {
				return math.Inf(1)
			}
			inv := 1 / (2 * s * s)
			sumSqDiff := 0.0
			for y := 0; y < p.Height; y++ {
				dy := float64(y - cy)
				for x := 0; x < p.Width; x++ {
					dx := float64(x - cx)
					diff := p.At(x, y) - amp*math.Exp(-(dx*dx+dy*dy)*inv)
					sumSqDiff += diff * diff
				}
			}
			return sumSqDiff
		},
	}
	result, err := optimize.Minimize(problem, []float64{peak, sigma0}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, err
	}
	return math.Abs(result.X[1]), nil
}
