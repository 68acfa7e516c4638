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
	"math"
	"testing"
)

type gaussianTestCase struct {
	Width, Height int
	Sigma         float64
}

func TestMakeGaussian(t *testing.T) {
	tcs := []gaussianTestCase{{16, 16, 1}, {17, 17, 2}, {32, 20, 3.5}, {5, 5, 0.3}}
	for _, tc := range tcs {
		p, err := MakeGaussian(tc.Width, tc.Height, tc.Sigma)
		if err != nil {
			t.Fatal(err)
		}
		if s := p.Sum(); math.Abs(s-1) > 1e-12 {
			t.Errorf("%dx%d sigma=%f: sum=%f; want 1", tc.Width, tc.Height, tc.Sigma, s)
		}
		x, y, _ := p.Max()
		if x != tc.Width/2 || y != tc.Height/2 {
			t.Errorf("%dx%d sigma=%f: peak at (%d,%d); want (%d,%d)", tc.Width, tc.Height, tc.Sigma, x, y, tc.Width/2, tc.Height/2)
		}
		for i, v := range p.Data {
			if v < 0 {
				t.Errorf("%dx%d sigma=%f: p[%d]=%f negative", tc.Width, tc.Height, tc.Sigma, i, v)
			}
		}
		cx, cy := tc.Width/2, tc.Height/2
		if cx > 0 && cx+1 < tc.Width && math.Abs(p.At(cx-1, cy)-p.At(cx+1, cy)) > 1e-15 {
			t.Errorf("%dx%d sigma=%f: not symmetric around the centre", tc.Width, tc.Height, tc.Sigma)
		}
	}
}

func TestMakeGaussianInvalid(t *testing.T) {
	tcs := []gaussianTestCase{{0, 4, 1}, {4, -1, 1}, {4, 4, 0}, {4, 4, -2}}
	for _, tc := range tcs {
		if _, err := MakeGaussian(tc.Width, tc.Height, tc.Sigma); err == nil {
			t.Errorf("%dx%d sigma=%f: no error", tc.Width, tc.Height, tc.Sigma)
		}
	}
}

func TestFWHM(t *testing.T) {
	if f := FWHM(1); math.Abs(f-2.3548200450309493) > 1e-12 {
		t.Errorf("fwhm=%f; want 2.35482", f)
	}
}

func TestFitGaussianSigma(t *testing.T) {
	for _, sigma := range []float64{1.5, 2, 3} {
		p, _ := MakeGaussian(33, 33, sigma)
		got, err := FitGaussianSigma(p)
		if err != nil {
			t.Fatal(err)
		}
		// pixel integration widens the sampled profile slightly
		if math.Abs(got-sigma) > 0.1 {
			t.Errorf("sigma=%f: fitted %f", sigma, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	p, _ := MakeGaussian(8, 8, 1)
	p.Scale(7)
	Normalize(p)
	if s := p.Sum(); math.Abs(s-1) > 1e-12 {
		t.Errorf("sum=%f; want 1", s)
	}
}
