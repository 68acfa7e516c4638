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

package spectral

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/psf"
)

func randomPlane(w, h int, seed uint64) *plane.Plane {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p := plane.New(w, h)
	for i := range p.Data {
		p.Data[i] = rng.Float64()
	}
	return p
}

func delta(w, h, x, y int) *plane.Plane {
	p := plane.New(w, h)
	p.Set(x, y, 1)
	return p
}

type sizeTestCase struct {
	Width, Height int
	Sigma         float64
}

func TestConvolveWithCentredDeltaIsIdentity(t *testing.T) {
	for _, tc := range []sizeTestCase{{8, 8, 0}, {9, 7, 0}, {16, 5, 0}} {
		img := randomPlane(tc.Width, tc.Height, 1)
		res, err := Convolve(img, delta(tc.Width, tc.Height, tc.Width/2, tc.Height/2))
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range res.Data {
			if math.Abs(v-img.Data[i]) > 1e-12 {
				t.Errorf("%dx%d: res[%d]=%f; want %f", tc.Width, tc.Height, i, v, img.Data[i])
			}
		}
	}
}

func TestConvolvePreservesFlux(t *testing.T) {
	img := randomPlane(16, 16, 2)
	kernel, _ := psf.MakeGaussian(16, 16, 2)
	res, err := Convolve(img, kernel)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Sum()-img.Sum()) > 1e-9 {
		t.Errorf("sum=%f; want %f", res.Sum(), img.Sum())
	}
}

func TestAdjointIdentity(t *testing.T) {
	tcs := []sizeTestCase{{8, 8, 1}, {9, 9, 1.5}, {10, 7, 2}, {15, 12, 0.8}}
	for _, tc := range tcs {
		x := randomPlane(tc.Width, tc.Height, 3)
		y := randomPlane(tc.Width, tc.Height, 4)
		// an asymmetric kernel catches misaligned adjoints
		kernel := randomPlane(tc.Width, tc.Height, 5)
		psf.Normalize(kernel)

		hx, err := Convolve(x, kernel)
		if err != nil {
			t.Fatal(err)
		}
		hty, err := Adjoint(y, kernel)
		if err != nil {
			t.Fatal(err)
		}
		lhs, _ := plane.Dot(hx, y)
		rhs, _ := plane.Dot(x, hty)
		if math.Abs(lhs-rhs) > 1e-9*math.Abs(lhs) {
			t.Errorf("%dx%d: <Hx,y>=%.12f; <x,Hty>=%.12f", tc.Width, tc.Height, lhs, rhs)
		}
	}
}

func TestAdjointVersusRotatedKernel(t *testing.T) {
	for _, tc := range []sizeTestCase{{9, 7, 0}, {8, 8, 0}, {10, 5, 0}} {
		w, h := tc.Width, tc.Height
		y := randomPlane(w, h, 9)
		kernel := randomPlane(w, h, 10)
		adj, err := Adjoint(y, kernel)
		if err != nil {
			t.Fatal(err)
		}
		rot, err := Convolve(y, kernel.Rotate180())
		if err != nil {
			t.Fatal(err)
		}
		for yy := 0; yy < h; yy++ {
			for x := 0; x < w; x++ {
				// one pixel shift per even axis
				ax, ay := x, yy
				if w%2 == 0 {
					ax = (x + 1) % w
				}
				if h%2 == 0 {
					ay = (yy + 1) % h
				}
				if got, want := rot.At(x, yy), adj.At(ax, ay); math.Abs(got-want) > 1e-9 {
					t.Errorf("%dx%d: rotated(%d,%d)=%f; want adjoint(%d,%d)=%f", w, h, x, yy, got, ax, ay, want)
				}
			}
		}
	}
}

func TestDeconvolveRoundTrip(t *testing.T) {
	tcs := []sizeTestCase{{16, 16, 1}, {17, 13, 1}, {32, 32, 0.7}}
	for _, tc := range tcs {
		img := randomPlane(tc.Width, tc.Height, 6)
		kernel, err := psf.MakeGaussian(tc.Width, tc.Height, tc.Sigma)
		if err != nil {
			t.Fatal(err)
		}
		blurred, err := Convolve(img, kernel)
		if err != nil {
			t.Fatal(err)
		}
		restored, err := Deconvolve(blurred, kernel)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range restored.Data {
			if math.Abs(v-img.Data[i]) > 1e-8 {
				t.Errorf("%dx%d sigma=%f: restored[%d]=%f; want %f", tc.Width, tc.Height, tc.Sigma, i, v, img.Data[i])
				break
			}
		}
	}
}

func TestDeconvolveAmplifiesNoise(t *testing.T) {
	img := randomPlane(32, 32, 7)
	kernel, _ := psf.MakeGaussian(32, 32, 2)
	blurred, _ := Convolve(img, kernel)

	noise := randomPlane(32, 32, 8)
	noise.Scale(1e-6)
	noisy, _ := plane.AddScaled(blurred, 1, noise)

	restored, err := Deconvolve(noisy, kernel)
	if err != nil {
		t.Fatal(err)
	}
	diff, _ := plane.Sub(restored, img)
	gain := math.Sqrt(diff.Norm2Sq() / noise.Norm2Sq())
	if !(gain > 100) {
		t.Errorf("noise gain=%g; want >100", gain)
	}
}

func TestShapeMismatch(t *testing.T) {
	a, b := plane.New(4, 4), plane.New(4, 3)
	if _, err := Convolve(a, b); !errors.Is(err, plane.ErrShapeMismatch) {
		t.Errorf("convolve err=%v; want ErrShapeMismatch", err)
	}
	if _, err := Adjoint(a, b); !errors.Is(err, plane.ErrShapeMismatch) {
		t.Errorf("adjoint err=%v; want ErrShapeMismatch", err)
	}
	if _, err := Deconvolve(a, b); !errors.Is(err, plane.ErrShapeMismatch) {
		t.Errorf("deconvolve err=%v; want ErrShapeMismatch", err)
	}
}
