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
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/mlnoga/deconv/internal/plane"
)

// Two-dimensional complex FFT of fixed size, built from one-dimensional gonum
// transforms applied to rows, then columns. Not safe for concurrent use.
type fft2 struct {
	width, height int
	rows, cols    *fourier.CmplxFFT
	col           []complex128 // scratch column
}

func newFFT2(width, height int) *fft2 {
	return &fft2{
		width:  width,
		height: height,
		rows:   fourier.NewCmplxFFT(width),
		cols:   fourier.NewCmplxFFT(height),
		col:    make([]complex128, height),
	}
}

// Forward transform of a real plane into a newly allocated spectrum
func (t *fft2) forward(p *plane.Plane) []complex128 {
	spec := make([]complex128, len(p.Data))
	for i, v := range p.Data {
		spec[i] = complex(v, 0)
	}
	t.transform(spec, true)
	return spec
}

// Inverse transform of a spectrum, in place. Returns the real part as a new plane,
// normalized by 1/(width*height) since gonum transforms are unnormalized
func (t *fft2) inverseReal(spec []complex128) *plane.Plane {
	t.transform(spec, false)
	res := plane.New(t.width, t.height)
	scale := 1 / float64(t.width*t.height)
	for i, c := range spec {
		res.Data[i] = real(c) * scale
	}
	return res
}

func (t *fft2) transform(a []complex128, forward bool) {
	w, h := t.width, t.height

	for y := 0; y < h; y++ {
		row := a[y*w : (y+1)*w]
		if forward {
			t.rows.Coefficients(row, row)
		} else {
			t.rows.Sequence(row, row)
		}
	}

	col := t.col
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y*w+x]
		}
		if forward {
			t.cols.Coefficients(col, col)
		} else {
			t.cols.Sequence(col, col)
		}
		for y := 0; y < h; y++ {
			a[y*w+x] = col[y]
		}
	}
}
