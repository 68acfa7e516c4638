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

package plane

// Circularly shifts the plane by (dx, dy) pixels, returning a new plane.
// The sample at (x,y) moves to ((x+dx) mod w, (y+dy) mod h).
func (p *Plane) Roll(dx, dy int) *Plane {
	w, h := p.Width, p.Height
	res := New(w, h)
	for y := 0; y < h; y++ {
		ty := mod(y+dy, h)
		for x := 0; x < w; x++ {
			res.Data[ty*w+mod(x+dx, w)] = p.Data[y*w+x]
		}
	}
	return res
}

// Moves the zero-frequency (origin) sample to the centre (w/2, h/2), like numpy's fftshift
func (p *Plane) Shift() *Plane { return p.Roll(p.Width/2, p.Height/2) }

// Inverse of Shift, like numpy's ifftshift. Differs from Shift for odd dimensions
func (p *Plane) InverseShift() *Plane { return p.Roll(-(p.Width / 2), -(p.Height / 2)) }

// Reverses both axes, like kernel[::-1, ::-1]
func (p *Plane) Rotate180() *Plane {
	w, h := p.Width, p.Height
	res := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			res.Data[(h-1-y)*w+(w-1-x)] = p.Data[y*w+x]
		}
	}
	return res
}

// Circularly rotates a kernel by 180 degrees about the centre pixel (w/2, h/2), such that
// a centred convolution with the result is the exact adjoint of a centred convolution with
// the original. Rotate180 pivots about ((w-1)/2, (h-1)/2) instead. Both agree for odd
// dimensions; for even ones Rotate180 misplaces the adjoint by one pixel per axis.
func (p *Plane) Flip() *Plane {
	w, h := p.Width, p.Height
	sx, sy := w/2, h/2
	res := New(w, h)
	for y := 0; y < h; y++ {
		fy := mod(2*sy-y, h)
		for x := 0; x < w; x++ {
			res.Data[y*w+x] = p.Data[fy*w+mod(2*sx-x, w)]
		}
	}
	return res
}

func mod(i, n int) int {
	r := i % n
	if r < 0 {
		r += n
	}
	return r
}
