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

import (
	"errors"
	"testing"
)

func ramp(w, h int) *Plane {
	p := New(w, h)
	for i := range p.Data {
		p.Data[i] = float64(i)
	}
	return p
}

type shiftTestCase struct {
	Width, Height int
}

func TestShiftInverseShift(t *testing.T) {
	tcs := []shiftTestCase{{4, 4}, {5, 3}, {6, 7}, {1, 1}}
	for _, tc := range tcs {
		p := ramp(tc.Width, tc.Height)
		back := p.Shift().InverseShift()
		for i, v := range back.Data {
			if v != p.Data[i] {
				t.Errorf("%dx%d: shift/inverse[%d]=%f; want %f", tc.Width, tc.Height, i, v, p.Data[i])
			}
		}
	}
}

func TestShiftMovesOriginToCentre(t *testing.T) {
	for _, tc := range []shiftTestCase{{4, 4}, {5, 5}, {8, 3}} {
		p := New(tc.Width, tc.Height)
		p.Set(0, 0, 1)
		s := p.Shift()
		if s.At(tc.Width/2, tc.Height/2) != 1 {
			t.Errorf("%dx%d: origin not at centre after shift", tc.Width, tc.Height)
		}
	}
}

func TestRotate180(t *testing.T) {
	p := ramp(3, 2)
	r := p.Rotate180()
	want := []float64{5, 4, 3, 2, 1, 0}
	for i, v := range r.Data {
		if v != want[i] {
			t.Errorf("r[%d]=%f; want %f", i, v, want[i])
		}
	}
}

func TestFlipKeepsCentredSymmetricKernelForEvenSizes(t *testing.T) {
	p := New(4, 4)
	p.Set(2, 2, 4)
	p.Set(1, 2, 1)
	p.Set(3, 2, 1)
	p.Set(2, 1, 1)
	p.Set(2, 3, 1)
	f := p.Flip()
	for i, v := range f.Data {
		if v != p.Data[i] {
			t.Errorf("f[%d]=%f; want %f", i, v, p.Data[i])
		}
	}
}

func TestFlipIsRotate180ForOddSizes(t *testing.T) {
	for _, tc := range []shiftTestCase{{5, 3}, {7, 9}, {1, 1}} {
		p := ramp(tc.Width, tc.Height)
		f, r := p.Flip(), p.Rotate180()
		for i, v := range f.Data {
			if v != r.Data[i] {
				t.Errorf("%dx%d: f[%d]=%f; want %f", tc.Width, tc.Height, i, v, r.Data[i])
			}
		}
	}
}

func TestFlipTwiceIsIdentity(t *testing.T) {
	for _, tc := range []shiftTestCase{{4, 4}, {5, 3}, {7, 6}} {
		p := ramp(tc.Width, tc.Height)
		ff := p.Flip().Flip()
		for i, v := range ff.Data {
			if v != p.Data[i] {
				t.Errorf("%dx%d: ff[%d]=%f; want %f", tc.Width, tc.Height, i, v, p.Data[i])
			}
		}
	}
}

func TestShapeMismatch(t *testing.T) {
	_, err := Sub(New(3, 3), New(3, 4))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
	if _, err := NewFromData(2, 2, make([]float64, 3)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
}

func TestNorms(t *testing.T) {
	p, _ := NewFromData(2, 2, []float64{3, -4, 0, 0})
	if n := p.Norm2Sq(); n < 25-1e-12 || n > 25+1e-12 {
		t.Errorf("norm2sq=%f; want 25", n)
	}
	if n := p.Norm1(); n != 7 {
		t.Errorf("norm1=%f; want 7", n)
	}
	x, y, v := p.Max()
	if x != 0 || y != 0 || v != 3 {
		t.Errorf("max=(%d,%d,%f); want (0,0,3)", x, y, v)
	}
}
