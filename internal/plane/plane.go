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

// Package plane holds the two-dimensional real-valued arrays that images,
// kernels and solver iterates are made of.
package plane

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Returned whenever two planes are combined whose dimensions differ
var ErrShapeMismatch = errors.New("plane: shape mismatch")

// A 2D array of real samples. Data is stored row by row, X varying fastest,
// matching the axis order of FITS files.
type Plane struct {
	Width  int
	Height int
	Data   []float64
}

// Creates a zero-filled plane of the given dimensions
func New(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Data: make([]float64, width*height)}
}

// Wraps existing data into a plane. Data is not copied
func NewFromData(width, height int, data []float64) (*Plane, error) {
	if width*height != len(data) {
		return nil, fmt.Errorf("%w: %dx%d plane with %d samples", ErrShapeMismatch, width, height, len(data))
	}
	return &Plane{Width: width, Height: height, Data: data}, nil
}

// Deep copy
func (p *Plane) Clone() *Plane {
	return &Plane{Width: p.Width, Height: p.Height, Data: append([]float64(nil), p.Data...)}
}

func (p *Plane) At(x, y int) float64     { return p.Data[y*p.Width+x] }
func (p *Plane) Set(x, y int, v float64) { p.Data[y*p.Width+x] = v }

func (p *Plane) SameShape(o *Plane) bool {
	return p.Width == o.Width && p.Height == o.Height
}

func (p *Plane) String() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// Returns an error wrapping ErrShapeMismatch unless all planes have the shape of the first one
func CheckShapes(ps ...*Plane) error {
	for _, p := range ps[1:] {
		if !ps[0].SameShape(p) {
			return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, ps[0], p)
		}
	}
	return nil
}

// Returns a - b as a new plane
func Sub(a, b *Plane) (*Plane, error) {
	if err := CheckShapes(a, b); err != nil {
		return nil, err
	}
	res := New(a.Width, a.Height)
	floats.SubTo(res.Data, a.Data, b.Data)
	return res, nil
}

// Returns a + s*b as a new plane
func AddScaled(a *Plane, s float64, b *Plane) (*Plane, error) {
	if err := CheckShapes(a, b); err != nil {
		return nil, err
	}
	res := New(a.Width, a.Height)
	floats.AddScaledTo(res.Data, a.Data, s, b.Data)
	return res, nil
}

// Multiplies all samples by s in place
func (p *Plane) Scale(s float64) { floats.Scale(s, p.Data) }

func (p *Plane) Sum() float64 { return floats.Sum(p.Data) }

// Squared euclidean norm
func (p *Plane) Norm2Sq() float64 {
	n := floats.Norm(p.Data, 2)
	return n * n
}

// L1 norm, sum of absolute values
func (p *Plane) Norm1() float64 { return floats.Norm(p.Data, 1) }

// Inner product of two planes of identical shape
func Dot(a, b *Plane) (float64, error) {
	if err := CheckShapes(a, b); err != nil {
		return 0, err
	}
	return floats.Dot(a.Data, b.Data), nil
}

// Returns the index and value of the maximum sample
func (p *Plane) Max() (x, y int, v float64) {
	i := floats.MaxIdx(p.Data)
	return i % p.Width, i / p.Width, p.Data[i]
}

// True if any sample is NaN or infinite
func (p *Plane) HasNonFinite() bool {
	for _, v := range p.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
