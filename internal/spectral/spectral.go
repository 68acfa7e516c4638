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

// Package spectral implements convolution, its adjoint and naive deconvolution
// of images via the convolution theorem.
//
// All operations are circular: the image is treated as one period of a periodic
// signal, so blur leaks across the borders and wraps around to the opposite side.
// Padding would avoid these artifacts at the cost of a different operator; this
// package keeps the periodic model.
//
// Kernels are expected centred at (width/2, height/2), the position a point at
// the origin moves to under plane.Shift.
package spectral

import (
	"math/cmplx"

	"github.com/mlnoga/deconv/internal/plane"
)

// A linear, shift-invariant blur for images of one fixed size. Keeps the FFT plans
// and the transformed kernel, so repeated application only costs one forward and
// one inverse transform. Not safe for concurrent use.
type Operator struct {
	Width, Height int

	t          *fft2
	kernel     *plane.Plane
	kernelHat  []complex128
	adjointHat []complex128 // lazily computed
}

// Creates an operator blurring with the given kernel. Images passed to the
// operator must have the kernel's dimensions
func NewOperator(kernel *plane.Plane) *Operator {
	t := newFFT2(kernel.Width, kernel.Height)
	return &Operator{
		Width:     kernel.Width,
		Height:    kernel.Height,
		t:         t,
		kernel:    kernel,
		kernelHat: t.forward(kernel),
	}
}

func (op *Operator) check(data *plane.Plane) error {
	return plane.CheckShapes(op.kernel, data)
}

// Convolves data with the kernel. The spectra are multiplied pointwise; centre-shifting
// both spectra before and inverse-shifting after the product is a permutation that
// cancels out, so the product is taken directly. The real part of the inverse transform
// is rolled back by (w/2, h/2) so a kernel centred at (w/2, h/2) does not displace the
// image. For even sizes this equals the centre shift of numpy's fftshift; for odd sizes
// fftshift would displace the result by one pixel per axis.
func (op *Operator) Apply(data *plane.Plane) (*plane.Plane, error) {
	if err := op.check(data); err != nil {
		return nil, err
	}
	return op.multiply(data, op.kernelHat).InverseShift(), nil
}

// Applies the adjoint (transpose) of the blur, i.e. convolution with the kernel
// rotated by 180 degrees about its centre. Satisfies <Apply(x), y> == <x, ApplyAdjoint(y)>
func (op *Operator) ApplyAdjoint(data *plane.Plane) (*plane.Plane, error) {
	if err := op.check(data); err != nil {
		return nil, err
	}
	if op.adjointHat == nil {
		op.adjointHat = op.t.forward(op.kernel.Flip())
	}
	return op.multiply(data, op.adjointHat).InverseShift(), nil
}

// Naive deconvolution: undoes the final roll of Apply and divides the spectrum of
// data by the kernel spectrum. Nothing guards against (near-)zero kernel frequencies;
// these amplify noise without bound and may produce Inf or NaN samples.
func (op *Operator) Invert(data *plane.Plane) (*plane.Plane, error) {
	if err := op.check(data); err != nil {
		return nil, err
	}
	spec := op.t.forward(data.Shift())
	for i := range spec {
		spec[i] /= op.kernelHat[i]
	}
	return op.t.inverseReal(spec), nil
}

// Returns the magnitudes of the kernel spectrum, in unshifted order
func (op *Operator) Magnitudes() []float64 {
	mags := make([]float64, len(op.kernelHat))
	for i, c := range op.kernelHat {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

func (op *Operator) multiply(data *plane.Plane, hat []complex128) *plane.Plane {
	spec := op.t.forward(data)
	for i := range spec {
		spec[i] *= hat[i]
	}
	return op.t.inverseReal(spec)
}

// Convolves data with kernel, both of identical shape
func Convolve(data, kernel *plane.Plane) (*plane.Plane, error) {
	if err := plane.CheckShapes(kernel, data); err != nil {
		return nil, err
	}
	return NewOperator(kernel).Apply(data)
}

// Convolves data with the kernel rotated by 180 degrees about its centre (w/2, h/2), the
// exact adjoint of Convolve. For odd sizes this equals Convolve(data, kernel.Rotate180()).
// For even sizes the literal kernel[::-1, ::-1] of Rotate180 pivots about ((w-1)/2, (h-1)/2),
// and Convolve with it differs from Adjoint by a circular shift of one pixel per axis:
// Convolve(data, kernel.Rotate180()) at (x, y) equals Adjoint at (x+1, y+1)
func Adjoint(data, kernel *plane.Plane) (*plane.Plane, error) {
	if err := plane.CheckShapes(kernel, data); err != nil {
		return nil, err
	}
	return NewOperator(kernel).ApplyAdjoint(data)
}

// Naive spectral deconvolution, the exact inverse of Convolve for kernels without
// spectral zeros
func Deconvolve(data, kernel *plane.Plane) (*plane.Plane, error) {
	if err := plane.CheckShapes(kernel, data); err != nil {
		return nil, err
	}
	return NewOperator(kernel).Invert(data)
}
