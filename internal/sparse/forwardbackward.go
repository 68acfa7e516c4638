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

// Package sparse solves the sparsity-regularized deconvolution problem
//
//	argmin_alpha 0.5*||y - H(alpha)||^2 + lambda*||alpha||_1
//
// by Forward-Backward splitting, also known as proximal gradient descent or ISTA:
// an explicit gradient step on the quadratic data term, followed by soft thresholding,
// the proximal step of the L1 penalty.
package sparse

import (
	"errors"
	"fmt"

	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/spectral"
)

// Computes the gradient of the smooth data fidelity term at the current estimate
type GradientProvider interface {
	Gradient(observation, estimate, kernel *plane.Plane) (*plane.Plane, error)
}

// Adapter to use ordinary functions as GradientProviders
type GradientFunc func(observation, estimate, kernel *plane.Plane) (*plane.Plane, error)

func (f GradientFunc) Gradient(observation, estimate, kernel *plane.Plane) (*plane.Plane, error) {
	return f(observation, estimate, kernel)
}

// Gradient of 0.5*||y - H(x)||^2 for convolution H, which is Ht(H(x) - y).
// Keeps the spectral operator of the most recently used kernel, keyed by the kernel pointer.
// Changes to the data of that same kernel plane are not detected; call Reset after modifying it
// in place. Not safe for concurrent use.
type ConvolutionGradient struct {
	kernel *plane.Plane
	op     *spectral.Operator
}

func NewConvolutionGradient() *ConvolutionGradient { return &ConvolutionGradient{} }

// Drops the cached spectral operator, so the next call recomputes it from the kernel data
func (g *ConvolutionGradient) Reset() {
	g.kernel, g.op = nil, nil
}

func (g *ConvolutionGradient) Gradient(observation, estimate, kernel *plane.Plane) (*plane.Plane, error) {
	if g.kernel != kernel {
		if err := plane.CheckShapes(kernel, observation, estimate); err != nil {
			return nil, err
		}
		g.kernel, g.op = kernel, spectral.NewOperator(kernel)
	}
	blurred, err := g.op.Apply(estimate)
	if err != nil {
		return nil, err
	}
	residual, err := plane.Sub(blurred, observation)
	if err != nil {
		return nil, err
	}
	return g.op.ApplyAdjoint(residual)
}

// Settings for the Forward-Backward iteration
type Options struct {
	Lambda     float64 `json:"lambda"`     // regularization weight, >=0. Larger values give sparser estimates
	NIter      int     `json:"nIter"`      // fixed number of iterations, no early exit
	Gamma      float64 `json:"gamma"`      // gradient step size, >0. Converges for gamma <= 1/L
	ReturnCost bool    `json:"returnCost"` // record the objective after every iteration
}

func DefaultOptions() Options {
	return Options{Lambda: 0, NIter: 300, Gamma: 1.0, ReturnCost: false}
}

// Outcome of a Forward-Backward run
type Result struct {
	Estimate   *plane.Plane
	Cost       []float64 // one objective value per iteration if requested, else nil
	Iterations int
}

// Runs opts.NIter iterations of Forward-Backward splitting, starting from firstGuess:
//
//	estimate <- soft_thresh(estimate - gamma*grad(observation, estimate, kernel), lambda)
//
// The first guess is not modified. Convergence requires gamma <= 1/L for the Lipschitz
// constant L of the gradient; this is not checked, and a larger step diverges visibly
// in the cost trace. The loop performs no I/O.
func ForwardBackward(observation, firstGuess, kernel *plane.Plane, grad GradientProvider, opts Options) (*Result, error) {
	if err := plane.CheckShapes(observation, firstGuess, kernel); err != nil {
		return nil, err
	}
	if grad == nil {
		return nil, errors.New("no gradient provider")
	}
	if opts.NIter < 0 {
		return nil, fmt.Errorf("invalid iteration count %d", opts.NIter)
	}
	if opts.Lambda < 0 {
		return nil, fmt.Errorf("invalid regularization weight %g", opts.Lambda)
	}
	if opts.Gamma <= 0 {
		return nil, fmt.Errorf("invalid step size %g", opts.Gamma)
	}

	estimate := firstGuess.Clone()
	var trace []float64
	var h *spectral.Operator
	if opts.ReturnCost {
		trace = make([]float64, 0, opts.NIter)
		h = spectral.NewOperator(kernel)
	}

	for i := 0; i < opts.NIter; i++ {
		g, err := grad.Gradient(observation, estimate, kernel)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if err := plane.CheckShapes(estimate, g); err != nil {
			return nil, fmt.Errorf("iteration %d: gradient: %w", i, err)
		}

		next := plane.New(estimate.Width, estimate.Height)
		gradientStep(next.Data, estimate.Data, g.Data, opts.Gamma)
		SoftThresholdSlice(next.Data, next.Data, opts.Lambda)
		estimate = next

		if opts.ReturnCost {
			c, err := costWith(h, observation, estimate, opts.Lambda)
			if err != nil {
				return nil, err
			}
			trace = append(trace, c)
		}
	}
	return &Result{Estimate: estimate, Cost: trace, Iterations: opts.NIter}, nil
}

// dst = x - gamma*g. The explicit conversion rounds the product, keeping results
// identical on platforms that would otherwise fuse multiply and add
func gradientStep(dst, x, g []float64, gamma float64) {
	for i, v := range x {
		dst[i] = v - float64(gamma*g[i])
	}
}

// Lipschitz constant of the gradient Ht(H(x) - y), the largest eigenvalue of HtH.
// For circular convolution this is the maximum squared magnitude of the kernel spectrum;
// it equals 1 for a normalized nonnegative kernel.
func LipschitzConstant(kernel *plane.Plane) float64 {
	max := 0.0
	for _, m := range spectral.NewOperator(kernel).Magnitudes() {
		if m*m > max {
			max = m * m
		}
	}
	return max
}
