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

// Package illcond demonstrates ill-posed and ill-conditioned linear problems: small
// perturbations of the data cause large changes of the solution, or no unique solution exists
package illcond

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/spectral"
)

// Sensitivity of the solution of Ax=b to a perturbation db of the right hand side
type Report struct {
	Cond          float64   // 2-norm condition number of A
	Rank          int       // numerical rank of A
	X             []float64 // solution for b
	XPerturbed    []float64 // solution for b+db
	RelInput      float64   // ||db|| / ||b||
	RelOutput     float64   // ||dx|| / ||x||
	Amplification float64   // RelOutput / RelInput, bounded by Cond
}

func (r *Report) String() string {
	return fmt.Sprintf("cond %.4g rank %d x %.4g x' %.4g relative input change %.3g relative output change %.3g amplification %.4g",
		r.Cond, r.Rank, r.X, r.XPerturbed, r.RelInput, r.RelOutput, r.Amplification)
}

const epsilon = 0x1p-52

var ErrSingular = errors.New("matrix is singular, the solution is not unique")

// Solves Ax=b and Ax=b+db and reports how much the perturbation is amplified.
// Returns a partial report with ErrSingular for rank deficient systems
func Conditioning(a mat.Matrix, b, db []float64) (*Report, error) {
	rows, cols := a.Dims()
	if rows != cols || len(b) != rows || len(db) != rows {
		return nil, fmt.Errorf("dimension mismatch: A is %dx%d, b has %d, db has %d entries", rows, cols, len(b), len(db))
	}

	r := &Report{Cond: mat.Cond(a, 2), Rank: rank(a)}
	if r.Rank < rows {
		return r, fmt.Errorf("rank %d of %d: %w", r.Rank, rows, ErrSingular)
	}

	bp := make([]float64, len(b))
	floats.AddTo(bp, b, db)

	var x, xp mat.VecDense
	if err := x.SolveVec(a, mat.NewVecDense(len(b), b)); err != nil && !isCondition(err) {
		return r, err
	}
	if err := xp.SolveVec(a, mat.NewVecDense(len(bp), bp)); err != nil && !isCondition(err) {
		return r, err
	}
	r.X, r.XPerturbed = x.RawVector().Data, xp.RawVector().Data

	r.RelInput = floats.Norm(db, 2) / floats.Norm(b, 2)
	r.RelOutput = floats.Distance(r.XPerturbed, r.X, 2) / floats.Norm(r.X, 2)
	r.Amplification = r.RelOutput / r.RelInput
	return r, nil
}

func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}

// Numerical rank from the singular values, with the usual tolerance max(m,n)*eps*s_max
func rank(a mat.Matrix) int {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	s := svd.Values(nil)
	if len(s) == 0 {
		return 0
	}
	rows, cols := a.Dims()
	tol := float64(max(rows, cols)) * s[0] * epsilon
	n := 0
	for _, v := range s {
		if v > tol {
			n++
		}
	}
	return n
}

// The classic nearly singular system: two almost parallel lines. Changing b by 0.1%
// moves the solution from (1,1) to (0,2)
func NearlySingularExample() (a *mat.Dense, b, db []float64) {
	a = mat.NewDense(2, 2, []float64{
		1, 1,
		1, 1.001,
	})
	return a, []float64{2, 2.001}, []float64{0, 0.001}
}

// A singular system with infinitely many solutions
func SingularExample() (a *mat.Dense, b, db []float64) {
	a = mat.NewDense(2, 2, []float64{
		1, 2,
		2, 4,
	})
	return a, []float64{3, 6}, []float64{0, 0.001}
}

// Ratio of largest to smallest kernel spectrum magnitude, the condition number of
// circular convolution with kernel. Infinite if the spectrum has zeros
func KernelConditioning(kernel *plane.Plane) (cond, minMag, maxMag float64) {
	mags := spectral.NewOperator(kernel).Magnitudes()
	minMag, maxMag = floats.Min(mags), floats.Max(mags)
	if minMag == 0 {
		return math.Inf(1), minMag, maxMag
	}
	return maxMag / minMag, minMag, maxMag
}
