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

package sparse

import (
	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/spectral"
)

// Objective of the sparse deconvolution problem, 0.5*||y - H(alpha)||^2 + lambda*||alpha||_1,
// with H the convolution with kernel
func Cost(y, alpha, kernel *plane.Plane, lambda float64) (float64, error) {
	if err := plane.CheckShapes(y, alpha, kernel); err != nil {
		return 0, err
	}
	return costWith(spectral.NewOperator(kernel), y, alpha, lambda)
}

func costWith(h *spectral.Operator, y, alpha *plane.Plane, lambda float64) (float64, error) {
	blurred, err := h.Apply(alpha)
	if err != nil {
		return 0, err
	}
	residual, err := plane.Sub(y, blurred)
	if err != nil {
		return 0, err
	}
	return 0.5*residual.Norm2Sq() + lambda*alpha.Norm1(), nil
}
