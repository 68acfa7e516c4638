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
	"math"

	"github.com/mlnoga/deconv/internal/plane"
)

// Soft thresholding of a single value: sign(v) * max(|v|-lambda, 0).
// This is the proximal operator of lambda*|.|. NaN is passed through, so a diverging solve stays visible
func SoftThresholdValue(v, lambda float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	if v > lambda {
		return v - lambda
	}
	if v < -lambda {
		return v + lambda
	}
	return 0
}

// Soft thresholds src elementwise into dst, which may alias src
func SoftThresholdSlice(dst, src []float64, lambda float64) {
	for i, v := range src {
		dst[i] = SoftThresholdValue(v, lambda)
	}
}

// Returns the elementwise soft threshold of x as a new plane
func SoftThreshold(x *plane.Plane, lambda float64) *plane.Plane {
	res := plane.New(x.Width, x.Height)
	SoftThresholdSlice(res.Data, x.Data, lambda)
	return res
}
