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

// Package median removes impulse noise such as hot pixels with a 3x3 median filter
package median

import "github.com/mlnoga/deconv/internal/plane"

// Applies a 3x3 median filter to the plane and returns the result as a new plane.
// Copies over the outermost rows and columns unchanged
func Filter3x3(p *plane.Plane) *plane.Plane {
	res := p.Clone()
	if p.Width < 3 || p.Height < 3 {
		return res
	}
	var gathered [9]float64
	w := p.Width
	for y := 1; y < p.Height-1; y++ {
		for x := 1; x < w-1; x++ {
			j := 0
			for dy := -1; dy <= 1; dy++ {
				row := (y + dy) * w
				for dx := -1; dx <= 1; dx++ {
					gathered[j] = p.Data[row+x+dx]
					j++
				}
			}
			res.Data[y*w+x] = Median9(&gathered)
		}
	}
	return res
}

// Calculates the median of nine values with an optimal sorting network of 19 min/max
// operations, see http://ndevilla.free.fr/median/median/src/optmed.c.
// Modifies the elements in place. Must not contain NaN
func Median9(a *[9]float64) float64 {
	sort2 := func(i, j int) {
		if a[i] > a[j] {
			a[i], a[j] = a[j], a[i]
		}
	}
	max2 := func(i, j int) { // a[j] = max(a[i], a[j])
		if a[i] > a[j] {
			a[j] = a[i]
		}
	}
	min2 := func(i, j int) { // a[i] = min(a[i], a[j])
		if a[i] > a[j] {
			a[i] = a[j]
		}
	}

	sort2(0, 1)
	sort2(3, 4)
	sort2(6, 7)
	sort2(1, 2)
	sort2(4, 5)
	sort2(7, 8)
	sort2(0, 1)
	sort2(3, 4)
	sort2(6, 7)
	max2(0, 3)
	max2(3, 6)
	sort2(1, 4)
	min2(4, 7)
	max2(1, 4)
	min2(5, 8)
	min2(2, 5)
	sort2(2, 4)
	min2(4, 6)
	max2(2, 4)
	return a[4]
}
