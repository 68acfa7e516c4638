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

// Package synth creates reproducible test scenes and noise
package synth

import (
	"fmt"
	"math/rand/v2"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mlnoga/deconv/internal/plane"
)

// Creates a sparse scene of n point sources with brightness in (0,1] on a zero
// background. The same seed always yields the same scene
func StarField(width, height, n int, seed uint32) (*plane.Plane, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if n < 0 || n > width*height {
		return nil, fmt.Errorf("cannot place %d stars on %dx%d pixels", n, width, height)
	}
	rng := fastrand.RNG{}
	rng.Seed(seed)

	p := plane.New(width, height)
	for placed := 0; placed < n; {
		i := int(rng.Uint32n(uint32(len(p.Data))))
		if p.Data[i] != 0 {
			continue
		}
		// brightness with a long tail of faint stars
		b := float64(rng.Uint32n(1000)+1) / 1000
		p.Data[i] = b * b
		placed++
	}
	return p, nil
}

// Returns a copy of p with additive white gaussian noise of the given standard deviation
func AddGaussianNoise(p *plane.Plane, sigma float64, seed uint64) *plane.Plane {
	res := p.Clone()
	if sigma <= 0 {
		return res
	}
	n := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.New(rand.NewPCG(seed, seed+1))}
	for i := range res.Data {
		res.Data[i] += n.Rand()
	}
	return res
}
