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

package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/deconv/internal/plane"
)

// Basic statistics on image data. Calculated lazily on first access
type Stats struct {
	data  []float32
	width int32

	computed bool
	min      float32
	max      float32
	mean     float32
	stdDev   float32
}

// Creates statistics for the given data with the given line width. Data is not copied
func NewStats(data []float32, width int32) *Stats {
	return &Stats{data: data, width: width}
}

func (s *Stats) Min() float32    { s.compute(); return s.min }
func (s *Stats) Max() float32    { s.compute(); return s.max }
func (s *Stats) Mean() float32   { s.compute(); return s.mean }
func (s *Stats) StdDev() float32 { s.compute(); return s.stdDev }

// Pretty print basic stats to string
func (s *Stats) String() string {
	s.compute()
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g", s.min, s.max, s.mean, s.stdDev)
}

// Forgets cached values after the underlying data was modified
func (s *Stats) Invalidate() { s.computed = false }

func (s *Stats) compute() {
	if s.computed {
		return
	}
	s.computed = true
	if len(s.data) == 0 {
		s.min, s.max, s.mean, s.stdDev = 0, 0, 0, 0
		return
	}

	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	for _, v := range s.data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += float64(v)
	}
	mean := sum / float64(len(s.data))

	variance := float64(0)
	for _, v := range s.data {
		diff := float64(v) - mean
		variance += diff * diff
	}
	variance /= float64(len(s.data))

	s.min, s.max, s.mean, s.stdDev = min, max, float32(mean), float32(math.Sqrt(variance))
}

// Normalized mean squared error ||estimate-truth||^2 / ||truth||^2
func NMSE(estimate, truth *plane.Plane) (float64, error) {
	if err := plane.CheckShapes(estimate, truth); err != nil {
		return 0, err
	}
	denom := truth.Norm2Sq()
	if denom == 0 {
		return math.Inf(1), nil
	}
	return sqDist(estimate, truth) / denom, nil
}

// Signal to noise ratio of estimate against truth, in decibels
func SNR(estimate, truth *plane.Plane) (float64, error) {
	if err := plane.CheckShapes(estimate, truth); err != nil {
		return 0, err
	}
	return 10 * math.Log10(truth.Norm2Sq()/sqDist(estimate, truth)), nil
}

func sqDist(a, b *plane.Plane) float64 {
	d := floats.Distance(a.Data, b.Data, 2)
	return d * d
}
