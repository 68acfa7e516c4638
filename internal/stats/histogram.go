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
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins.
// Values outside [min,max] and NaNs are not counted
func Histogram(data []float64, min, max float64, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min || len(bins) == 0 {
		return
	}
	scale := float64(len(bins)) / (max - min)
	last := len(bins) - 1
	for _, d := range data {
		if !(d >= min && d <= max) {
			continue
		}
		index := int((d - min) * scale)
		if index > last {
			index = last
		}
		bins[index]++
	}
}

// Returns the value below which the given fraction of the finite data lies, estimated
// from a histogram with numBins bins between the data minimum and maximum
func Percentile(data []float64, fraction float64, numBins int) float64 {
	min, max := math.Inf(1), math.Inf(-1)
	for _, d := range data {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	if min > max {
		return 0
	}
	if min == max || fraction <= 0 {
		return min
	}
	if fraction >= 1 {
		return max
	}

	bins := make([]int32, numBins)
	Histogram(data, min, max, bins)
	total := int64(0)
	for _, b := range bins {
		total += int64(b)
	}

	target := fraction * float64(total)
	binWidth := (max - min) / float64(numBins)
	cum := int64(0)
	for i, b := range bins {
		if float64(cum+int64(b)) >= target {
			// interpolate linearly within the bin
			within := 0.0
			if b > 0 {
				within = (target - float64(cum)) / float64(b)
			}
			return min + (float64(i)+within)*binWidth
		}
		cum += int64(b)
	}
	return max
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float64) (x, y float64) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	x = min + (float64(maxIndex)+0.5)*(max-min)/float64(len(bins))
	return x, float64(maxValue)
}

// Calculates the mode and the standard deviation of the given histogram by fitting
// a normal distribution to it. Useful to locate the background level of an image
func GetModeStdDevFromHistogram(bins []int32, min, max float64) (mode, stdDev float64, err error) {
	// Take an educated initial guess: the maximum value of the histogram
	peak, peakVal := GetPeak(bins, min, max)
	binWidth := (max - min) / float64(len(bins))

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{peakVal, peak, 5 * binWidth}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			if sigma <= 0 {
				return math.Inf(1)
			}
			sumSqDiff := 0.0
			for i, y := range bins {
				x := min + (float64(i)+0.5)*binWidth
				xmusig := (x - mu) / sigma
				diff := float64(y) - alpha*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return result.X[1], math.Abs(result.X[2]), nil
}
