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
	"testing"

	"github.com/mlnoga/deconv/internal/plane"
)

func TestStats(t *testing.T) {
	s := NewStats([]float32{1, 2, 3, 4}, 2)
	if s.Min() != 1 || s.Max() != 4 || s.Mean() != 2.5 {
		t.Errorf("got %s; want min 1 max 4 mean 2.5", s)
	}
	if math.Abs(float64(s.StdDev())-math.Sqrt(1.25)) > 1e-6 {
		t.Errorf("stddev=%f; want %f", s.StdDev(), math.Sqrt(1.25))
	}
}

func TestNMSE(t *testing.T) {
	truth, _ := plane.NewFromData(2, 2, []float64{1, 0, 0, 1})
	est, _ := plane.NewFromData(2, 2, []float64{1, 0, 0, 0})
	got, err := NMSE(est, truth)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("nmse=%f; want 0.5", got)
	}
	if snr, _ := SNR(est, truth); math.Abs(snr-10*math.Log10(2)) > 1e-9 {
		t.Errorf("snr=%f; want %f", snr, 10*math.Log10(2))
	}
	if _, err := NMSE(est, plane.New(3, 3)); err == nil {
		t.Errorf("no error for shape mismatch")
	}
}

type percentileTestCase struct {
	Fraction, Want float64
}

func TestPercentile(t *testing.T) {
	data := make([]float64, 1000)
	for i := range data {
		data[i] = float64(i) / 999
	}
	tcs := []percentileTestCase{{0, 0}, {0.5, 0.5}, {0.99, 0.99}, {1, 1}}
	for _, tc := range tcs {
		got := Percentile(data, tc.Fraction, 1000)
		if math.Abs(got-tc.Want) > 0.005 {
			t.Errorf("fraction=%f: got %f; want %f", tc.Fraction, got, tc.Want)
		}
	}
}

func TestHistogramMode(t *testing.T) {
	bins := make([]int32, 100)
	for i := range bins {
		x := (float64(i) + 0.5) / 100
		bins[i] = int32(1000 * math.Exp(-0.5*(x-0.3)*(x-0.3)/(0.05*0.05)))
	}
	mode, stdDev, err := GetModeStdDevFromHistogram(bins, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mode-0.3) > 0.01 || math.Abs(stdDev-0.05) > 0.01 {
		t.Errorf("mode=%f stddev=%f; want 0.3, 0.05", mode, stdDev)
	}
}
