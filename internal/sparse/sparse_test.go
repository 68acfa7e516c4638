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
	"errors"
	"math"
	"testing"

	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/psf"
	"github.com/mlnoga/deconv/internal/spectral"
)

type softThresholdTestCase struct {
	V, Lambda, Want float64
}

func TestSoftThresholdValue(t *testing.T) {
	tcs := []softThresholdTestCase{
		{3, 1, 2},
		{-3, 1, -2},
		{0.5, 1, 0},
		{-0.5, 1, 0},
		{1, 1, 0},
		{-1, 1, 0},
		{2.5, 0, 2.5},
		{-2.5, 0, -2.5},
	}
	for _, tc := range tcs {
		got := SoftThresholdValue(tc.V, tc.Lambda)
		if got != tc.Want {
			t.Errorf("v=%f lambda=%f: got %f; want %f", tc.V, tc.Lambda, got, tc.Want)
		}
	}
}

func TestSoftThresholdProperties(t *testing.T) {
	lambdas := []float64{0, 0.1, 1, 10}
	for _, lambda := range lambdas {
		for v := -20.0; v <= 20.0; v += 0.37 {
			got := SoftThresholdValue(v, lambda)
			if math.Abs(got) > math.Abs(v) {
				t.Errorf("v=%f lambda=%f: |%f| exceeds |v|", v, lambda, got)
			}
			if got != 0 && math.Signbit(got) != math.Signbit(v) {
				t.Errorf("v=%f lambda=%f: sign of %f differs", v, lambda, got)
			}
			if math.Abs(v) <= lambda && got != 0 {
				t.Errorf("v=%f lambda=%f: got %f; want 0", v, lambda, got)
			}
		}
	}
}

func TestSoftThresholdNaN(t *testing.T) {
	for _, lambda := range []float64{0, 0.1, 1} {
		if got := SoftThresholdValue(math.NaN(), lambda); !math.IsNaN(got) {
			t.Errorf("lambda=%f: got %f; want NaN", lambda, got)
		}
	}
	for _, v := range []float64{math.Inf(1), math.Inf(-1)} {
		if got := SoftThresholdValue(v, 1); got != v {
			t.Errorf("v=%f: got %f; want %f", v, got, v)
		}
	}
}

func TestSoftThresholdMonotone(t *testing.T) {
	for _, lambda := range []float64{0, 0.05, 0.5, 3} {
		prev := math.Inf(-1)
		for v := -10.0; v <= 10.0; v += 0.013 {
			got := SoftThresholdValue(v, lambda)
			if got < prev {
				t.Errorf("v=%f lambda=%f: got %f below %f at smaller v", v, lambda, got, prev)
			}
			prev = got
		}
	}
}

func TestSoftThresholdZeroLambdaIsIdentity(t *testing.T) {
	vs := []float64{0, 1e-300, -1e-300, 1e-9, -1e-9, 0.5, -0.5, 1, -1, 123.456, -123.456, 1e300, -1e300}
	for v := -50.0; v <= 50.0; v += 0.77 {
		vs = append(vs, v)
	}
	for _, v := range vs {
		if got := SoftThresholdValue(v, 0); got != v {
			t.Errorf("v=%g: got %g; want %g", v, got, v)
		}
	}
}

func TestSoftThresholdPlane(t *testing.T) {
	x := plane.New(3, 2)
	copy(x.Data, []float64{3, -3, 0.5, -0.5, 1, -2})
	want := []float64{2, -2, 0, 0, 0, -1}

	res := SoftThreshold(x, 1)
	if res == x || res.Width != 3 || res.Height != 2 {
		t.Fatalf("got %dx%d plane, aliased=%v; want new 3x2 plane", res.Width, res.Height, res == x)
	}
	for i, v := range res.Data {
		if v != want[i] {
			t.Errorf("res[%d]=%f; want %f", i, v, want[i])
		}
	}
	if x.Data[0] != 3 || x.Data[5] != -2 {
		t.Errorf("input modified: %v", x.Data)
	}

	SoftThresholdSlice(x.Data, x.Data, 1)
	for i, v := range x.Data {
		if v != want[i] {
			t.Errorf("in place x[%d]=%f; want %f", i, v, want[i])
		}
	}
}

// Sparse test scene of a few point sources on a dark background
func starScene(w, h int) *plane.Plane {
	p := plane.New(w, h)
	p.Set(3, 4, 1.0)
	p.Set(10, 6, 0.7)
	p.Set(7, 12, 0.4)
	return p
}

func blurredScene(t *testing.T, w, h int, sigma float64) (truth, kernel, observed *plane.Plane) {
	truth = starScene(w, h)
	kernel, err := psf.MakeGaussian(w, h, sigma)
	if err != nil {
		t.Fatal(err)
	}
	observed, err = spectral.Convolve(truth, kernel)
	if err != nil {
		t.Fatal(err)
	}
	return truth, kernel, observed
}

func TestForwardBackwardCostDoesNotIncrease(t *testing.T) {
	_, kernel, observed := blurredScene(t, 16, 16, 2)
	opts := Options{Lambda: 0.01, NIter: 50, Gamma: 1, ReturnCost: true}
	res, err := ForwardBackward(observed, plane.New(16, 16), kernel, NewConvolutionGradient(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Cost) != opts.NIter {
		t.Fatalf("len(cost)=%d; want %d", len(res.Cost), opts.NIter)
	}
	for i := 1; i < len(res.Cost); i++ {
		if res.Cost[i] > res.Cost[i-1]+1e-12 {
			t.Errorf("cost[%d]=%g > cost[%d]=%g", i, res.Cost[i], i-1, res.Cost[i-1])
		}
	}
	initial, _ := Cost(observed, plane.New(16, 16), kernel, opts.Lambda)
	if res.Cost[len(res.Cost)-1] >= initial {
		t.Errorf("final cost %g not below initial cost %g", res.Cost[len(res.Cost)-1], initial)
	}
}

func TestForwardBackwardZeroIterations(t *testing.T) {
	_, kernel, observed := blurredScene(t, 16, 16, 1.5)
	first := starScene(16, 16)
	first.Set(0, 0, -3)
	res, err := ForwardBackward(observed, first, kernel, NewConvolutionGradient(), Options{Lambda: 5, NIter: 0, Gamma: 1, ReturnCost: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Cost) != 0 {
		t.Errorf("len(cost)=%d; want 0", len(res.Cost))
	}
	for i, v := range res.Estimate.Data {
		if v != first.Data[i] {
			t.Errorf("estimate[%d]=%f; want %f", i, v, first.Data[i])
		}
	}
	if res.Estimate == first {
		t.Errorf("estimate aliases the first guess")
	}
}

func TestForwardBackwardWithoutRegularizationIsGradientStep(t *testing.T) {
	_, kernel, observed := blurredScene(t, 16, 16, 1.5)
	first := plane.New(16, 16)
	for i := range first.Data {
		first.Data[i] = 0.01 * float64(i%7)
	}
	gamma := 0.8
	grad := NewConvolutionGradient()
	g, err := grad.Gradient(observed, first, kernel)
	if err != nil {
		t.Fatal(err)
	}
	res, err := ForwardBackward(observed, first, kernel, grad, Options{Lambda: 0, NIter: 1, Gamma: gamma})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.Estimate.Data {
		want := first.Data[i] - float64(gamma*g.Data[i])
		if v != want {
			t.Errorf("estimate[%d]=%g; want %g", i, v, want)
		}
	}
	if res.Cost != nil {
		t.Errorf("cost trace returned although not requested")
	}
}

func TestForwardBackwardDoesNotModifyFirstGuess(t *testing.T) {
	_, kernel, observed := blurredScene(t, 16, 16, 1)
	first := starScene(16, 16)
	orig := first.Clone()
	if _, err := ForwardBackward(observed, first, kernel, NewConvolutionGradient(), Options{Lambda: 0.01, NIter: 5, Gamma: 1}); err != nil {
		t.Fatal(err)
	}
	for i, v := range first.Data {
		if v != orig.Data[i] {
			t.Errorf("first[%d]=%f; want %f", i, v, orig.Data[i])
		}
	}
}

func TestForwardBackwardRecoversSparseScene(t *testing.T) {
	truth, kernel, observed := blurredScene(t, 16, 16, 1)
	res, err := ForwardBackward(observed, plane.New(16, 16), kernel, NewConvolutionGradient(), Options{Lambda: 0.001, NIter: 300, Gamma: 1})
	if err != nil {
		t.Fatal(err)
	}
	x, y, _ := res.Estimate.Max()
	if x != 3 || y != 4 {
		t.Errorf("brightest pixel at (%d,%d); want (3,4)", x, y)
	}
	errBlurred, _ := plane.Sub(observed, truth)
	errEstimate, _ := plane.Sub(res.Estimate, truth)
	if errEstimate.Norm2Sq() >= errBlurred.Norm2Sq() {
		t.Errorf("estimate error %g not below blurred error %g", errEstimate.Norm2Sq(), errBlurred.Norm2Sq())
	}
}

func TestForwardBackwardCustomGradient(t *testing.T) {
	calls := 0
	zero := GradientFunc(func(observation, estimate, kernel *plane.Plane) (*plane.Plane, error) {
		calls++
		return plane.New(estimate.Width, estimate.Height), nil
	})
	first := starScene(16, 16)
	res, err := ForwardBackward(first, first, first, zero, Options{NIter: 7, Gamma: 1})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 7 || res.Iterations != 7 {
		t.Errorf("calls=%d iterations=%d; want 7", calls, res.Iterations)
	}
}

func TestForwardBackwardInvalidInput(t *testing.T) {
	a, b := plane.New(4, 4), plane.New(4, 5)
	grad := NewConvolutionGradient()
	if _, err := ForwardBackward(a, a, b, grad, DefaultOptions()); !errors.Is(err, plane.ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
	bad := []Options{
		{NIter: -1, Gamma: 1},
		{NIter: 1, Gamma: 0},
		{NIter: 1, Gamma: 1, Lambda: -1},
	}
	for _, o := range bad {
		if _, err := ForwardBackward(a, a, a, grad, o); err == nil {
			t.Errorf("opts=%+v: no error", o)
		}
	}
}

func TestLipschitzConstantOfNormalizedKernel(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 2, 4} {
		kernel, err := psf.MakeGaussian(32, 32, sigma)
		if err != nil {
			t.Fatal(err)
		}
		l := LipschitzConstant(kernel)
		if math.Abs(l-1) > 1e-9 {
			t.Errorf("sigma=%f: L=%f; want 1", sigma, l)
		}
	}
}

func TestCostOfTruthIsPenaltyOnly(t *testing.T) {
	truth, kernel, observed := blurredScene(t, 16, 16, 1.5)
	lambda := 0.3
	c, err := Cost(observed, truth, kernel, lambda)
	if err != nil {
		t.Fatal(err)
	}
	want := lambda * truth.Norm1()
	if math.Abs(c-want) > 1e-9 {
		t.Errorf("cost=%g; want %g", c, want)
	}
}

func TestForwardBackwardDivergenceStaysVisible(t *testing.T) {
	_, kernel, observed := blurredScene(t, 16, 16, 1)
	res, err := ForwardBackward(observed, plane.New(16, 16), kernel, NewConvolutionGradient(), Options{Lambda: 0.001, NIter: 300, Gamma: 200, ReturnCost: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Estimate.HasNonFinite() {
		t.Errorf("estimate of diverging solve is finite")
	}
	if last := res.Cost[len(res.Cost)-1]; !math.IsNaN(last) && !math.IsInf(last, 0) {
		t.Errorf("final cost %g; want non-finite", last)
	}
}

func TestConvolutionGradientReset(t *testing.T) {
	_, kernel, observed := blurredScene(t, 16, 16, 1)
	estimate := starScene(16, 16)
	grad := NewConvolutionGradient()
	if _, err := grad.Gradient(observed, estimate, kernel); err != nil {
		t.Fatal(err)
	}

	wider, err := psf.MakeGaussian(16, 16, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	copy(kernel.Data, wider.Data)
	grad.Reset()
	got, err := grad.Gradient(observed, estimate, kernel)
	if err != nil {
		t.Fatal(err)
	}
	want, err := NewConvolutionGradient().Gradient(observed, estimate, wider)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got.Data {
		if math.Abs(v-want.Data[i]) > 1e-12 {
			t.Errorf("grad[%d]=%g; want %g", i, v, want.Data[i])
		}
	}
}
