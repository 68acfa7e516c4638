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

package deconv

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/render"
	"github.com/mlnoga/deconv/internal/sparse"
	"github.com/mlnoga/deconv/internal/spectral"
	"github.com/mlnoga/deconv/internal/stats"
)

// Naive spectral deconvolution. Takes one input, produces one output.
// Noise at frequencies where the PSF spectrum is small is amplified without bound
type OpNaive struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNaiveDefault() }) } // register the operator for JSON decoding

func NewOpNaiveDefault() *OpNaive { return NewOpNaive(true) }

func NewOpNaive(active bool) *OpNaive {
	op := OpNaive{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "naive", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpNaive) UnmarshalJSON(data []byte) error {
	type defaults OpNaive
	def := defaults(*NewOpNaiveDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpNaive(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpNaive) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	return makeKernelPromises(op.Type, ins, c, op.applyWith)
}

func (op *OpNaive) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	return op.applyWith(f, c, c.PSFSource())
}

func (op *OpNaive) applyWith(f *fits.Image, c *ops.Context, src ops.PSFSource) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	p, err := f.ToPlane()
	if err != nil {
		return nil, err
	}
	k, err := c.KernelFrom(src, p.Width, p.Height)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	h := spectral.NewOperator(k)
	mags := h.Magnitudes()
	minMag := math.Inf(1)
	for _, m := range mags {
		minMag = math.Min(minMag, m)
	}
	fmt.Fprintf(c.Log, "%d: Naive deconvolution with %v, smallest frequency magnitude %.3g\n", f.ID, src, minMag)

	restored, err := h.Invert(p)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if restored.HasNonFinite() {
		fmt.Fprintf(c.Log, "%d: Warning: result contains infinite or undefined values\n", f.ID)
	}
	logTruthError(c, f.ID, restored)

	res := toImage(f, restored)
	res.Header.AddHistory("naive spectral deconvolution")
	return res, nil
}

// Reports the error against the ground truth, if one is known
func logTruthError(c *ops.Context, id int, estimate *plane.Plane) {
	if c.Truth == nil || !c.Truth.SameShape(estimate) {
		return
	}
	nmse, _ := stats.NMSE(estimate, c.Truth)
	snr, _ := stats.SNR(estimate, c.Truth)
	fmt.Fprintf(c.Log, "%d: NMSE vs truth %.4g, SNR %.2f dB\n", id, nmse, snr)
}

// Sparsity regularized deconvolution with Forward-Backward splitting. Takes one input, produces one output
type OpForwardBackward struct {
	ops.OpUnaryBase
	sparse.Options
	AutoGamma  bool   `json:"autoGamma"`  // use gamma=1/L from the PSF spectrum, ignoring Gamma
	FirstGuess string `json:"firstGuess"` // "zero" or "observation"
	CostPlot   string `json:"costPlot"`   // file name pattern for a cost trace plot, %d is replaced by the image ID
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpForwardBackwardDefault() }) } // register the operator for JSON decoding

func NewOpForwardBackwardDefault() *OpForwardBackward {
	return NewOpForwardBackward(sparse.DefaultOptions(), false, "zero", "")
}

func NewOpForwardBackward(opts sparse.Options, autoGamma bool, firstGuess, costPlot string) *OpForwardBackward {
	op := OpForwardBackward{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "fb", Active: true}},
		Options:     opts,
		AutoGamma:   autoGamma,
		FirstGuess:  firstGuess,
		CostPlot:    costPlot,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpForwardBackward) UnmarshalJSON(data []byte) error {
	type defaults OpForwardBackward
	def := defaults(*NewOpForwardBackwardDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpForwardBackward(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpForwardBackward) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	return makeKernelPromises(op.Type, ins, c, op.applyWith)
}

func (op *OpForwardBackward) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	return op.applyWith(f, c, c.PSFSource())
}

func (op *OpForwardBackward) applyWith(f *fits.Image, c *ops.Context, src ops.PSFSource) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	y, err := f.ToPlane()
	if err != nil {
		return nil, err
	}
	k, err := c.KernelFrom(src, y.Width, y.Height)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	c.CheckMemory(f.ID, y.Width, y.Height)

	var first *plane.Plane
	switch op.FirstGuess {
	case "", "zero":
		first = plane.New(y.Width, y.Height)
	case "observation":
		first = y
	default:
		return nil, fmt.Errorf("%d: unknown first guess %q", f.ID, op.FirstGuess)
	}

	opts := op.Options
	opts.ReturnCost = opts.ReturnCost || op.CostPlot != ""
	if op.AutoGamma {
		l := sparse.LipschitzConstant(k)
		if l <= 0 {
			return nil, fmt.Errorf("%d: PSF has zero spectrum", f.ID)
		}
		opts.Gamma = 1 / l
	}
	fmt.Fprintf(c.Log, "%d: Forward-Backward with %v, lambda %.4g, gamma %.4g, %d iterations\n", f.ID, src, opts.Lambda, opts.Gamma, opts.NIter)

	res, err := sparse.ForwardBackward(y, first, k, sparse.NewConvolutionGradient(), opts)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if c.OnSolve != nil {
		c.OnSolve(res.Iterations)
	}
	logCostTrace(c.Log, f.ID, res.Cost)
	logTruthError(c, f.ID, res.Estimate)

	if op.CostPlot != "" && len(res.Cost) > 0 {
		fileName := ops.ExpandPattern(op.CostPlot, f.ID)
		if err := ops.CheckPath(fileName); err != nil {
			return nil, err
		}
		title := fmt.Sprintf("Forward-Backward, lambda=%g gamma=%g", opts.Lambda, opts.Gamma)
		if err := render.PlotCost(res.Cost, title, fileName); err != nil {
			return nil, fmt.Errorf("%d: plotting cost to %s: %w", f.ID, fileName, err)
		}
		fmt.Fprintf(c.Log, "%d: Wrote cost plot to %s\n", f.ID, fileName)
	}

	out := toImage(f, res.Estimate)
	out.Header.AddHistory("fb lambda=%g gamma=%g nIter=%d firstGuess=%s", opts.Lambda, opts.Gamma, opts.NIter, op.FirstGuess)
	return out, nil
}

// Summarizes the cost trace: first and last value, and whether it ever increased
func logCostTrace(w io.Writer, id int, trace []float64) {
	if len(trace) == 0 {
		return
	}
	increases := 0
	for i := 1; i < len(trace); i++ {
		if trace[i] > trace[i-1] {
			increases++
		}
	}
	fmt.Fprintf(w, "%d: Cost %.6g after first and %.6g after last iteration\n", id, trace[0], trace[len(trace)-1])
	if increases > 0 {
		fmt.Fprintf(w, "%d: Warning: cost increased in %d iterations, step size may be too large\n", id, increases)
	}
}
