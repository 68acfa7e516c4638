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

	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/median"
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/sharpen"
)

// Removes hot pixels with a 3x3 median filter. Takes one input, produces one output
type OpMedian struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMedianDefault() }) } // register the operator for JSON decoding

func NewOpMedianDefault() *OpMedian { return NewOpMedian(true) }

func NewOpMedian(active bool) *OpMedian {
	op := OpMedian{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "median", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMedian) UnmarshalJSON(data []byte) error {
	type defaults OpMedian
	def := defaults(*NewOpMedianDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpMedian(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpMedian) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	p, err := f.ToPlane()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Applying 3x3 median filter\n", f.ID)
	res := toImage(f, median.Filter3x3(p))
	res.Header.AddHistory("median 3x3")
	return res, nil
}

// Sharpens the image by unsharp masking, a spatial baseline for deconvolution. Pixels below
// mean + threshold*stddev are left unchanged. Takes one input, produces one output
type OpUnsharpMask struct {
	ops.OpUnaryBase
	Sigma     float64 `json:"sigma"`
	Gain      float64 `json:"gain"`
	Threshold float64 `json:"threshold"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpUnsharpMaskDefault() }) } // register the operator for JSON decoding

func NewOpUnsharpMaskDefault() *OpUnsharpMask { return NewOpUnsharpMask(1.5, 0, 1.0) }

func NewOpUnsharpMask(sigma, gain, threshold float64) *OpUnsharpMask {
	op := OpUnsharpMask{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "unsharpMask", Active: gain > 0}},
		Sigma:       sigma,
		Gain:        gain,
		Threshold:   threshold,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpUnsharpMask) UnmarshalJSON(data []byte) error {
	type defaults OpUnsharpMask
	def := defaults(*NewOpUnsharpMaskDefault())
	def.Active = true
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpUnsharpMask(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpUnsharpMask) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if !op.Active || op.Gain == 0 {
		return f, nil
	}
	p, err := f.ToPlane()
	if err != nil {
		return nil, err
	}
	absThresh := float64(f.Stats.Mean()) + float64(f.Stats.StdDev())*op.Threshold
	fmt.Fprintf(c.Log, "%d: Unsharp masking with sigma %.3g gain %.3g thresh %.3g absThresh %.3g\n",
		f.ID, op.Sigma, op.Gain, op.Threshold, absThresh)
	sharp := sharpen.UnsharpMask(p, op.Sigma, op.Gain, absThresh)
	logTruthError(c, f.ID, sharp)
	res := toImage(f, sharp)
	res.Header.AddHistory("unsharpMask sigma=%g gain=%g threshold=%g", op.Sigma, op.Gain, op.Threshold)
	return res, nil
}
