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

// Package deconv provides the deconvolution operators of the processing pipeline
package deconv

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/psf"
)

// Loads the point spread function from file into the context. Passes its inputs through
type OpPSFLoad struct {
	ops.OpBase
	FileName  string `json:"fileName"`
	Normalize bool   `json:"normalize"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPSFLoadDefault() }) } // register the operator for JSON decoding

func NewOpPSFLoadDefault() *OpPSFLoad { return NewOpPSFLoad("", true) }

func NewOpPSFLoad(fileName string, normalize bool) *OpPSFLoad {
	return &OpPSFLoad{
		OpBase:    ops.OpBase{Type: "psfLoad", Active: fileName != ""},
		FileName:  fileName,
		Normalize: normalize,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpPSFLoad) UnmarshalJSON(data []byte) error {
	type defaults OpPSFLoad
	def := defaults(*NewOpPSFLoadDefault())
	def.Active = true
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpPSFLoad(def)
	return nil
}

func (op *OpPSFLoad) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	if err := ops.CheckPath(op.FileName); err != nil {
		return nil, err
	}
	k, err := ops.LoadPlane(op.FileName, -1, c.Log)
	if err != nil {
		return nil, err
	}
	if op.Normalize {
		psf.Normalize(k)
	}
	fmt.Fprintf(c.Log, "Loaded %dx%d PSF with sum %.6g from %s\n", k.Width, k.Height, k.Sum(), op.FileName)
	c.PSF, c.PSFSigma = k, 0
	return ins, nil
}

// Selects a gaussian point spread function matching the size of each image. Passes its inputs through
type OpPSFGaussian struct {
	ops.OpBase
	Sigma float64 `json:"sigma"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPSFGaussianDefault() }) } // register the operator for JSON decoding

func NewOpPSFGaussianDefault() *OpPSFGaussian { return NewOpPSFGaussian(2) }

func NewOpPSFGaussian(sigma float64) *OpPSFGaussian {
	return &OpPSFGaussian{
		OpBase: ops.OpBase{Type: "psfGaussian", Active: sigma > 0},
		Sigma:  sigma,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpPSFGaussian) UnmarshalJSON(data []byte) error {
	type defaults OpPSFGaussian
	def := defaults(*NewOpPSFGaussianDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpPSFGaussian(def)
	return nil
}

func (op *OpPSFGaussian) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	if op.Sigma <= 0 {
		return nil, fmt.Errorf("%s operator with invalid sigma %g", op.Type, op.Sigma)
	}
	fmt.Fprintf(c.Log, "Using gaussian PSF with sigma %.4g, FWHM %.4g pixels\n", op.Sigma, psf.FWHM(op.Sigma))
	c.PSF, c.PSFSigma = nil, op.Sigma
	return ins, nil
}

// Loads the ground truth for error metrics into the context. Passes its inputs through
type OpTruth struct {
	ops.OpBase
	FileName string `json:"fileName"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpTruthDefault() }) } // register the operator for JSON decoding

func NewOpTruthDefault() *OpTruth { return NewOpTruth("") }

func NewOpTruth(fileName string) *OpTruth {
	return &OpTruth{
		OpBase:   ops.OpBase{Type: "truth", Active: fileName != ""},
		FileName: fileName,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpTruth) UnmarshalJSON(data []byte) error {
	type defaults OpTruth
	def := defaults(*NewOpTruthDefault())
	def.Active = true
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpTruth(def)
	return nil
}

func (op *OpTruth) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	if err := ops.CheckPath(op.FileName); err != nil {
		return nil, err
	}
	t, err := ops.LoadPlane(op.FileName, -2, c.Log)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "Loaded %dx%d ground truth from %s\n", t.Width, t.Height, op.FileName)
	c.Truth = t
	return ins, nil
}

// Wraps the result plane into an image carrying over the identity and header of the source
func toImage(src *fits.Image, p *plane.Plane) *fits.Image {
	res := fits.NewImageFromPlane(p)
	res.ID, res.FileName = src.ID, src.FileName
	res.Header = src.Header
	res.Header.History = append([]string(nil), src.Header.History...)
	return res
}

// Applies an operator with the PSF bound when its promises were made
type kernelApply func(f *fits.Image, c *ops.Context, src ops.PSFSource) (*fits.Image, error)

// Like OpUnaryBase.MakePromises, but binds the PSF selected by the preceding steps of the sequence.
// Promises materialize only after the whole sequence is built, when a later PSF step may have replaced it
func makeKernelPromises(typ string, ins []ops.Promise, c *ops.Context, apply kernelApply) (outs []ops.Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator with %d inputs", typ, len(ins))
	}
	src := c.PSFSource()
	outs = make([]ops.Promise, len(ins))
	for i, in := range ins {
		outs[i] = func() (*fits.Image, error) {
			f, err := in()
			if err != nil {
				return nil, err
			}
			return apply(f, c, src)
		}
	}
	return outs, nil
}
