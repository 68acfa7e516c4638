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
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/spectral"
	"github.com/mlnoga/deconv/internal/synth"
)

// Generates a synthetic star field, and makes it the ground truth. Takes zero inputs, produces one output
type OpStarField struct {
	ops.OpBase
	ID     int    `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Stars  int    `json:"stars"`
	Seed   uint32 `json:"seed"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStarFieldDefault() }) } // register the operator for JSON decoding

func NewOpStarFieldDefault() *OpStarField { return NewOpStarField(128, 128, 40, 1) }

func NewOpStarField(width, height, stars int, seed uint32) *OpStarField {
	return &OpStarField{
		OpBase: ops.OpBase{Type: "starField", Active: true},
		Width:  width,
		Height: height,
		Stars:  stars,
		Seed:   seed,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStarField) UnmarshalJSON(data []byte) error {
	type defaults OpStarField
	def := defaults(*NewOpStarFieldDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpStarField(def)
	return nil
}

func (op *OpStarField) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	p, err := synth.StarField(op.Width, op.Height, op.Stars, op.Seed)
	if err != nil {
		return nil, err
	}
	c.Truth = p
	fmt.Fprintf(c.Log, "%d: Generated %dx%d star field with %d stars from seed %d\n", op.ID, op.Width, op.Height, op.Stars, op.Seed)

	out := func() (*fits.Image, error) {
		f := fits.NewImageFromPlane(p)
		f.ID, f.FileName = op.ID, "starField"
		return f, nil
	}
	return []ops.Promise{out}, nil
}

// Simulates an observation: convolves with the PSF and adds gaussian noise. Takes one input, produces one output
type OpBlur struct {
	ops.OpUnaryBase
	Noise float64 `json:"noise"` // standard deviation of the additive noise
	Seed  uint64  `json:"seed"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBlurDefault() }) } // register the operator for JSON decoding

func NewOpBlurDefault() *OpBlur { return NewOpBlur(0, 1) }

func NewOpBlur(noise float64, seed uint64) *OpBlur {
	op := OpBlur{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "blur", Active: true}},
		Noise:       noise,
		Seed:        seed,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBlur) UnmarshalJSON(data []byte) error {
	type defaults OpBlur
	def := defaults(*NewOpBlurDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpBlur(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpBlur) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	return makeKernelPromises(op.Type, ins, c, op.applyWith)
}

func (op *OpBlur) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	return op.applyWith(f, c, c.PSFSource())
}

func (op *OpBlur) applyWith(f *fits.Image, c *ops.Context, src ops.PSFSource) (result *fits.Image, err error) {
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
	blurred, err := spectral.Convolve(p, k)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	blurred = synth.AddGaussianNoise(blurred, op.Noise, op.Seed+uint64(f.ID))

	fmt.Fprintf(c.Log, "%d: Blurred with %v and added noise with sigma %.4g\n", f.ID, src, op.Noise)
	res := toImage(f, blurred)
	res.Header.AddHistory("blur noise=%g seed=%d", op.Noise, op.Seed)
	return res, nil
}
