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
	"errors"
	"fmt"

	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/render"
)

// Renders the image with a colormap and title to PNG or JPEG. Takes one input, produces one output (unchanged)
type OpRender struct {
	ops.OpUnaryBase
	render.Options
	FilePattern string `json:"filePattern"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRenderDefault() }) } // register the operator for JSON decoding

func NewOpRenderDefault() *OpRender { return NewOpRender("", render.DefaultOptions()) }

func NewOpRender(filePattern string, opts render.Options) *OpRender {
	op := OpRender{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "render", Active: filePattern != ""}},
		Options:     opts,
		FilePattern: filePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRender) UnmarshalJSON(data []byte) error {
	type defaults OpRender
	def := defaults(*NewOpRenderDefault())
	def.Active = true
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpRender(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpRender) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	p, err := f.ToPlane()
	if err != nil {
		return nil, err
	}
	fileName := ops.ExpandPattern(op.FilePattern, f.ID)
	if err := ops.CheckPath(fileName); err != nil {
		return nil, err
	}
	opts := op.Options
	opts.Title = ops.ExpandPattern(opts.Title, f.ID)
	min, max := opts.Range(p)
	fmt.Fprintf(c.Log, "%d: Rendering with %s colormap in [%.4g,%.4g] to %s\n", f.ID, opts.Colormap, min, max, fileName)
	opts.Min, opts.Max = min, max
	if err := render.RenderToFile(fileName, p, opts); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	return f, nil
}

// Normalizes the image range to [0, 1]. Takes one input, produces one output
type OpNormalizeRange struct {
	ops.OpUnaryBase
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpNormalizeRangeDefault() }) } // register the operator for JSON decoding

func NewOpNormalizeRangeDefault() *OpNormalizeRange { return NewOpNormalizeRange(true) }

func NewOpNormalizeRange(active bool) *OpNormalizeRange {
	op := OpNormalizeRange{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "normRange", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpNormalizeRange) UnmarshalJSON(data []byte) error {
	type defaults OpNormalizeRange
	def := defaults(*NewOpNormalizeRangeDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpNormalizeRange(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

func (op *OpNormalizeRange) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if !op.Active {
		return f, nil
	}
	if f.Stats == nil {
		return nil, errors.New("missing stats")
	}

	min, max := f.Stats.Min(), f.Stats.Max()
	if max-min < 1e-8 {
		fmt.Fprintf(c.Log, "%d: Warning: Image is of uniform intensity %.4g, skipping normalization\n", f.ID, min)
		return f, nil
	}
	fmt.Fprintf(c.Log, "%d: Normalizing from [%.4g,%.4g] to [0,1]\n", f.ID, min, max)
	scale := 1 / (max - min)
	for i, v := range f.Data {
		f.Data[i] = (v - min) * scale
	}
	f.Stats.Invalidate()
	return f, nil
}
