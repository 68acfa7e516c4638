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

package render

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

const colormapSize = 256

// A lookup table mapping values in [0,1] to colors
type Colormap struct {
	Name  string
	table [colormapSize]color.RGBA
}

// Returns the color for v in [0,1]. Values outside are clamped, NaNs map to the lowest color
func (c *Colormap) At(v float64) color.RGBA {
	if !(v > 0) {
		return c.table[0]
	}
	if v >= 1 {
		return c.table[colormapSize-1]
	}
	return c.table[int(v*(colormapSize-1)+0.5)]
}

// Anchor colors of the gradients, evenly spaced over [0,1]
var colormapAnchors = map[string][]string{
	"gray":    {"#000000", "#ffffff"},
	"viridis": {"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"},
	"magma":   {"#000004", "#3b0f70", "#8c2981", "#de4968", "#fe9f6d", "#fcfdbf"},
	"seismic": {"#00004c", "#0000ff", "#ffffff", "#ff0000", "#7f0000"},
}

var colormaps = map[string]*Colormap{}

func init() {
	for name, anchors := range colormapAnchors {
		colormaps[name] = newColormap(name, anchors)
	}
}

// Builds a gradient table, blending neighbouring anchors in CIE-L*C*h space
func newColormap(name string, anchors []string) *Colormap {
	cols := make([]colorful.Color, len(anchors))
	for i, a := range anchors {
		cols[i] = mustParseHex(a)
	}
	c := &Colormap{Name: name}
	segments := float64(len(cols) - 1)
	for i := range c.table {
		pos := float64(i) / (colormapSize - 1) * segments
		seg := int(pos)
		if seg >= len(cols)-1 {
			seg = len(cols) - 2
		}
		t := pos - float64(seg)
		var blended colorful.Color
		if name == "gray" {
			// linear ramp in sRGB keeps gray neutral
			blended = cols[seg].BlendRgb(cols[seg+1], t)
		} else {
			blended = cols[seg].BlendHcl(cols[seg+1], t).Clamped()
		}
		r, g, b := blended.RGB255()
		c.table[i] = color.RGBA{r, g, b, 255}
	}
	return c
}

func mustParseHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Looks up a colormap by name
func GetColormap(name string) (*Colormap, error) {
	if name == "" {
		name = "gray"
	}
	c, ok := colormaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q, have %v", name, ColormapNames())
	}
	return c, nil
}

func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for n := range colormaps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
