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

package fits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/stats"
)

var ErrNot2D = errors.New("not a two-dimensional image")

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i]
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i]
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data

	Stats *stats.Stats // Basic image statistics: min, mean, max
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
		Stats:  stats.NewStats(data, naxisn[0]),
	}
}

// Creates a single precision FITS image from a plane
func NewImageFromPlane(p *plane.Plane) *Image {
	data := make([]float32, len(p.Data))
	for i, v := range p.Data {
		data[i] = float32(v)
	}
	return NewImageFromNaxisn([]int32{int32(p.Width), int32(p.Height)}, data)
}

// Converts a two-dimensional image into a double precision plane
func (img *Image) ToPlane() (*plane.Plane, error) {
	if len(img.Naxisn) != 2 {
		return nil, fmt.Errorf("%d: %s has dimensions %s: %w", img.ID, img.FileName, img.DimensionsToString(), ErrNot2D)
	}
	p := plane.New(int(img.Naxisn[0]), int(img.Naxisn[1]))
	for i, v := range img.Data {
		p.Data[i] = float64(v)
	}
	return p, nil
}

func (img *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range img.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

// Appends a formatted HISTORY entry, e.g. to record processing settings
func (h *Header) AddHistory(format string, args ...interface{}) {
	h.History = append(h.History, fmt.Sprintf(format, args...))
}

const fitsBlockSize int = 2880  // Block size of FITS header and data units
const HeaderLineSize int = 80   // Line size of a FITS header
