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
	"bufio"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"

	"github.com/mlnoga/deconv/internal/stats"
)

// Write a grayscale FITS image to 16-bit TIFF, using the given min, max and gamma.
func (img *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32) error {
	// convert pixels into Golang Image
	width, height := int(img.Naxisn[0]), int(img.Naxisn[1])
	img := image.NewGray16(image.Rect(0, 0, width, height))
	scale := float32(0)
	if max > min {
		scale = 1 / (max - min)
	}
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := (img.Data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray*65535 + 0.5)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Read a TIFF image into a single channel FITS image with values in [0,65535].
// Color images are converted to their luminance
func (img *Image) ReadTIFF(r io.Reader) error {
	t, err := tiff.Decode(bufio.NewReader(r))
	if err != nil {
		return err
	}

	bounds := t.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	img.Bitpix = -32
	img.Naxisn = []int32{int32(width), int32(height)}
	img.Pixels = int32(width) * int32(height)
	img.Bzero, img.Bscale = 0, 1
	img.Data = make([]float32, img.Pixels)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.Gray16Model.Convert(t.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			img.Data[y*width+x] = float32(c.Y)
		}
	}
	img.Stats = stats.NewStats(img.Data, img.Naxisn[0])
	return nil
}
