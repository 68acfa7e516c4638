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

// Package render turns planes into false color images with a title, and plots cost traces
package render

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/stats"
)

// Display settings
type Options struct {
	Title    string  `json:"title"`
	Colormap string  `json:"colormap"` // gray, viridis, magma or seismic
	Min      float64 `json:"min"`      // display range. Determined from percentiles if Min==Max
	Max      float64 `json:"max"`
	Low      float64 `json:"low"`  // lower percentile for the automatic range, in [0,1]
	High     float64 `json:"high"` // upper percentile for the automatic range, in [0,1]
	Zoom     int     `json:"zoom"` // integer enlargement factor
}

func DefaultOptions() Options {
	return Options{Colormap: "gray", Low: 0.001, High: 0.999, Zoom: 1}
}

const titleHeight = 18

// Display range for p. Uses the configured range if set, else the configured percentiles.
// Diverging colormaps get a range symmetric around zero
func (o Options) Range(p *plane.Plane) (min, max float64) {
	min, max = o.Min, o.Max
	if min == max {
		min = stats.Percentile(p.Data, o.Low, 4096)
		max = stats.Percentile(p.Data, o.High, 4096)
	}
	if o.Colormap == "seismic" {
		m := math.Max(math.Abs(min), math.Abs(max))
		min, max = -m, m
	}
	return min, max
}

// Renders a plane with the given colormap and display range, with the title on a banner above
func Render(p *plane.Plane, o Options) (image.Image, error) {
	cm, err := GetColormap(o.Colormap)
	if err != nil {
		return nil, err
	}
	zoom := o.Zoom
	if zoom < 1 {
		zoom = 1
	}
	min, max := o.Range(p)
	scale := 0.0
	if max > min {
		scale = 1 / (max - min)
	}

	banner := 0
	if o.Title != "" {
		banner = titleHeight
	}
	width := p.Width * zoom
	if tw := font.MeasureString(basicfont.Face7x13, o.Title).Ceil() + 8; o.Title != "" && tw > width {
		width = tw
	}
	img := image.NewRGBA(image.Rect(0, 0, width, p.Height*zoom+banner))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := cm.At((p.At(x, y) - min) * scale)
			for zy := 0; zy < zoom; zy++ {
				for zx := 0; zx < zoom; zx++ {
					img.SetRGBA(x*zoom+zx, banner+y*zoom+zy, c)
				}
			}
		}
	}

	if o.Title != "" {
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.Black),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(4, titleHeight-5),
		}
		d.DrawString(o.Title)
	}
	return img, nil
}

// Writes an image to PNG or JPEG, depending on the file name suffix
func WriteFile(fileName string, img image.Image) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".png":
		err = png.Encode(writer, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	default:
		err = fmt.Errorf("unsupported image format %s", ext)
	}
	if err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// Renders a plane and writes it to file
func RenderToFile(fileName string, p *plane.Plane, o Options) error {
	img, err := Render(p, o)
	if err != nil {
		return err
	}
	return WriteFile(fileName, img)
}
