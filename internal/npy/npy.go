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

// Package npy loads two-dimensional NumPy arrays from .npy files and .npz archives
package npy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sbinet/npyio/npy"
	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/deconv/internal/plane"
)

var ErrNotFound = errors.New("array not found")

// Reads all arrays in a .npy file or .npz archive. Archive members are keyed by their
// name without the .npy suffix; a single .npy file is keyed by its base name
func ReadFile(fileName string) (map[string]*plane.Plane, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".npz") {
		return readArchive(fileName)
	}

	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	key := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	return map[string]*plane.Plane{key: p}, nil
}

// Loads a single array. Selectors of the form archive.npz:member pick one member of
// an archive; other names are read as .npy files
func Lookup(selector string) (*plane.Plane, error) {
	fileName, member := selector, ""
	if i := strings.LastIndex(selector, ".npz:"); i >= 0 {
		fileName, member = selector[:i+4], selector[i+5:]
	}
	arrays, err := ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	if member == "" {
		if len(arrays) != 1 {
			return nil, fmt.Errorf("%s holds %d arrays %v, select one with %s:name", fileName, len(arrays), Names(arrays), fileName)
		}
		for _, p := range arrays {
			return p, nil
		}
	}
	p, ok := arrays[member]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w, have %v", fileName, member, ErrNotFound, Names(arrays))
	}
	return p, nil
}

// Returns the sorted array names
func Names(arrays map[string]*plane.Plane) []string {
	names := make([]string, 0, len(arrays))
	for n := range arrays {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func readArchive(fileName string) (map[string]*plane.Plane, error) {
	z, err := npz.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer z.Close()

	keys := z.Keys()
	arrays := make(map[string]*plane.Plane, len(keys))
	for _, key := range keys {
		name := strings.TrimSuffix(key, ".npy")
		hdr := z.Header(key)
		if hdr == nil {
			return nil, fmt.Errorf("%s:%s: %w", fileName, name, ErrNotFound)
		}
		p, err := decode(hdr, func(ptr any) error { return z.Read(key, ptr) })
		if err != nil {
			return nil, fmt.Errorf("%s:%s: %w", fileName, name, err)
		}
		arrays[name] = p
	}
	return arrays, nil
}

// Decodes one two-dimensional array in .npy format. Rows map to image lines
func Read(r io.Reader) (*plane.Plane, error) {
	nr, err := npy.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decode(&nr.Header, nr.Read)
}

// Converts the array described by the header into a plane, reading its payload with read
func decode(hdr *npy.Header, read func(ptr any) error) (*plane.Plane, error) {
	shape := hdr.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("array has shape %v, want two dimensions", shape)
	}
	height, width := shape[0], shape[1]

	data, err := readFloats(hdr.Descr.Type, read)
	if err != nil {
		return nil, err
	}
	if hdr.Descr.Fortran {
		data = transpose(data, height, width)
	}
	return plane.NewFromData(width, height, data)
}

// Reads the payload as float64, converting from the stored element type
func readFloats(dtype string, read func(ptr any) error) ([]float64, error) {
	switch strings.TrimLeft(dtype, "<>|=") {
	case "f8":
		var data []float64
		err := read(&data)
		return data, err
	case "f4":
		return readWiden[float32](read)
	case "i8":
		return readWiden[int64](read)
	case "i4":
		return readWiden[int32](read)
	case "u2":
		return readWiden[uint16](read)
	case "u1":
		return readWiden[uint8](read)
	default:
		return nil, fmt.Errorf("unsupported element type %q", dtype)
	}
}

func readWiden[T float32 | int64 | int32 | uint16 | uint8](read func(ptr any) error) ([]float64, error) {
	var src []T
	if err := read(&src); err != nil {
		return nil, err
	}
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst, nil
}

// Converts column-major data with the given row and column count to row-major order
func transpose(data []float64, rows, cols int) []float64 {
	res := make([]float64, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			res[r*cols+c] = data[c*rows+r]
		}
	}
	return res
}

// Writes a plane as a two-dimensional float64 .npy file
func WriteFile(fileName string, p *plane.Plane) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := npy.Write(f, mat.NewDense(p.Height, p.Width, p.Data)); err != nil {
		return err
	}
	return f.Close()
}
