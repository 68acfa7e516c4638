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
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"sort"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary. Files with .tif or .tiff suffix are written
// as 16-bit grayscale TIFF spanning the data range
func (img *Image) WriteFile(fileName string) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".tif" || lExt == ".tiff" {
		err = img.WriteMonoTIFF16(w, img.Stats.Min(), img.Stats.Max(), 1)
	} else {
		err = img.Write(w)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}

// Writes an in-memory FITS image to an io.Writer.
func (img *Image) Write(f io.Writer) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt32(&sb, "NAXIS", int32(len(img.Naxisn)), "[1] Number of axis")
	for i := 0; i < len(img.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), img.Naxisn[i], "[1] Axis size")
	}
	writeFloat32(&sb, "BZERO", 0, "[1] Zero offset")
	writeFloat32(&sb, "BSCALE", 1, "[1] Value scaler")

	for _, k := range sortedKeys(img.Header.Strings) {
		writeString(&sb, k, img.Header.Strings[k], "")
	}
	for _, k := range sortedKeys(img.Header.Floats) {
		writeFloat32(&sb, k, img.Header.Floats[k], "")
	}
	for _, k := range sortedKeys(img.Header.Ints) {
		writeInt32(&sb, k, img.Header.Ints[k], "")
	}
	for _, c := range img.Header.Comments {
		writeText(&sb, "COMMENT", c)
	}
	for _, h := range img.Header.History {
		writeText(&sb, "HISTORY", h)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	// Write header block(s)
	if _, err := io.WriteString(f, sb.String()); err != nil {
		return err
	}

	// Write payload data, replacing NaNs with zeros for compatibility
	if err := writeFloat32Array(f, img.Data, true); err != nil {
		return err
	}

	// Pad data unit to full block with zeros
	if bytesInDataBlock := (len(img.Data) * 4) % fitsBlockSize; bytesInDataBlock > 0 {
		_, err := f.Write(make([]byte, fitsBlockSize-bytesInDataBlock))
		return err
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header float32 value. Always includes a decimal point or exponent
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	s := fmt.Sprintf("%g", value)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, strings.ToUpper(s), comment)
}

// Writes a FITS header string value. Values too long for a single line are truncated
func writeString(w io.Writer, key, value, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	// escape ' characters
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
	}
	line := fmt.Sprintf("%-8s= '%-8s'", key, value)
	if comment != "" && len(line)+3 < HeaderLineSize {
		line += " / " + comment
	}
	if len(line) > HeaderLineSize {
		line = line[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes free text after a COMMENT or HISTORY keyword, wrapping into as many lines as needed
func writeText(w io.Writer, keyword, text string) {
	const width = HeaderLineSize - 8
	for {
		chunk := text
		if len(chunk) > width {
			chunk = chunk[:width]
		}
		fmt.Fprintf(w, "%-8s%-72s", keyword, chunk)
		text = text[len(chunk):]
		if len(text) == 0 {
			return
		}
	}
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", HeaderLineSize-3))
}

// Writes FITS binary body data in network byte order.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}

		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		if _, err := w.Write(buf[:(size << 2)]); err != nil {
			return err
		}
	}
	return nil
}
