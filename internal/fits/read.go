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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/deconv/internal/stats"
)

var headerRE = compileRE()

// Capture group indices in headerRE
var (
	grpEnd     = headerRE.SubexpIndex("E")
	grpHistory = headerRE.SubexpIndex("H")
	grpComment = headerRE.SubexpIndex("C")
	grpKey     = headerRE.SubexpIndex("k")
	grpBool    = headerRE.SubexpIndex("b")
	grpInt     = headerRE.SubexpIndex("i")
	grpFloat   = headerRE.SubexpIndex("f")
	grpString  = headerRE.SubexpIndex("s")
	grpDate    = headerRE.SubexpIndex("d")
)

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, logWriter)
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
// Files with .tif or .tiff suffix are read as TIFF.
func (img *Image) ReadFile(fileName string, logWriter io.Writer) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f

	img.FileName = fileName
	lExt := strings.ToLower(path.Ext(fileName))

	if lExt == ".tif" || lExt == ".tiff" {
		return img.ReadTIFF(f)
	} else if lExt == ".gz" || lExt == ".gzip" {
		r, err = gzip.NewReader(f)
		if err != nil {
			return err
		}
	}

	return img.Read(r, logWriter)
}

func (img *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := img.Header.Ints[key]; ok {
		delete(img.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", img.ID, key)
}

func (img *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := img.Header.Ints[key]; ok {
		delete(img.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := img.Header.Floats[key]; ok {
		delete(img.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", img.ID, key)
}

func (img *Image) Read(f io.Reader, logWriter io.Writer) (err error) {
	err = img.Header.read(f, img.ID, logWriter)
	if err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !img.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", img.ID)
	}
	delete(img.Header.Bools, "SIMPLE")

	if img.Bitpix, err = img.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = img.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	img.Naxisn = make([]int32, naxis)
	img.Pixels = int32(1)
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = img.PopHeaderInt32(name); err != nil {
			return err
		}
		img.Naxisn[i-1] = nai
		img.Pixels *= int32(nai)
	}

	if img.Bzero, err = img.PopHeaderInt32OrFloat("BZERO"); err != nil {
		img.Bzero = 0
	}
	if img.Bscale, err = img.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		img.Bscale = 1
	}

	return img.readData(f, logWriter)
}

// Read image data from file, convert to float32 data type, apply Bscale and Bzero and reset them afterwards.
func (img *Image) readData(f io.Reader, logWriter io.Writer) (err error) {
	var bytesPerSample int
	var decode func(b []byte) float64

	switch img.Bitpix {
	case 8:
		bytesPerSample, decode = 1, func(b []byte) float64 { return float64(b[0]) }
	case 16:
		bytesPerSample, decode = 2, func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }
	case 32:
		bytesPerSample, decode = 4, func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) }
	case 64:
		bytesPerSample, decode = 8, func(b []byte) float64 { return float64(int64(binary.BigEndian.Uint64(b))) }
	case -32:
		bytesPerSample, decode = 4, func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) }
	case -64:
		bytesPerSample, decode = 8, func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }
	default:
		return fmt.Errorf("%d: Unknown BITPIX value %d", img.ID, img.Bitpix)
	}
	if img.Bitpix == 32 || img.Bitpix == 64 || img.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", img.ID, img.Bitpix)
	}

	img.Data = make([]float32, int(img.Pixels))
	if err := readSamples(f, img.Data, bytesPerSample, decode, float64(img.Bscale), float64(img.Bzero)); err != nil {
		return fmt.Errorf("%d: %w", img.ID, err)
	}
	img.Bitpix, img.Bzero, img.Bscale = -32, 0, 1
	img.Stats = stats.NewStats(img.Data, img.Naxisn[0])
	return nil
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Batched read of samples in network byte order, scaling them into data
func readSamples(r io.Reader, data []float32, bytesPerSample int, decode func([]byte) float64, bscale, bzero float64) error {
	buf := make([]byte, bufLen)
	samplesPerBuf := bufLen / bytesPerSample

	for dataIndex := 0; dataIndex < len(data); {
		n := len(data) - dataIndex
		if n > samplesPerBuf {
			n = samplesPerBuf
		}
		if _, err := io.ReadFull(r, buf[:n*bytesPerSample]); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			v := decode(buf[i*bytesPerSample : (i+1)*bytesPerSample])
			data[dataIndex+i] = float32(v*bscale + bzero)
		}
		dataIndex += n
	}
	return nil
}

// Reads header blocks until the END keyword
func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	block := make([]byte, fitsBlockSize)
	for h.Length = 0; !h.End; {
		if _, err := io.ReadFull(r, block); err != nil {
			return fmt.Errorf("%d: reading header: %w", id, err)
		}
		h.Length += int32(fitsBlockSize)

		for pos := 0; pos < fitsBlockSize && !h.End; pos += HeaderLineSize {
			line := block[pos : pos+HeaderLineSize]
			if !h.parseLine(line) {
				fmt.Fprintf(logWriter, "%d: Warning: cannot parse header line '%s', ignoring\n", id, strings.TrimRight(string(line), " "))
			}
		}
	}
	return nil
}

// Parses a single 80 character header line. Returns false if the line is malformed
func (h *Header) parseLine(line []byte) bool {
	m := headerRE.FindSubmatch(line)
	if m == nil {
		return false
	}
	trimmed := func(g int) string { return strings.TrimRight(string(m[g]), " ") }

	switch {
	case m[grpEnd] != nil:
		h.End = true
	case m[grpHistory] != nil:
		h.History = append(h.History, trimmed(grpHistory))
	case m[grpComment] != nil:
		h.Comments = append(h.Comments, trimmed(grpComment))
	case m[grpKey] != nil:
		key := string(m[grpKey])
		switch {
		case m[grpBool] != nil:
			h.Bools[key] = m[grpBool][0] == 'T'
		case m[grpInt] != nil:
			if v, err := strconv.ParseInt(string(m[grpInt]), 10, 32); err == nil {
				h.Ints[key] = int32(v)
			}
		case len(m[grpFloat]) > 0:
			if v, err := strconv.ParseFloat(strings.Replace(string(m[grpFloat]), "D", "E", 1), 64); err == nil {
				h.Floats[key] = float32(v)
			}
		case m[grpString] != nil:
			h.Strings[key] = trimmed(grpString)
		case m[grpDate] != nil:
			h.Dates[key] = string(m[grpDate])
		}
	}
	return true
}

// Regexp for FITS header lines: blank, HISTORY, COMMENT, key = value / comment, or END.
// Values are booleans, integers, floats with E or D exponents, quoted strings or ISO dates
func compileRE() *regexp.Regexp {
	const (
		white    = `\s+`
		whiteOpt = `\s*`
		boolean  = `(?P<b>[TF])`
		integer  = `(?P<i>[+-]?[0-9]+)`
		float    = `(?P<f>[+-]?[0-9]*\.?[0-9]*(?:[ED][-+]?[0-9]+)?)`
		str      = `'(?P<s>[^']*)'`
		date     = `(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)`
	)
	value := "(?:" + boolean + "|" + integer + "|" + float + "|" + str + "|" + date + ")"
	keyLine := `(?P<k>[A-Z0-9_-]+)` + whiteOpt + "=" + whiteOpt + value + whiteOpt + `(?:/.*)?`
	lines := []string{
		white,
		"HISTORY" + white + `(?P<H>.*)`,
		"COMMENT" + white + `(?P<C>.*)`,
		keyLine,
		`(?P<E>END)` + whiteOpt,
	}
	return regexp.MustCompile("^(?:" + strings.Join(lines, "|") + ")$")
}
