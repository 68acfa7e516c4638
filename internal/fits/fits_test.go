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
	"bytes"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/mlnoga/deconv/internal/plane"
)

func testPlane() *plane.Plane {
	p := plane.New(7, 5)
	for i := range p.Data {
		p.Data[i] = math.Sin(float64(i)) * 100
	}
	return p
}

func TestWriteReadRoundTrip(t *testing.T) {
	p := testPlane()
	img := NewImageFromPlane(p)
	img.Header.AddHistory("deconv fb lambda=%g nIter=%d gamma=%g", 0.01, 300, 1.0)
	img.Header.Strings["OBJECT"] = "M42"

	buf := bytes.Buffer{}
	if err := img.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("file length %d not a multiple of %d", buf.Len(), fitsBlockSize)
	}

	back := NewImage()
	if err := back.Read(&buf, io.Discard); err != nil {
		t.Fatal(err)
	}
	q, err := back.ToPlane()
	if err != nil {
		t.Fatal(err)
	}
	if q.Width != p.Width || q.Height != p.Height {
		t.Fatalf("got %s; want %s", q, p)
	}
	for i, v := range q.Data {
		if v != float64(float32(p.Data[i])) {
			t.Errorf("data[%d]=%f; want %f", i, v, p.Data[i])
		}
	}
	if len(back.Header.History) != 1 || back.Header.History[0] != "deconv fb lambda=0.01 nIter=300 gamma=1" {
		t.Errorf("history=%q", back.Header.History)
	}
	if back.Header.Strings["OBJECT"] != "M42" {
		t.Errorf("object=%q; want M42", back.Header.Strings["OBJECT"])
	}
}

func TestWriteFileReadFile(t *testing.T) {
	dir := t.TempDir()
	p := testPlane()
	for _, name := range []string{"a.fits", "b.tif"} {
		fileName := filepath.Join(dir, name)
		if err := NewImageFromPlane(p).WriteFile(fileName); err != nil {
			t.Fatal(err)
		}
		img, err := NewImageFromFile(fileName, 1, io.Discard)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if img.Naxisn[0] != 7 || img.Naxisn[1] != 5 {
			t.Errorf("%s: dimensions %s; want 7x5", name, img.DimensionsToString())
		}
	}
}

func TestTIFFPreservesOrdering(t *testing.T) {
	p := testPlane()
	img := NewImageFromPlane(p)
	buf := bytes.Buffer{}
	if err := img.WriteMonoTIFF16(&buf, img.Stats.Min(), img.Stats.Max(), 1); err != nil {
		t.Fatal(err)
	}
	back := NewImage()
	if err := back.ReadTIFF(&buf); err != nil {
		t.Fatal(err)
	}
	_, _, wantMax := p.Max()
	q, _ := back.ToPlane()
	x, y, v := q.Max()
	if v != 65535 || p.At(x, y) != wantMax {
		t.Errorf("max %f at (%d,%d); want 65535 at the original maximum", v, x, y)
	}
}

func TestToPlaneRejects3D(t *testing.T) {
	img := NewImageFromNaxisn([]int32{2, 2, 3}, nil)
	if _, err := img.ToPlane(); !errors.Is(err, ErrNot2D) {
		t.Errorf("err=%v; want ErrNot2D", err)
	}
}
