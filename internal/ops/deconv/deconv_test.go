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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/ops"
)

func TestForwardBackwardDefaults(t *testing.T) {
	op, err := ops.ParseJob([]byte(`{"type":"fb","lambda":0.05}`), false)
	if err != nil {
		t.Fatal(err)
	}
	fb, ok := op.(*OpForwardBackward)
	if !ok {
		t.Fatalf("got %T; want *OpForwardBackward", op)
	}
	if !fb.Active || fb.Lambda != 0.05 || fb.NIter != 300 || fb.Gamma != 1 || fb.FirstGuess != "zero" {
		t.Errorf("got %+v; want active, lambda 0.05, nIter 300, gamma 1, first guess zero", fb)
	}
	if fb.OpUnaryBase.Apply == nil {
		t.Errorf("apply not bound after unmarshaling")
	}
}

func TestSequenceMarshalRoundTrip(t *testing.T) {
	seq := ops.NewOpSequence(NewOpPSFGaussian(1.5), NewOpNaive(true), ops.NewOpSave("out.fits"))
	b, err := json.Marshal(seq)
	if err != nil {
		t.Fatal(err)
	}
	op, err := ops.ParseJob(b, false)
	if err != nil {
		t.Fatal(err)
	}
	back := op.(*ops.OpSequence)
	if len(back.Steps) != 3 {
		t.Fatalf("steps=%d; want 3", len(back.Steps))
	}
	if g := back.Steps[0].(*OpPSFGaussian); g.Sigma != 1.5 {
		t.Errorf("sigma=%f; want 1.5", g.Sigma)
	}
	if s := back.Steps[2].(*ops.OpSave); s.FilePattern != "out.fits" {
		t.Errorf("pattern=%q; want out.fits", s.FilePattern)
	}
}

func runJob(t *testing.T, job string, isYAML bool) (*ops.Context, string) {
	op, err := ops.ParseJob([]byte(job), isYAML)
	if err != nil {
		t.Fatal(err)
	}
	log := bytes.Buffer{}
	c := ops.NewContext(&log)
	if err := ops.RunJob(op, c); err != nil {
		t.Fatalf("%s\nlog:\n%s", err, log.String())
	}
	return c, log.String()
}

func TestJobPipeline(t *testing.T) {
	ops.RestrictPaths = false
	defer func() { ops.RestrictPaths = true }()
	dir := t.TempDir()
	out := filepath.Join(dir, "fb%d.fits")
	plot := filepath.Join(dir, "cost%d.png")
	png := filepath.Join(dir, "fb%d.png")

	job := fmt.Sprintf(`{"type":"seq","steps":[
		{"type":"starField","width":32,"height":32,"stars":6,"seed":3},
		{"type":"psfGaussian","sigma":1},
		{"type":"blur","noise":0.0001},
		{"type":"fb","lambda":0.001,"nIter":40,"costPlot":%q},
		{"type":"render","filePattern":%q,"colormap":"magma","title":"image %%d"},
		{"type":"save","filePattern":%q}
	]}`, plot, png, out)

	iterations := 0
	op, err := ops.ParseJob([]byte(job), false)
	if err != nil {
		t.Fatal(err)
	}
	log := bytes.Buffer{}
	c := ops.NewContext(&log)
	c.OnSolve = func(n int) { iterations += n }
	if err := ops.RunJob(op, c); err != nil {
		t.Fatalf("%s\nlog:\n%s", err, log.String())
	}
	if iterations != 40 {
		t.Errorf("iterations=%d; want 40", iterations)
	}
	if !strings.Contains(log.String(), "NMSE vs truth") {
		t.Errorf("log lacks NMSE report:\n%s", log.String())
	}
	for _, name := range []string{"fb0.fits", "cost0.png", "fb0.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %s", name, err)
		}
	}

	img, err := fits.NewImageFromFile(filepath.Join(dir, "fb0.fits"), 0, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, h := range img.Header.History {
		found = found || strings.HasPrefix(h, "fb lambda=0.001")
	}
	if !found {
		t.Errorf("history %q lacks solver settings", img.Header.History)
	}
}

func TestYAMLJob(t *testing.T) {
	job := `
type: seq
steps:
  - type: starField
    width: 16
    height: 16
    stars: 3
  - type: psfGaussian
    sigma: 1
  - type: blur
  - type: naive
`
	_, log := runJob(t, job, true)
	if !strings.Contains(log, "Naive deconvolution") {
		t.Errorf("log lacks naive deconvolution:\n%s", log)
	}
	if !strings.Contains(log, "NMSE vs truth") {
		t.Errorf("log lacks NMSE report:\n%s", log)
	}
}

func TestMissingPSF(t *testing.T) {
	op, _ := ops.ParseJob([]byte(`{"type":"seq","steps":[{"type":"starField","width":8,"height":8,"stars":1},{"type":"naive"}]}`), false)
	if err := ops.RunJob(op, ops.NewContext(io.Discard)); err == nil {
		t.Errorf("no error without PSF")
	}
}

func TestPSFPerStep(t *testing.T) {
	job := `{"type":"seq","steps":[
		{"type":"starField","width":16,"height":16,"stars":3,"seed":2},
		{"type":"psfGaussian","sigma":3},
		{"type":"blur"},
		{"type":"psfGaussian","sigma":2},
		{"type":"fb","lambda":0.001,"nIter":5}
	]}`
	c, log := runJob(t, job, false)
	for _, want := range []string{"0: Blurred with gaussian PSF sigma 3 ", "0: Forward-Backward with gaussian PSF sigma 2,"} {
		if !strings.Contains(log, want) {
			t.Errorf("log lacks %q:\n%s", want, log)
		}
	}
	if got := c.PSFSource(); got.PSF != nil || got.Sigma != 2 {
		t.Errorf("context PSF %v; want gaussian PSF sigma 2", got)
	}
}

func TestFilterOperators(t *testing.T) {
	job := `{"type":"seq","steps":[
		{"type":"starField","width":16,"height":16,"stars":4,"seed":5},
		{"type":"psfGaussian","sigma":1.5},
		{"type":"blur","noise":0.001},
		{"type":"median"},
		{"type":"unsharpMask","sigma":1.5,"gain":1.5}
	]}`
	_, log := runJob(t, job, false)
	for _, want := range []string{"3x3 median", "Unsharp masking with sigma 1.5 gain 1.5", "NMSE vs truth"} {
		if !strings.Contains(log, want) {
			t.Errorf("log lacks %q:\n%s", want, log)
		}
	}

	op, err := ops.ParseJob([]byte(`{"type":"unsharpMask"}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if u := op.(*OpUnsharpMask); !u.Active || u.Sigma != 1.5 || u.Gain != 0 || u.Threshold != 1 {
		t.Errorf("got %+v; want active with sigma 1.5, gain 0, threshold 1", u)
	}
}
